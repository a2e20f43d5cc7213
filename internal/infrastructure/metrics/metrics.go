// Package metrics exposes Prometheus instruments for the bot. All
// collectors live on a dedicated registry served at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

const namespace = "weaver"

// Command outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeForbidden = "forbidden"
	OutcomeFailed    = "failed"
)

// Metrics holds every collector.
type Metrics struct {
	registry *prometheus.Registry

	expAwarded      *prometheus.CounterVec
	levelUps        prometheus.Counter
	zoneChanges     *prometheus.CounterVec
	membersJoined   prometheus.Counter
	commands        *prometheus.CounterVec
	storeUpdate     *prometheus.HistogramVec
	handlerDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		expAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "experience_awarded_total",
			Help:      "Experience applied to the ledger, by source. Removals count as negative.",
		}, []string{"source"}),
		levelUps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Level-ups that stayed inside a zone.",
		}),
		zoneChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zone_changes_total",
			Help:      "Zone ascensions, by zone reached.",
		}, []string{"zone"}),
		membersJoined: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_joined_total",
			Help:      "Members welcomed.",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands handled, by name and outcome.",
		}, []string{"command", "outcome"}),
		storeUpdate: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_update_duration_seconds",
			Help:      "Duration of read-modify-write cycles against the progress store.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"driver", "result"}),
		handlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Duration of event bus handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type", "result"}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Register subscribes the event counters to bus.
func (m *Metrics) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(m.HandleEvent)
}

// HandleEvent counts one committed domain event.
func (m *Metrics) HandleEvent(event shared.Event) error {
	switch ev := event.(type) {
	case shared.XPChangedEvent:
		m.expAwarded.WithLabelValues(string(ev.Source)).Add(float64(ev.Applied()))
	case shared.LevelUpEvent:
		m.levelUps.Inc()
	case shared.ZoneChangedEvent:
		m.zoneChanges.WithLabelValues(ev.NewZone).Inc()
	case shared.MemberJoinedEvent:
		m.membersJoined.Inc()
	}
	return nil
}

// ObserveCommand counts one handled command.
func (m *Metrics) ObserveCommand(name, outcome string) {
	m.commands.WithLabelValues(name, outcome).Inc()
}

// ObserveHandler matches messaging.HandlerObserver.
func (m *Metrics) ObserveHandler(eventType shared.EventType, d time.Duration, err error) {
	m.handlerDuration.WithLabelValues(string(eventType), result(err)).Observe(d.Seconds())
}

func (m *Metrics) observeStoreUpdate(driver string, d time.Duration, err error) {
	m.storeUpdate.WithLabelValues(driver, result(err)).Observe(d.Seconds())
}

// OutcomeFor classifies a command error.
func OutcomeFor(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case shared.IsForbidden(err):
		return OutcomeForbidden
	case shared.IsValidation(err), shared.IsNotFound(err):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
