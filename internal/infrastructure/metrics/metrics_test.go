package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/memory"
)

// sample returns the value of the series of metric name whose labels
// include every pair in labels.
func sample(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range metric.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestHandleEvent(t *testing.T) {
	m := New()

	require.NoError(t, m.HandleEvent(shared.NewXPChangedEvent("g", "u", shared.XPSourceActivity, 20, 0, 20, 1)))
	require.NoError(t, m.HandleEvent(shared.NewXPChangedEvent("g", "u", shared.XPSourceActivity, 15, 20, 35, 1)))
	require.NoError(t, m.HandleEvent(shared.NewLevelUpEvent("g", "u", 1, 2, "Awakened Zone")))
	require.NoError(t, m.HandleEvent(shared.NewZoneChangedEvent("g", "u", 11, "Awakened Zone", "Essence Zone")))
	require.NoError(t, m.HandleEvent(shared.NewMemberJoinedEvent("g", "u", "Ann")))

	assert.Equal(t, 35.0, sample(t, m, "weaver_experience_awarded_total", map[string]string{"source": "activity"}))
	assert.Equal(t, 1.0, sample(t, m, "weaver_level_ups_total", nil))
	assert.Equal(t, 1.0, sample(t, m, "weaver_zone_changes_total", map[string]string{"zone": "Essence Zone"}))
	assert.Equal(t, 1.0, sample(t, m, "weaver_members_joined_total", nil))
}

func TestObserveCommandAndOutcome(t *testing.T) {
	m := New()
	m.ObserveCommand("rank", OutcomeFor(nil))
	m.ObserveCommand("addexp", OutcomeFor(shared.ErrPermissionDenied))
	m.ObserveCommand("addexp", OutcomeFor(shared.ErrAmountNotPositive))
	m.ObserveCommand("addexp", OutcomeFor(errors.New("disk on fire")))

	assert.Equal(t, 1.0, sample(t, m, "weaver_commands_total", map[string]string{"command": "rank", "outcome": OutcomeOK}))
	assert.Equal(t, 1.0, sample(t, m, "weaver_commands_total", map[string]string{"command": "addexp", "outcome": OutcomeForbidden}))
	assert.Equal(t, 1.0, sample(t, m, "weaver_commands_total", map[string]string{"command": "addexp", "outcome": OutcomeRejected}))
	assert.Equal(t, 1.0, sample(t, m, "weaver_commands_total", map[string]string{"command": "addexp", "outcome": OutcomeFailed}))
}

func TestInstrumentRepository(t *testing.T) {
	m := New()
	repo := m.InstrumentRepository("memory", memory.NewStore(nil))

	_, err := repo.Update(context.Background(), "g", "u", func(cur progress.Record) (progress.Record, error) {
		return progress.ApplyDelta(cur, 20).Record, nil
	})
	require.NoError(t, err)

	rec, err := repo.Get(context.Background(), "g", "u")
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.Exp)
	assert.Equal(t, 1.0, sample(t, m, "weaver_store_update_duration_seconds", map[string]string{"driver": "memory", "result": "ok"}))
	assert.NoError(t, repo.Close())
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveHandler(shared.EventLevelUp, 3*time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "weaver_event_handler_duration_seconds")
}
