// Package messaging implements the in-process event bus that carries
// committed progress events to notification and metrics subscribers.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

var (
	// ErrEventBusClosed is returned by Subscribe and Publish after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps the value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("event handler panicked")

	errNilHandler = errors.New("event bus: nil handler")
	errNilEvent   = errors.New("event bus: nil event")
)

// HandlerObserver is told about every handler execution.
type HandlerObserver func(eventType shared.EventType, duration time.Duration, err error)

// Config configures a Bus.
type Config struct {
	// AsyncMode makes Publish return before handlers run. At most
	// WorkerPoolSize handlers run at once.
	AsyncMode      bool
	WorkerPoolSize int

	Logger   *logger.Logger
	Observer HandlerObserver
}

// DefaultConfig is asynchronous with ten concurrent handlers.
func DefaultConfig() Config {
	return Config{AsyncMode: true, WorkerPoolSize: 10}
}

// Bus is an in-memory shared.EventBus. Handler errors and panics are logged
// and reported to the observer; they never reach the publisher.
type Bus struct {
	async    bool
	slots    *semaphore.Weighted
	log      *logger.Logger
	observer HandlerObserver

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool
	inflight sync.WaitGroup
}

var _ shared.EventBus = (*Bus)(nil)

// New returns a Bus configured by cfg.
func New(cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = DefaultConfig().WorkerPoolSize
	}
	return &Bus{
		async:    cfg.AsyncMode,
		slots:    semaphore.NewWeighted(int64(cfg.WorkerPoolSize)),
		log:      cfg.Logger.With(logger.Component("event_bus")),
		observer: cfg.Observer,
		byType:   make(map[shared.EventType][]shared.EventHandler),
	}
}

// Subscribe adds handler for one event type.
func (b *Bus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.add(handler, func() {
		b.byType[eventType] = append(b.byType[eventType], handler)
	})
}

// SubscribeAll adds handler for every event type.
func (b *Bus) SubscribeAll(handler shared.EventHandler) error {
	return b.add(handler, func() {
		b.wildcard = append(b.wildcard, handler)
	})
}

func (b *Bus) add(handler shared.EventHandler, register func()) error {
	if handler == nil {
		return errNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	register()
	return nil
}

// Publish hands event to its subscribers, type-specific ones first. In
// sync mode every handler has run when Publish returns.
func (b *Bus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	targets := append(append([]shared.EventHandler(nil), b.byType[event.EventType()]...), b.wildcard...)
	if b.async {
		// Counted under the read lock so Close cannot slip in between.
		b.inflight.Add(len(targets))
	}
	b.mu.RUnlock()

	for _, h := range targets {
		if !b.async {
			b.run(event, h)
			continue
		}
		go func(h shared.EventHandler) {
			defer b.inflight.Done()
			_ = b.slots.Acquire(context.Background(), 1)
			defer b.slots.Release(1)
			b.run(event, h)
		}(h)
	}
	return nil
}

func (b *Bus) run(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := invoke(h, event)
	took := time.Since(start)

	if b.observer != nil {
		b.observer(event.EventType(), took, err)
	}
	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.String("event_id", event.EventID()),
			logger.Latency(took),
			logger.Err(err),
		)
	}
}

func invoke(h shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return h(event)
}

// Close refuses further events and blocks until every accepted event has
// been handled. Repeated calls return nil.
func (b *Bus) Close() error {
	b.mu.Lock()
	already := b.closed
	b.closed = true
	b.mu.Unlock()

	if already {
		return nil
	}
	b.inflight.Wait()
	b.log.Info("event bus closed")
	return nil
}
