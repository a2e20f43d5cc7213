// Package scheduler runs background jobs, such as ledger backups, on
// fixed schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// Job is a unit of background work.
type Job interface {
	// Name must be unique within a Scheduler.
	Name() string
	Description() string

	// Run does one pass of the work. ctx ends when the scheduler stops.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	Next(after time.Time) time.Time
	String() string
}

// IntervalSchedule runs a job every Interval, measured from the previous
// start.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every returns an IntervalSchedule.
func Every(interval time.Duration) IntervalSchedule {
	return IntervalSchedule{Interval: interval}
}

func (s IntervalSchedule) Next(after time.Time) time.Time { return after.Add(s.Interval) }
func (s IntervalSchedule) String() string                 { return "@every " + s.Interval.String() }

// JobResult describes one finished run.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Error       error
	Manual      bool
}

// Success reports whether the run returned no error.
func (r JobResult) Success() bool { return r.Error == nil }

var (
	ErrNilJob                  = errors.New("scheduler: nil job")
	ErrNilSchedule             = errors.New("scheduler: nil schedule")
	ErrJobAlreadyExists        = errors.New("scheduler: duplicate job name")
	ErrJobNotFound             = errors.New("scheduler: no such job")
	ErrJobRunning              = errors.New("scheduler: job is running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
)

// Config configures a Scheduler.
type Config struct {
	Logger *logger.Logger

	// Tick bounds how long a job loop sleeps before re-reading the clock
	// (default 1s).
	Tick time.Duration

	// OnJobComplete is called after every run, scheduled or manual.
	OnJobComplete func(JobResult)

	// Now replaces time.Now.
	Now func() time.Time
}

// Scheduler gives every registered job its own loop. A job never runs
// concurrently with itself: RunNow fails while a run is in progress.
type Scheduler struct {
	log   *logger.Logger
	tick  time.Duration
	now   func() time.Time
	onRun func(JobResult)

	mu      sync.Mutex
	entries map[string]*entry
	started bool
}

type entry struct {
	job      Job
	schedule Schedule

	// guarded by Scheduler.mu
	next  time.Time
	busy  bool
	runs  int64
	fails int64
	last  *JobResult
}

// New returns an idle Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		log:     cfg.Logger.With(logger.Component("scheduler")),
		tick:    cfg.Tick,
		now:     cfg.Now,
		onRun:   cfg.OnJobComplete,
		entries: make(map[string]*entry),
	}
}

// Register adds job. Jobs must be registered before Run.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	switch {
	case job == nil:
		return ErrNilJob
	case schedule == nil:
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSchedulerAlreadyRunning
	}
	name := job.Name()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	e := &entry{job: job, schedule: schedule, next: schedule.Next(s.now())}
	s.entries[name] = e

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.Time("next_run", e.next),
	)
	return nil
}

// Run drives every job until ctx is cancelled and returns once all of
// them have stopped. Cancellation is not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.started = true
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	s.log.Info("scheduler started", logger.Int("jobs_count", len(entries)))

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error {
			s.loop(gctx, e)
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	timer := time.NewTimer(s.tick)
	defer timer.Stop()

	for {
		s.mu.Lock()
		wait := e.next.Sub(s.now())
		s.mu.Unlock()

		if wait > 0 {
			timer.Reset(min(wait, s.tick))
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		e.next = e.schedule.Next(s.now())
		claimed := !e.busy
		e.busy = true
		s.mu.Unlock()

		if !claimed {
			s.log.Warn("job still running, skipping", logger.String("job", e.job.Name()))
			continue
		}
		s.execute(ctx, e, false)
	}
}

// RunNow runs the named job once, outside its schedule, and waits for it.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	switch {
	case !ok:
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	case e.busy:
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	e.busy = true
	s.mu.Unlock()

	res := s.execute(ctx, e, true)
	return res, res.Error
}

// execute runs a job the caller has marked busy and clears the mark.
func (s *Scheduler) execute(ctx context.Context, e *entry, manual bool) JobResult {
	res := JobResult{JobName: e.job.Name(), Manual: manual, StartedAt: s.now()}
	res.Error = e.job.Run(ctx)
	res.CompletedAt = s.now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)

	s.mu.Lock()
	e.busy = false
	e.runs++
	if res.Error != nil {
		e.fails++
	}
	e.last = &res
	s.mu.Unlock()

	log := s.log.With(logger.String("job", res.JobName), logger.Bool("manual", manual))
	if res.Error != nil {
		log.Error("job failed", logger.Latency(res.Duration), logger.Err(res.Error))
	} else {
		log.Info("job completed", logger.Latency(res.Duration))
	}
	if s.onRun != nil {
		s.onRun(res)
	}
	return res
}

// JobInfo is a point-in-time view of a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns every registered job, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, JobInfo{
			Name:        name,
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			NextRun:     e.next,
			RunCount:    e.runs,
			FailCount:   e.fails,
			LastResult:  e.last,
		})
	}
	slices.SortFunc(out, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}
