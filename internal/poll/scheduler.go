// Package poll drives a refresh job on a fixed cadence with an in-flight guard
// and exponential backoff after consecutive failures.
package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// BackoffConfig controls how polls are spaced out after failures.
type BackoffConfig struct {
	Enabled    bool
	MinBackoff time.Duration // Backoff after the first failure
	MaxBackoff time.Duration // Upper bound
	Multiplier float64       // Growth per consecutive failure
}

// Config configures a Scheduler.
type Config struct {
	Interval time.Duration
	Backoff  BackoffConfig
}

// DefaultConfig returns a one second cadence with backoff enabled.
func DefaultConfig() Config {
	return Config{
		Interval: time.Second,
		Backoff: BackoffConfig{
			Enabled:    true,
			MinBackoff: 2 * time.Second,
			MaxBackoff: time.Minute,
			Multiplier: 2.0,
		},
	}
}

// Job is one poll.
type Job func(ctx context.Context) error

// Result describes a finished poll.
type Result struct {
	Err                 error
	Duration            time.Duration
	ConsecutiveFailures int
	Backoff             time.Duration // Wait before the next poll, 0 when not backing off
}

// Stats are cumulative counters.
type Stats struct {
	Runs     int64
	Failures int64
	Skipped  int64
}

// Scheduler runs a Job at most once at a time on a fixed interval.
type Scheduler struct {
	name     string
	cfg      Config
	job      Job
	onResult func(Result)
	now      func() time.Time

	inflight atomic.Bool
	trigger  chan struct{}

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	polls    sync.WaitGroup
	failures int
	backoff  time.Duration
	resumeAt time.Time

	runs    atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

// New creates a scheduler. Zero config fields fall back to DefaultConfig.
func New(name string, cfg Config, job Job) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Backoff.MinBackoff <= 0 {
		cfg.Backoff.MinBackoff = def.Backoff.MinBackoff
	}
	if cfg.Backoff.MaxBackoff < cfg.Backoff.MinBackoff {
		cfg.Backoff.MaxBackoff = max(def.Backoff.MaxBackoff, cfg.Backoff.MinBackoff)
	}
	if cfg.Backoff.Multiplier < 1 {
		cfg.Backoff.Multiplier = def.Backoff.Multiplier
	}

	return &Scheduler{
		name:    name,
		cfg:     cfg,
		job:     job,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// OnResult sets a hook called after every poll, on the poll goroutine.
// Set it before Start.
func (s *Scheduler) OnResult(fn func(Result)) {
	s.onResult = fn
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string {
	return s.name
}

// Start runs the first poll immediately and then one per interval until ctx is
// done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	log.Info().Str("scheduler", s.name).Dur("interval", s.cfg.Interval).Msg("Poll scheduler started")
	return nil
}

// Stop cancels the loop and waits for it and any in-flight poll to finish.
// Calling Stop on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	s.polls.Wait()
	log.Info().Str("scheduler", s.name).Msg("Poll scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// TriggerNow requests a poll as soon as possible. Requests coalesce, skip the
// backoff window, and still respect the in-flight guard.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// InFlight reports whether a poll is outstanding.
func (s *Scheduler) InFlight() bool {
	return s.inflight.Load()
}

// Stats returns cumulative counters.
func (s *Scheduler) Stats() Stats {
	return Stats{Runs: s.runs.Load(), Failures: s.failed.Load(), Skipped: s.skipped.Load()}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tryPoll(ctx, false)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tryPoll(ctx, false)
		case <-s.trigger:
			s.tryPoll(ctx, true)
		}
	}
}

func (s *Scheduler) tryPoll(ctx context.Context, forced bool) {
	if !forced {
		s.mu.Lock()
		waiting := s.now().Before(s.resumeAt)
		s.mu.Unlock()
		if waiting {
			s.skipped.Add(1)
			return
		}
	}

	if !s.inflight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		log.Debug().Str("scheduler", s.name).Msg("Poll still in flight, skipping tick")
		return
	}

	s.polls.Add(1)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.polls.Done()

	start := s.now()
	err := s.job(ctx)
	res := Result{Err: err, Duration: s.now().Sub(start)}
	s.runs.Add(1)

	s.mu.Lock()
	if err != nil {
		s.failed.Add(1)
		s.failures++
		if s.cfg.Backoff.Enabled {
			s.backoff = s.nextBackoff()
			s.resumeAt = s.now().Add(s.backoff)
		}
	} else {
		s.failures = 0
		s.backoff = 0
		s.resumeAt = time.Time{}
	}
	res.ConsecutiveFailures = s.failures
	res.Backoff = s.backoff
	s.mu.Unlock()

	s.inflight.Store(false)

	if err != nil && ctx.Err() == nil {
		log.Warn().Err(err).
			Str("scheduler", s.name).
			Int("consecutive_failures", res.ConsecutiveFailures).
			Dur("backoff", res.Backoff).
			Msg("Poll failed")
	}
	if s.onResult != nil && ctx.Err() == nil {
		s.onResult(res)
	}
}

// nextBackoff grows the current backoff by the multiplier, capped at max.
// Caller holds mu.
func (s *Scheduler) nextBackoff() time.Duration {
	if s.backoff == 0 {
		return s.cfg.Backoff.MinBackoff
	}
	next := time.Duration(float64(s.backoff) * s.cfg.Backoff.Multiplier)
	if next > s.cfg.Backoff.MaxBackoff {
		next = s.cfg.Backoff.MaxBackoff
	}
	return next
}
