package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/metrics"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Runner performs one collection pass. *Collector implements it.
type Runner interface {
	Collect(ctx context.Context) (Result, error)
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests inject a clock they drive by hand.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Scheduler runs a Runner on a fixed interval: the standalone ingestion
// daemon.
//
// Every run gets its own timeout context. A run that fails or panics is
// logged and the loop waits for the next tick. The loop ends on Stop or
// when the context given to Start is cancelled.
//
// Thread Safety: Start and Stop are safe for concurrent use.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runTimeout time.Duration
	runOnStart bool
	clock      Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the time between runs. Defaults to 600s.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRunTimeout bounds each run. Defaults to 2 minutes.
func WithRunTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

// WithRunOnStart controls whether the first run happens immediately instead
// of after the first interval. Defaults to true.
func WithRunOnStart(v bool) SchedulerOption {
	return func(s *Scheduler) { s.runOnStart = v }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithSchedulerMetrics sets the collectors used to record panicking runs.
func WithSchedulerMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler. It does not start until Start is called.
func NewScheduler(runner Runner, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	s := &Scheduler{
		runner:     runner,
		interval:   600 * time.Second,
		runTimeout: 2 * time.Minute,
		runOnStart: true,
		clock:      realClock{},
		logger:     logger,
		metrics:    metrics.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("ingestion scheduler started", zap.Duration("interval", s.interval))

	go s.loop(ctx, s.stopCh, s.done)
	return nil
}

// Stop signals the loop to end and waits for the in-flight run to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("ingestion scheduler stopped")
	return nil
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run starts the loop and blocks until ctx is cancelled, then stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.running = false
		}
		s.mu.Unlock()
	}()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.safeRun(ctx)
	}

	for {
		select {
		case <-ticker.C():
			s.safeRun(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			s.logger.Debug("scheduler context cancelled")
			return
		}
	}
}

func (s *Scheduler) safeRun(parent context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.IngestRunsTotal.WithLabelValues("panic").Inc()
			s.logger.Error("ingestion run panicked, continuing scheduler",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.runTimeout)
	defer cancel()

	res, err := s.runner.Collect(ctx)
	if err != nil {
		s.logger.Error("ingestion run failed", zap.String("run_id", res.RunID), zap.Error(err))
		return
	}
	s.logger.Info("waiting for next ingestion run", zap.Duration("interval", s.interval))
}
