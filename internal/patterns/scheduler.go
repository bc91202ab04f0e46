package patterns

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs batch extraction on a fixed interval.
//
// All public methods are safe for concurrent use.
type Scheduler struct {
	interval  time.Duration
	timeout   time.Duration
	extractor *Extractor
	opts      ExtractOptions

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	logger *zap.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the time between runs. Defaults to 24 hours.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithRunTimeout bounds a single run. Defaults to 10 minutes.
func WithRunTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithExtractOptions sets the options passed to each run. Scheduled runs
// always store their patterns.
func WithExtractOptions(opts ExtractOptions) SchedulerOption {
	return func(s *Scheduler) {
		s.opts = opts
	}
}

// NewScheduler creates a scheduler. It does not start until Start is called.
func NewScheduler(extractor *Extractor, logger *zap.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	s := &Scheduler{
		extractor: extractor,
		logger:    logger,
		interval:  24 * time.Hour,
		timeout:   10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.opts.AutoStore = true
	return s, nil
}

// Start launches the background loop. Starting a running scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("extraction scheduler started", zap.Duration("interval", s.interval))
	go s.run(s.stopCh, s.done)
	return nil
}

// Stop signals the loop to exit and waits for an in-flight run to finish.
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
	s.logger.Info("extraction scheduler stopped")
	return nil
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler goroutine panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-stopCh:
			return
		}
	}
}

// RunOnce performs a single extraction. Panics and errors are logged.
func (s *Scheduler) RunOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("extraction run panicked, continuing scheduler",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.extractor.ExtractPatterns(ctx, s.opts)
	if err != nil && !errors.Is(err, ErrPartialTagging) {
		s.logger.Error("scheduled extraction failed", zap.Error(err))
		return
	}
	if err != nil {
		s.logger.Warn("scheduled extraction left incidents untagged", zap.Error(err))
	}
	s.logger.Info("scheduled extraction completed",
		zap.Int("created", len(res.Patterns)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Duration("duration", res.Duration))
}
