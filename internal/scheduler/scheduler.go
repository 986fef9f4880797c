// Package scheduler runs tracker refresh batches on a fixed period.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pders01/ntrack/internal/config"
	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/engine"
)

// Refresher runs one batch over all trackers. *engine.Manager implements it.
type Refresher interface {
	RefreshAll(ctx context.Context) (engine.BatchReport, error)
}

// Scheduler runs a batch after an initial delay and then every interval.
// Batches never overlap, including batches started through RunOnce.
type Scheduler struct {
	refresher    Refresher
	interval     time.Duration
	initialDelay time.Duration

	// batchMu is held for the duration of every batch
	batchMu sync.Mutex

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func New(r Refresher, cfg config.SchedulerConfig) *Scheduler {
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		refresher:    r,
		interval:     interval,
		initialDelay: cfg.InitialDelay,
	}
}

// Start begins the loop, replacing one that is already running. The loop
// ends when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		close(s.stop)
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)

	debuglog.Infof("scheduler started: first batch in %s, then every %s", s.initialDelay, s.interval)
}

// Stop prevents further batches. A batch already running finishes; use
// Wait to block until it has. Stop on an idle scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
	debuglog.Infof("scheduler stopped")
}

// Wait blocks until the most recently started loop has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// RunOnce runs a batch now, waiting for any batch in progress first.
func (s *Scheduler) RunOnce(ctx context.Context) (engine.BatchReport, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.refresher.RefreshAll(ctx)
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(s.initialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-stop:
		return
	case <-timer.C:
	}
	s.tick(ctx, stop)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.tick(ctx, stop)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, stop <-chan struct{}) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	// stopped while waiting for another batch
	select {
	case <-stop:
		return
	default:
	}

	report, err := s.refresher.RefreshAll(ctx)
	if err != nil {
		debuglog.Warnf("refresh batch: %v", err)
		return
	}
	debuglog.Debugf("batch took %s", report.Duration)
}
