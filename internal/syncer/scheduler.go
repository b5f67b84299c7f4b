package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/soroe/internal/models"
)

// Scheduler enqueues an incremental sync trigger on a fixed interval. The
// interval can be changed at runtime.
type Scheduler struct {
	queue      *Queue
	intervalCh chan time.Duration
	interval   time.Duration
	logger     *zap.Logger
}

// NewScheduler creates a scheduler that fires every interval. interval <= 0
// disables scheduling until SetInterval is called.
func NewScheduler(queue *Queue, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		queue:      queue,
		intervalCh: make(chan time.Duration, 1),
		interval:   interval,
		logger:     logger,
	}
}

// SetInterval updates the firing interval. Takes effect immediately; <= 0
// pauses the scheduler.
func (s *Scheduler) SetInterval(interval time.Duration) {
	select {
	case s.intervalCh <- interval:
	default:
		// Pending update not yet consumed; replace it.
		select {
		case <-s.intervalCh:
		default:
		}
		s.intervalCh <- interval
	}
}

// Run fires triggers until ctx is cancelled. Intended to run in its own
// goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.interval
	var timer *time.Timer
	var fire <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			fire = nil
		}
	}
	arm := func() {
		stopTimer()
		if interval > 0 {
			timer = time.NewTimer(interval)
			fire = timer.C
		}
	}
	arm()
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return
		case next := <-s.intervalCh:
			s.logger.Info("sync interval updated", zap.Duration("interval", next))
			interval = next
			arm()
		case <-fire:
			s.queue.Enqueue(models.TriggerIncremental)
			arm()
		}
	}
}
