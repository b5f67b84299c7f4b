package syncer

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/soroe/internal/models"
)

const queueCapacity = 8

// Queue serializes sync triggers onto the orchestrator. A single consumer
// drains it, so queued triggers never race each other; Enqueue is non-blocking
// and drops the trigger when the queue is full.
type Queue struct {
	orchestrator *Orchestrator
	triggers     chan models.Trigger
	logger       *zap.Logger
}

// NewQueue creates a trigger queue for orchestrator. logger may be nil.
func NewQueue(orchestrator *Orchestrator, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		orchestrator: orchestrator,
		triggers:     make(chan models.Trigger, queueCapacity),
		logger:       logger,
	}
}

// Enqueue submits a trigger without blocking. Returns false when the queue is
// full; a full queue already guarantees a future cycle, so dropping is safe.
func (q *Queue) Enqueue(trigger models.Trigger) bool {
	select {
	case q.triggers <- trigger:
		return true
	default:
		q.logger.Debug("trigger queue full, dropping", zap.String("trigger", string(trigger)))
		return false
	}
}

// Run consumes triggers until ctx is cancelled. Intended to run in its own
// goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-q.triggers:
			var err error
			if trigger == models.TriggerRebuild {
				_, err = q.orchestrator.RunFullRebuild(ctx)
			} else {
				_, err = q.orchestrator.RunIncrementalSync(ctx)
			}
			if err != nil {
				q.logger.Warn("queued sync cycle failed",
					zap.String("trigger", string(trigger)), zap.Error(err))
			}
		}
	}
}
