package recorder

import (
	"context"
	"time"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	"github.com/marcosgabbardo/mercadobitcoin-grid/pkg/concurrency"
)

// AsyncRecorder decouples persistence from the scheduler loop: writes run on
// a worker pool and never block a trading cycle. When the pool's queue is
// full the write is dropped and logged, which matches the contract that
// recording is best effort.
type AsyncRecorder struct {
	inner   core.IEventRecorder
	pool    *concurrency.WorkerPool
	logger  core.ILogger
	timeout time.Duration
}

func NewAsyncRecorder(inner core.IEventRecorder, logger core.ILogger) *AsyncRecorder {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "recorder",
		MaxWorkers:  1, // single writer keeps SQLite happy
		MaxCapacity: 256,
		NonBlocking: true,
	}, logger)

	return &AsyncRecorder{
		inner:   inner,
		pool:    pool,
		logger:  logger.WithField("component", "async_recorder"),
		timeout: 10 * time.Second,
	}
}

func (r *AsyncRecorder) RecordEvent(ctx context.Context, event *core.Event) error {
	cp := *event
	if err := r.pool.Submit(func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.inner.RecordEvent(writeCtx, &cp); err != nil {
			r.logger.Error("failed to record event", "operation_type", cp.OperationType, "error", err)
		}
	}); err != nil {
		r.logger.Error("recorder queue full, dropping event", "operation_type", event.OperationType)
	}
	return nil
}

func (r *AsyncRecorder) RecordOrder(ctx context.Context, order *core.Order) error {
	cp := *order
	if err := r.pool.Submit(func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.inner.RecordOrder(writeCtx, &cp); err != nil {
			r.logger.Error("failed to record order", "order_id", cp.ID, "error", err)
		}
	}); err != nil {
		r.logger.Error("recorder queue full, dropping order", "order_id", order.ID)
	}
	return nil
}

// Close drains queued writes and stops the pool.
func (r *AsyncRecorder) Close() {
	r.pool.Stop()
}
