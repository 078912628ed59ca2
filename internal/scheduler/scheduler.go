// Package scheduler drives the cancel-and-replace grid loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/grid"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/ledger"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/metrics"
)

// Config holds the scheduler's run parameters. Balance lookups use the
// quote currency for BUY grids and the base currency for SELL grids.
type Config struct {
	Pair          string
	Side          core.Side
	QuoteCurrency string
	BaseCurrency  string
	PollInterval  time.Duration
}

// RunState is a snapshot of the scheduler's progress.
type RunState struct {
	CycleCount         int64
	LastReferencePrice decimal.Decimal
	LastCycleAt        time.Time
}

// Scheduler runs the grid strategy as a strictly sequential loop: cancel
// stale orders, re-read balance and price, place the fresh grid, sleep.
// Nothing overlaps, so the ledger always reflects the last completed step.
type Scheduler struct {
	cfg      Config
	planner  *grid.Planner
	gateway  core.IOrderGateway
	oracle   core.IPriceOracle
	recorder core.IEventRecorder
	ledger   *ledger.Ledger
	logger   core.ILogger

	mu    sync.Mutex
	state RunState
}

func New(cfg Config, planner *grid.Planner, gateway core.IOrderGateway, oracle core.IPriceOracle, recorder core.IEventRecorder, lgr *ledger.Ledger, logger core.ILogger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		planner:  planner,
		gateway:  gateway,
		oracle:   oracle,
		recorder: recorder,
		ledger:   lgr,
		logger:   logger.WithField("component", "scheduler"),
	}
}

// State returns a snapshot of the run state.
func (s *Scheduler) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes cycles until the context is canceled. Cycle errors are
// logged and the loop keeps going; a venue outage should never kill the
// process while orders may be resting on the book.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"pair", s.cfg.Pair,
		"side", s.cfg.Side,
		"poll_interval", s.cfg.PollInterval,
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-timer.C:
		}

		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("cycle failed", "error", err)
		}

		timer.Reset(s.cfg.PollInterval)
	}
}

// RunCycle executes exactly one cancel-and-replace cycle. Exported so tests
// can drive the loop synchronously.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	// Evaluate first: a venue that cannot answer price and balance queries
	// gets no mutations this cycle, stale orders included.
	price, err := s.oracle.ReferencePrice(ctx, s.cfg.Pair, s.cfg.Side)
	if err != nil {
		metrics.CyclesSkipped.WithLabelValues(metrics.SkipReasonMarketData).Inc()
		return fmt.Errorf("reference price: %w", err)
	}
	if _, err := s.gateway.GetBalance(ctx, s.balanceCurrency()); err != nil {
		return fmt.Errorf("balance %s: %w", s.balanceCurrency(), err)
	}

	s.cancelOpenOrders(ctx)

	// Balance is re-read after cancellation so funds released by the
	// cancels are available to the new grid.
	available, err := s.gateway.GetBalance(ctx, s.balanceCurrency())
	if err != nil {
		return fmt.Errorf("balance %s: %w", s.balanceCurrency(), err)
	}

	levels := s.planner.Plan(price, available)
	if len(levels) == 0 {
		reason := s.planner.SkipReason(price, available)
		if reason == "" {
			reason = metrics.SkipReasonBalance
		}
		metrics.CyclesSkipped.WithLabelValues(reason).Inc()
		s.logger.Info("skipping placement",
			"reason", reason,
			"reference_price", price,
			"available", available,
		)
	} else {
		s.placeLevels(ctx, levels)
	}

	s.mu.Lock()
	s.state.CycleCount++
	s.state.LastReferencePrice = price
	s.state.LastCycleAt = time.Now()
	s.mu.Unlock()

	metrics.CyclesTotal.Inc()
	return nil
}

// CancelOpenOrders cancels everything the ledger still considers open. Used
// inside each cycle and once more on shutdown when cancel_on_exit is set.
func (s *Scheduler) CancelOpenOrders(ctx context.Context) {
	s.cancelOpenOrders(ctx)
}

func (s *Scheduler) cancelOpenOrders(ctx context.Context) {
	for _, order := range s.ledger.OpenOrders() {
		if ctx.Err() != nil {
			return
		}

		outcome, err := s.gateway.CancelOrder(ctx, order.Pair, order.ID)
		if err != nil {
			// Leave the order in the ledger; the next cycle retries.
			s.logger.Error("cancel failed", "order_id", order.ID, "error", err)
			continue
		}

		switch outcome {
		case core.CancelOutcomeCanceled:
			s.onCanceled(ctx, order)
		case core.CancelOutcomeAlreadyExecuted:
			s.onExecutedDuringCancel(ctx, order)
		case core.CancelOutcomeNotFound:
			s.logger.Warn("order unknown to venue, dropping from ledger", "order_id", order.ID)
			if err := s.ledger.Forget(order.ID); err != nil {
				s.logger.Error("failed to drop order", "order_id", order.ID, "error", err)
			}
		}
	}
}

func (s *Scheduler) onCanceled(ctx context.Context, order *core.Order) {
	now := time.Now()
	if err := s.ledger.MarkCanceled(order.ID, now); err != nil {
		s.logger.Error("failed to mark order canceled", "order_id", order.ID, "error", err)
		return
	}
	metrics.OrdersCanceled.Inc()
	s.logger.Info("order canceled", "order_id", order.ID, "price", order.LimitPrice)

	updated, err := s.ledger.Get(order.ID)
	if err != nil {
		return
	}
	s.record(ctx, updated, order.Side.CanceledOp())
}

// onExecutedDuringCancel reconciles a fill that won the race against our
// cancel. The venue's view is authoritative; the fetched execution details
// overwrite the ledger.
func (s *Scheduler) onExecutedDuringCancel(ctx context.Context, order *core.Order) {
	metrics.OrdersExecutedOnCancel.Inc()

	executedQty := order.RequestedQty
	avgPrice := order.LimitPrice
	fee := decimal.Zero

	venueOrder, err := s.gateway.GetOrder(ctx, order.Pair, order.ID)
	if err != nil {
		s.logger.Warn("could not fetch execution details, assuming full fill at limit price",
			"order_id", order.ID, "error", err)
	} else {
		executedQty = venueOrder.ExecutedQty
		avgPrice = venueOrder.ExecutedPriceAvg
		fee = venueOrder.Fee
	}

	if err := s.ledger.MarkExecuted(order.ID, executedQty, avgPrice, fee); err != nil {
		s.logger.Error("failed to mark order executed", "order_id", order.ID, "error", err)
		return
	}
	s.logger.Info("order filled before cancel",
		"order_id", order.ID,
		"executed_qty", executedQty,
		"executed_price_avg", avgPrice,
	)

	updated, err := s.ledger.Get(order.ID)
	if err != nil {
		return
	}
	if err := s.recorder.RecordOrder(ctx, updated); err != nil {
		s.logger.Warn("failed to record order", "order_id", updated.ID, "error", err)
	}
}

func (s *Scheduler) placeLevels(ctx context.Context, levels []grid.Level) {
	for _, level := range levels {
		if ctx.Err() != nil {
			return
		}

		order, err := s.gateway.PlaceLimitOrder(ctx, s.cfg.Pair, s.cfg.Side, level.Price, level.Quantity)
		if err != nil {
			// One rejected level must not sink the rest of the grid.
			metrics.PlacementFailures.Inc()
			s.logger.Error("placement failed",
				"level", level.Index,
				"price", level.Price,
				"quantity", level.Quantity,
				"error", err,
			)
			continue
		}

		if err := s.ledger.Record(order); err != nil {
			s.logger.Error("failed to track placed order", "order_id", order.ID, "error", err)
		}
		metrics.OrdersPlaced.WithLabelValues(string(s.cfg.Side)).Inc()
		s.logger.Info("order placed",
			"order_id", order.ID,
			"level", level.Index,
			"price", order.LimitPrice,
			"quantity", order.RequestedQty,
		)

		s.record(ctx, order, s.cfg.Side.CreatedOp())
	}
}

// record persists an order snapshot and its lifecycle event. Persistence
// failures are logged and swallowed: the audit trail must never stop the
// trading loop.
func (s *Scheduler) record(ctx context.Context, order *core.Order, operationType string) {
	if err := s.recorder.RecordOrder(ctx, order); err != nil {
		s.logger.Warn("failed to record order", "order_id", order.ID, "error", err)
	}
	if err := s.recorder.RecordEvent(ctx, &core.Event{
		OperationType: operationType,
		OrderID:       order.ID,
		Pair:          order.Pair,
		Quantity:      order.RequestedQty,
		Price:         order.LimitPrice,
		CreatedAt:     time.Now(),
	}); err != nil {
		s.logger.Warn("failed to record event", "order_id", order.ID, "error", err)
	}
}

func (s *Scheduler) balanceCurrency() string {
	if s.cfg.Side == core.SideSell {
		return s.cfg.BaseCurrency
	}
	return s.cfg.QuoteCurrency
}
