package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/grid"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/ledger"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/mock"
	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/oracle"
	"github.com/marcosgabbardo/mercadobitcoin-grid/pkg/logging"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	scheduler *Scheduler
	gateway   *mock.Gateway
	recorder  *mock.Recorder
	ledger    *ledger.Ledger
}

func newFixture(t *testing.T, side core.Side) *fixture {
	t.Helper()

	gw := mock.NewGateway()
	gw.SetTicker(&core.Ticker{
		Pair:    "BRLBTC",
		Last:    dec("100000"),
		BestBid: dec("99800"),
		BestAsk: dec("100200"),
	})
	gw.SetBalance("brl", dec("30000"))
	gw.SetBalance("btc", dec("0.3"))

	planner := grid.NewPlanner(grid.Config{
		Pair:          "BRLBTC",
		Side:          side,
		SplitCount:    3,
		SpreadPercent: dec("1.5"),
		MinBalance:    dec("100"),
		MinQuantity:   dec("0.001"),
		PriceDecimals: 5,
		QtyDecimals:   7,
	})

	rec := mock.NewRecorder()
	lgr := ledger.New()

	s := New(Config{
		Pair:          "BRLBTC",
		Side:          side,
		QuoteCurrency: "brl",
		BaseCurrency:  "btc",
		PollInterval:  5 * time.Millisecond,
	}, planner, gw, oracle.NewTickerOracle(gw, logging.NewNop()), rec, lgr, logging.NewNop())

	return &fixture{scheduler: s, gateway: gw, recorder: rec, ledger: lgr}
}

func TestRunCyclePlacesGrid(t *testing.T) {
	f := newFixture(t, core.SideBuy)

	require.NoError(t, f.scheduler.RunCycle(context.Background()))

	open := f.ledger.OpenOrders()
	require.Len(t, open, 3)
	assert.True(t, open[0].LimitPrice.Equal(dec("98500")))
	assert.True(t, open[1].LimitPrice.Equal(dec("97000")))
	assert.True(t, open[2].LimitPrice.Equal(dec("95500")))

	created := f.recorder.EventsOfType(core.OpBuyCreated)
	assert.Len(t, created, 3)
	assert.Len(t, f.recorder.Orders(), 3)

	state := f.scheduler.State()
	assert.Equal(t, int64(1), state.CycleCount)
	assert.True(t, state.LastReferencePrice.Equal(dec("100000")))
}

func TestRunCycleCancelsBeforePlacing(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	ctx := context.Background()

	require.NoError(t, f.scheduler.RunCycle(ctx))
	firstIDs := make([]string, 0, 3)
	for _, o := range f.ledger.OpenOrders() {
		firstIDs = append(firstIDs, o.ID)
	}

	require.NoError(t, f.scheduler.RunCycle(ctx))

	// Every cancel of the second cycle must precede its first placement.
	// The first cycle contributes ticker, two balance reads and three
	// placements.
	secondCycle := f.gateway.CallLog()[6:]
	lastCancel, firstPlace := -1, -1
	for i, call := range secondCycle {
		if strings.HasPrefix(call, "cancel:") {
			lastCancel = i
		}
		if strings.HasPrefix(call, "place:") && firstPlace == -1 {
			firstPlace = i
		}
	}
	require.NotEqual(t, -1, lastCancel)
	require.NotEqual(t, -1, firstPlace)
	assert.Less(t, lastCancel, firstPlace, "cancellations must complete before new placements")

	// First grid fully replaced.
	open := f.ledger.OpenOrders()
	require.Len(t, open, 3)
	for _, o := range open {
		assert.NotContains(t, firstIDs, o.ID)
	}

	canceled := f.recorder.EventsOfType(core.OpBuyCanceled)
	assert.Len(t, canceled, 3)
}

func TestRunCycleSellSide(t *testing.T) {
	f := newFixture(t, core.SideSell)

	require.NoError(t, f.scheduler.RunCycle(context.Background()))

	open := f.ledger.OpenOrders()
	require.Len(t, open, 3)
	// SELL anchors on best bid 99800.
	assert.True(t, open[0].LimitPrice.Equal(dec("101297")))
	for _, o := range open {
		assert.Equal(t, core.SideSell, o.Side)
		assert.True(t, o.RequestedQty.Equal(dec("0.1")))
	}
	assert.Len(t, f.recorder.EventsOfType(core.OpSellCreated), 3)
}

func TestFillWinningCancelRace(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	ctx := context.Background()

	require.NoError(t, f.scheduler.RunCycle(ctx))
	victim := f.ledger.OpenOrders()[0]
	f.gateway.FillOnCancel(victim.ID)

	require.NoError(t, f.scheduler.RunCycle(ctx))

	got, err := f.ledger.Get(victim.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusExecuted, got.Status)
	assert.True(t, got.ExecutedQty.Equal(victim.RequestedQty))
	assert.True(t, got.ExecutedPriceAvg.Equal(victim.LimitPrice))
	assert.True(t, got.Fee.IsPositive())

	// The filled order produced no cancellation event.
	for _, e := range f.recorder.EventsOfType(core.OpBuyCanceled) {
		assert.NotEqual(t, victim.ID, e.OrderID)
	}
	assert.Len(t, f.recorder.EventsOfType(core.OpBuyCanceled), 2)
}

func TestOrderUnknownToVenueIsDropped(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	ctx := context.Background()

	require.NoError(t, f.scheduler.RunCycle(ctx))
	victim := f.ledger.OpenOrders()[0]
	f.gateway.VanishOnCancel(victim.ID)

	require.NoError(t, f.scheduler.RunCycle(ctx))

	_, err := f.ledger.Get(victim.ID)
	assert.Error(t, err)
	assert.Len(t, f.ledger.OpenOrders(), 3)
}

func TestCancelFailureKeepsOrderForRetry(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	ctx := context.Background()

	require.NoError(t, f.scheduler.RunCycle(ctx))
	f.gateway.SetCancelError(errors.New("venue timeout"))

	require.NoError(t, f.scheduler.RunCycle(ctx))

	// The three stale orders stay open alongside the fresh grid; the next
	// cycle retries their cancellation.
	assert.Len(t, f.ledger.OpenOrders(), 6)

	f.gateway.SetCancelError(nil)
	require.NoError(t, f.scheduler.RunCycle(ctx))
	assert.Len(t, f.ledger.OpenOrders(), 3)
}

func TestMarketDataFailureSkipsWholeCycle(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	ctx := context.Background()

	require.NoError(t, f.scheduler.RunCycle(ctx))
	require.Len(t, f.ledger.OpenOrders(), 3)
	callsBefore := len(f.gateway.CallLog())

	f.gateway.SetTickerError(errors.New("connection refused"))
	err := f.scheduler.RunCycle(ctx)
	assert.Error(t, err)

	// No cancel, no placement: the failed evaluation is the only call.
	newCalls := f.gateway.CallLog()[callsBefore:]
	for _, call := range newCalls {
		assert.False(t, strings.HasPrefix(call, "cancel:"), "unexpected %s", call)
		assert.False(t, strings.HasPrefix(call, "place:"), "unexpected %s", call)
	}
	assert.Len(t, f.ledger.OpenOrders(), 3)
	assert.Equal(t, int64(1), f.scheduler.State().CycleCount)
}

func TestBalanceFailureSkipsWholeCycle(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	ctx := context.Background()

	require.NoError(t, f.scheduler.RunCycle(ctx))
	f.gateway.SetBalanceError(errors.New("venue timeout"))

	err := f.scheduler.RunCycle(ctx)
	assert.Error(t, err)
	assert.Len(t, f.ledger.OpenOrders(), 3)
}

func TestBalanceGuardSkipsPlacement(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	f.gateway.SetBalance("brl", dec("99.99"))

	require.NoError(t, f.scheduler.RunCycle(context.Background()))

	assert.Empty(t, f.ledger.OpenOrders())
	assert.Equal(t, int64(1), f.scheduler.State().CycleCount)
}

func TestPlacementFailureDoesNotSinkGrid(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	f.gateway.RejectPlacement(1, errors.New("order rejected"))

	require.NoError(t, f.scheduler.RunCycle(context.Background()))

	open := f.ledger.OpenOrders()
	require.Len(t, open, 2)
	assert.True(t, open[0].LimitPrice.Equal(dec("98500")))
	assert.True(t, open[1].LimitPrice.Equal(dec("95500")))
}

func TestRecorderFailureIsNonFatal(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	f.recorder.SetError(errors.New("disk full"))

	require.NoError(t, f.scheduler.RunCycle(context.Background()))
	assert.Len(t, f.ledger.OpenOrders(), 3)
}

func TestCancelOpenOrdersOnShutdown(t *testing.T) {
	f := newFixture(t, core.SideBuy)
	ctx := context.Background()

	require.NoError(t, f.scheduler.RunCycle(ctx))
	require.Len(t, f.ledger.OpenOrders(), 3)

	f.scheduler.CancelOpenOrders(ctx)

	assert.Empty(t, f.ledger.OpenOrders())
	assert.Zero(t, f.gateway.OpenOrderCount())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, core.SideBuy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.scheduler.Run(ctx)
	}()

	// Let at least one cycle complete.
	require.Eventually(t, func() bool {
		return f.scheduler.State().CycleCount >= 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
