// Package mock provides in-memory fakes for the gateway and recorder, used
// by tests and by the "mock" exchange mode for dry runs.
package mock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	apperrors "github.com/marcosgabbardo/mercadobitcoin-grid/pkg/errors"
)

// Gateway is a scriptable in-memory venue. Tests configure balances, the
// ticker and failure behavior, then assert on the recorded call sequence.
type Gateway struct {
	mu sync.Mutex

	balances map[string]decimal.Decimal
	ticker   *core.Ticker
	orders   map[string]*core.Order
	nextID   int64

	// Failure scripting.
	tickerErr       error
	balanceErr      error
	placeErr        error
	cancelErr       error
	rejectPlacement map[int]error // placement call index -> error

	// fillOnCancel marks order IDs whose cancel reports AlreadyExecuted.
	fillOnCancel map[string]bool
	// vanishOnCancel marks order IDs whose cancel reports NotFound.
	vanishOnCancel map[string]bool

	placeCalls int
	callLog    []string
}

func NewGateway() *Gateway {
	return &Gateway{
		balances:        make(map[string]decimal.Decimal),
		orders:          make(map[string]*core.Order),
		nextID:          1000,
		rejectPlacement: make(map[int]error),
		fillOnCancel:    make(map[string]bool),
		vanishOnCancel:  make(map[string]bool),
	}
}

// SetBalance scripts the available balance of a currency.
func (g *Gateway) SetBalance(currency string, available decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balances[currency] = available
}

// SetTicker scripts the ticker returned to the oracle.
func (g *Gateway) SetTicker(t *core.Ticker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ticker = t
}

// SetTickerError makes GetTicker fail.
func (g *Gateway) SetTickerError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tickerErr = err
}

// SetBalanceError makes GetBalance fail.
func (g *Gateway) SetBalanceError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.balanceErr = err
}

// SetCancelError makes every CancelOrder fail.
func (g *Gateway) SetCancelError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelErr = err
}

// RejectPlacement makes the n-th PlaceLimitOrder call (0-based) fail.
func (g *Gateway) RejectPlacement(call int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectPlacement[call] = err
}

// FillOnCancel scripts a fill winning the cancel race for an order.
func (g *Gateway) FillOnCancel(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fillOnCancel[orderID] = true
}

// VanishOnCancel scripts the venue forgetting an order.
func (g *Gateway) VanishOnCancel(orderID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vanishOnCancel[orderID] = true
}

// CallLog returns the sequence of gateway operations, e.g. "cancel:1001",
// "place:BUY:98500".
func (g *Gateway) CallLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.callLog...)
}

// OpenOrderCount returns how many scripted orders still rest on the book.
func (g *Gateway) OpenOrderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, o := range g.orders {
		if o.Status.IsOpen() {
			n++
		}
	}
	return n
}

func (g *Gateway) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.callLog = append(g.callLog, "balance:"+currency)
	if g.balanceErr != nil {
		return decimal.Zero, g.balanceErr
	}
	return g.balances[currency], nil
}

func (g *Gateway) GetTicker(ctx context.Context, pair string) (*core.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.callLog = append(g.callLog, "ticker:"+pair)
	if g.tickerErr != nil {
		return nil, g.tickerErr
	}
	if g.ticker == nil {
		return nil, apperrors.ErrMarketDataUnavailable
	}
	cp := *g.ticker
	return &cp, nil
}

func (g *Gateway) PlaceLimitOrder(ctx context.Context, pair string, side core.Side, price, quantity decimal.Decimal) (*core.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	call := g.placeCalls
	g.placeCalls++
	g.callLog = append(g.callLog, fmt.Sprintf("place:%s:%s", side, price))

	if g.placeErr != nil {
		return nil, g.placeErr
	}
	if err, ok := g.rejectPlacement[call]; ok {
		return nil, err
	}

	g.nextID++
	now := time.Now()
	order := &core.Order{
		ID:           strconv.FormatInt(g.nextID, 10),
		Pair:         pair,
		Side:         side,
		LimitPrice:   price,
		RequestedQty: quantity,
		Status:       core.StatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	g.orders[order.ID] = order

	cp := *order
	return &cp, nil
}

func (g *Gateway) CancelOrder(ctx context.Context, pair, orderID string) (core.CancelOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.callLog = append(g.callLog, "cancel:"+orderID)
	if g.cancelErr != nil {
		return core.CancelOutcomeNotFound, g.cancelErr
	}

	if g.vanishOnCancel[orderID] {
		delete(g.orders, orderID)
		return core.CancelOutcomeNotFound, nil
	}

	order, ok := g.orders[orderID]
	if !ok {
		return core.CancelOutcomeNotFound, nil
	}

	if g.fillOnCancel[orderID] {
		order.Status = core.StatusExecuted
		order.ExecutedQty = order.RequestedQty
		order.ExecutedPriceAvg = order.LimitPrice
		order.Fee = order.RequestedQty.Mul(decimal.RequireFromString("0.003"))
		order.UpdatedAt = time.Now()
		return core.CancelOutcomeAlreadyExecuted, nil
	}

	now := time.Now()
	order.Status = core.StatusCanceled
	order.CanceledAt = &now
	order.UpdatedAt = now
	return core.CancelOutcomeCanceled, nil
}

func (g *Gateway) GetOrder(ctx context.Context, pair, orderID string) (*core.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.callLog = append(g.callLog, "get:"+orderID)
	order, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	cp := *order
	return &cp, nil
}
