// Package core defines the shared types and interfaces of the grid bot.
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IOrderGateway is the narrow boundary to the exchange's authenticated API.
// Implementations map venue responses onto the apperrors taxonomy; the
// scheduler never parses venue payloads itself.
type IOrderGateway interface {
	// GetBalance returns the available (not locked in orders) balance for a
	// currency, e.g. "brl" or "btc".
	GetBalance(ctx context.Context, currency string) (decimal.Decimal, error)

	// GetTicker returns the current quote for a pair.
	GetTicker(ctx context.Context, pair string) (*Ticker, error)

	// PlaceLimitOrder places a maker limit order and returns the venue's view
	// of it, including the venue-assigned order ID.
	PlaceLimitOrder(ctx context.Context, pair string, side Side, price, quantity decimal.Decimal) (*Order, error)

	// CancelOrder requests cancellation. A fill can race the cancel; the
	// returned outcome is authoritative and must be trusted over local state.
	CancelOrder(ctx context.Context, pair, orderID string) (CancelOutcome, error)

	// GetOrder fetches the venue's current view of an order, used to
	// reconcile execution details after a cancel reports AlreadyExecuted.
	GetOrder(ctx context.Context, pair, orderID string) (*Order, error)
}

// IPriceOracle produces the reference price the grid is centered on.
type IPriceOracle interface {
	ReferencePrice(ctx context.Context, pair string, side Side) (decimal.Decimal, error)
}

// IEventRecorder is the audit sink for order lifecycle transitions.
// Recording is best effort: implementations may fail, the scheduler logs and
// continues, and trading logic is never blocked on persistence.
type IEventRecorder interface {
	RecordEvent(ctx context.Context, event *Event) error
	RecordOrder(ctx context.Context, order *Order) error
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
