package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the grid direction. One scheduler run quotes exactly one side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// CreatedOp returns the operation type recorded when an order on this side
// is placed.
func (s Side) CreatedOp() string {
	if s == SideSell {
		return OpSellCreated
	}
	return OpBuyCreated
}

// CanceledOp returns the operation type recorded when an order on this side
// is canceled.
func (s Side) CanceledOp() string {
	if s == SideSell {
		return OpSellCanceled
	}
	return OpBuyCanceled
}

// OrderStatus follows the venue-confirmed lifecycle. The scheduler never
// advances a status without a gateway response backing it.
type OrderStatus string

const (
	StatusCreated           OrderStatus = "created"
	StatusPartiallyExecuted OrderStatus = "partially_executed"
	StatusExecuted          OrderStatus = "executed"
	StatusCanceled          OrderStatus = "canceled"
	StatusFailed            OrderStatus = "failed"
)

// IsOpen reports whether an order with this status still rests on the book.
// Partially executed orders are treated like open ones: they are canceled
// and re-quoted together with the rest of the grid.
func (s OrderStatus) IsOpen() bool {
	return s == StatusCreated || s == StatusPartiallyExecuted
}

// CancelOutcome is the venue's verdict on a cancellation request.
type CancelOutcome int

const (
	CancelOutcomeCanceled CancelOutcome = iota
	CancelOutcomeAlreadyExecuted
	CancelOutcomeNotFound
)

func (c CancelOutcome) String() string {
	switch c {
	case CancelOutcomeCanceled:
		return "canceled"
	case CancelOutcomeAlreadyExecuted:
		return "already_executed"
	case CancelOutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Order is a single grid order as known to this run.
type Order struct {
	ID               string
	Pair             string
	Side             Side
	LimitPrice       decimal.Decimal
	RequestedQty     decimal.Decimal
	ExecutedQty      decimal.Decimal
	ExecutedPriceAvg decimal.Decimal
	Fee              decimal.Decimal
	Status           OrderStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CanceledAt       *time.Time
}

// Ticker is the venue's current quote for a pair.
type Ticker struct {
	Pair    string
	Last    decimal.Decimal
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
}

// Operation types recorded for each order lifecycle transition.
const (
	OpBuyCreated   = "BUY_CREATED"
	OpBuyCanceled  = "BUY_CANCELED"
	OpSellCreated  = "SELL_CREATED"
	OpSellCanceled = "SELL_CANCELED"
)

// Event is one entry of the operations audit log.
type Event struct {
	OperationType string
	OrderID       string
	Pair          string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Details       string
	CreatedAt     time.Time
}
