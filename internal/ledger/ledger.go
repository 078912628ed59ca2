// Package ledger tracks the orders this process has placed and not yet
// resolved. It is the scheduler's working set, not an audit trail: state
// survives only as long as the process, and the venue remains the source of
// truth for every transition.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	apperrors "github.com/marcosgabbardo/mercadobitcoin-grid/pkg/errors"
)

// Ledger is an in-memory registry of this run's orders, keyed by the
// venue-assigned order ID. Iteration follows insertion order so cancels are
// issued oldest-first. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	orders  map[string]*core.Order
	ordered []string
}

func New() *Ledger {
	return &Ledger{
		orders: make(map[string]*core.Order),
	}
}

// Record registers a freshly placed order. Re-recording an existing ID
// replaces the stored copy without changing its position.
func (l *Ledger) Record(order *core.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("ledger: order must have a venue-assigned ID")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *order
	if _, exists := l.orders[order.ID]; !exists {
		l.ordered = append(l.ordered, order.ID)
	}
	l.orders[order.ID] = &cp
	return nil
}

// MarkCanceled transitions an order to canceled after the venue confirmed
// the cancellation.
func (l *Ledger) MarkCanceled(orderID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[orderID]
	if !ok {
		return fmt.Errorf("ledger: order %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	order.Status = core.StatusCanceled
	order.CanceledAt = &at
	order.UpdatedAt = at
	return nil
}

// MarkExecuted records that the venue filled an order, with the execution
// details reported by the venue.
func (l *Ledger) MarkExecuted(orderID string, executedQty, avgPrice, fee decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[orderID]
	if !ok {
		return fmt.Errorf("ledger: order %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	order.Status = core.StatusExecuted
	order.ExecutedQty = executedQty
	order.ExecutedPriceAvg = avgPrice
	order.Fee = fee
	order.UpdatedAt = time.Now()
	return nil
}

// Forget removes an order the venue no longer knows about. Unlike
// MarkCanceled it leaves no terminal record, matching the venue's own
// amnesia.
func (l *Ledger) Forget(orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.orders[orderID]; !ok {
		return fmt.Errorf("ledger: order %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	delete(l.orders, orderID)
	for i, id := range l.ordered {
		if id == orderID {
			l.ordered = append(l.ordered[:i], l.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of the order, or ErrOrderNotFound.
func (l *Ledger) Get(orderID string) (*core.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("ledger: order %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	cp := *order
	return &cp, nil
}

// OpenOrders returns copies of the orders still resting on the book, in
// insertion order.
func (l *Ledger) OpenOrders() []*core.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	open := make([]*core.Order, 0, len(l.ordered))
	for _, id := range l.ordered {
		order := l.orders[id]
		if order.Status.IsOpen() {
			cp := *order
			open = append(open, &cp)
		}
	}
	return open
}

// Len returns the total number of tracked orders, terminal ones included.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}
