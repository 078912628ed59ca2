package mock

import (
	"context"
	"sync"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
)

// Recorder captures recorded events and orders in memory. An optional
// scripted error simulates a broken audit sink.
type Recorder struct {
	mu     sync.Mutex
	events []core.Event
	orders []core.Order
	err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// SetError makes every recording call fail.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) RecordEvent(ctx context.Context, event *core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *Recorder) RecordOrder(ctx context.Context, order *core.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.orders = append(r.orders, *order)
	return nil
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// Orders returns a copy of the captured order snapshots.
func (r *Recorder) Orders() []core.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Order(nil), r.orders...)
}

// EventsOfType filters captured events by operation type.
func (r *Recorder) EventsOfType(operationType string) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Event
	for _, e := range r.events {
		if e.OperationType == operationType {
			out = append(out, e)
		}
	}
	return out
}
