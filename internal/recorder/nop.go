package recorder

import (
	"context"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
)

// NopRecorder discards everything, used when storage is disabled.
type NopRecorder struct{}

func NewNopRecorder() *NopRecorder {
	return &NopRecorder{}
}

func (NopRecorder) RecordEvent(ctx context.Context, event *core.Event) error { return nil }

func (NopRecorder) RecordOrder(ctx context.Context, order *core.Order) error { return nil }
