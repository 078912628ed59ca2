package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	"github.com/marcosgabbardo/mercadobitcoin-grid/pkg/websocket"
)

// ParseFunc extracts a ticker from a raw stream message. Messages that are
// not ticker updates (heartbeats, subscription acks) return (nil, nil).
type ParseFunc func(message []byte) (*core.Ticker, error)

// StreamOracle keeps a websocket-fed ticker cache and answers reference
// price queries from it. When the cache is older than maxAge, typically
// because the stream is reconnecting, it falls through to a slower oracle
// so a flaky stream degrades to polling instead of halting the grid.
type StreamOracle struct {
	client   *websocket.Client
	parse    ParseFunc
	fallback core.IPriceOracle
	maxAge   time.Duration
	logger   core.ILogger

	mu        sync.RWMutex
	ticker    core.Ticker
	updatedAt time.Time

	now func() time.Time
}

// NewStreamOracle builds a StreamOracle subscribed at url. The subscribe
// payload is re-sent on every (re)connection.
func NewStreamOracle(url string, subscribe interface{}, parse ParseFunc, fallback core.IPriceOracle, maxAge time.Duration, logger core.ILogger) *StreamOracle {
	o := &StreamOracle{
		parse:    parse,
		fallback: fallback,
		maxAge:   maxAge,
		logger:   logger.WithField("component", "stream_oracle"),
		now:      time.Now,
	}

	client := websocket.NewClient(url, o.handleMessage, logger)
	client.SetOnConnected(func() {
		if err := client.Send(subscribe); err != nil {
			o.logger.Error("failed to send stream subscription", "error", err)
		}
	})
	o.client = client
	return o
}

// Start begins consuming the stream.
func (o *StreamOracle) Start() {
	o.client.Start()
}

// Stop tears the stream down.
func (o *StreamOracle) Stop() {
	o.client.Stop()
}

func (o *StreamOracle) handleMessage(message []byte) {
	ticker, err := o.parse(message)
	if err != nil {
		o.logger.Warn("failed to parse stream message", "error", err)
		return
	}
	if ticker == nil {
		return
	}

	o.mu.Lock()
	o.ticker = *ticker
	o.updatedAt = o.now()
	o.mu.Unlock()
}

func (o *StreamOracle) ReferencePrice(ctx context.Context, pair string, side core.Side) (decimal.Decimal, error) {
	o.mu.RLock()
	ticker := o.ticker
	age := o.now().Sub(o.updatedAt)
	fresh := !o.updatedAt.IsZero() && age <= o.maxAge
	o.mu.RUnlock()

	if fresh {
		price := referenceFromTicker(&ticker, side)
		if price.IsPositive() {
			return price, nil
		}
	}

	o.logger.Debug("stream cache stale, falling back", "pair", pair, "age", age)
	return o.fallback.ReferencePrice(ctx, pair, side)
}
