// Package oracle produces the reference price each grid cycle is centered on.
package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	apperrors "github.com/marcosgabbardo/mercadobitcoin-grid/pkg/errors"
)

// TickerSource is the slice of the gateway the oracle needs.
type TickerSource interface {
	GetTicker(ctx context.Context, pair string) (*core.Ticker, error)
}

// TickerOracle derives the reference price from a fresh ticker fetch.
//
// BUY grids anchor on the last trade price so the ladder follows where the
// market actually printed. SELL grids anchor on the best bid, the price a
// seller could realistically hit right now.
type TickerOracle struct {
	source TickerSource
	logger core.ILogger
}

func NewTickerOracle(source TickerSource, logger core.ILogger) *TickerOracle {
	return &TickerOracle{
		source: source,
		logger: logger.WithField("component", "oracle"),
	}
}

func (o *TickerOracle) ReferencePrice(ctx context.Context, pair string, side core.Side) (decimal.Decimal, error) {
	ticker, err := o.source.GetTicker(ctx, pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch ticker for %s: %w", pair, err)
	}

	price := referenceFromTicker(ticker, side)
	if !price.IsPositive() {
		o.logger.Warn("ticker returned non-positive reference price",
			"pair", pair,
			"side", side,
			"last", ticker.Last,
			"best_bid", ticker.BestBid,
		)
		return decimal.Zero, fmt.Errorf("pair %s: %w", pair, apperrors.ErrMarketDataUnavailable)
	}

	o.logger.Debug("reference price resolved", "pair", pair, "side", side, "price", price)
	return price, nil
}

func referenceFromTicker(t *core.Ticker, side core.Side) decimal.Decimal {
	if side == core.SideSell {
		return t.BestBid
	}
	return t.Last
}
