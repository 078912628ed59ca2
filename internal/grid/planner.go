// Package grid computes the ladder of limit orders quoted each cycle.
package grid

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
)

var oneHundred = decimal.NewFromInt(100)

// Config holds the immutable per-run grid parameters.
type Config struct {
	Pair          string
	Side          core.Side
	SplitCount    int
	SpreadPercent decimal.Decimal
	// MinBalance is the quote-currency floor below which a BUY grid skips
	// placement. For SELL grids MinQuantity plays the same role in asset units.
	MinBalance  decimal.Decimal
	MinQuantity decimal.Decimal
	// StartValue caps BUY entries: while the reference price is at or above
	// it, no buy orders are placed. Zero disables the cap.
	StartValue    decimal.Decimal
	PriceDecimals int32
	QtyDecimals   int32
}

// Validate checks the parameters that make a grid computable.
func (c Config) Validate() error {
	if c.Pair == "" {
		return fmt.Errorf("grid: pair is required")
	}
	if c.Side != core.SideBuy && c.Side != core.SideSell {
		return fmt.Errorf("grid: side must be BUY or SELL, got %q", c.Side)
	}
	if c.SplitCount < 1 {
		return fmt.Errorf("grid: split count must be >= 1, got %d", c.SplitCount)
	}
	if !c.SpreadPercent.IsPositive() {
		return fmt.Errorf("grid: spread percent must be positive, got %s", c.SpreadPercent)
	}
	// A spread of 100%/splitCount or more would push the furthest BUY level
	// to zero or below; the ladder must stay strictly monotonic and positive.
	if c.Side == core.SideBuy && c.SpreadPercent.Mul(decimal.NewFromInt(int64(c.SplitCount))).GreaterThanOrEqual(oneHundred) {
		return fmt.Errorf("grid: split_count x spread_percent must stay below 100 on the buy side")
	}
	if c.PriceDecimals < 0 || c.QtyDecimals < 0 {
		return fmt.Errorf("grid: decimals must not be negative")
	}
	return nil
}

// Level is one rung of the grid. Index 0 sits closest to the reference
// price; cancellation and funding process levels in index order so the
// levels most likely to fill are funded first.
type Level struct {
	Index    int
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Planner computes grid levels from a reference price and the available
// balance. It holds no mutable state: identical inputs produce identical
// plans.
type Planner struct {
	cfg Config
}

func NewPlanner(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Plan returns the levels to quote this cycle, ordered from closest to
// furthest from the reference price. An empty plan means "skip placement":
// the balance guard failed or (BUY with StartValue set) the market is above
// the entry cap. The caller is still expected to cancel stale orders.
func (p *Planner) Plan(referencePrice, available decimal.Decimal) []Level {
	if !referencePrice.IsPositive() {
		return nil
	}
	if p.guardFails(referencePrice, available) {
		return nil
	}

	orderSize := available.Div(decimal.NewFromInt(int64(p.cfg.SplitCount)))

	levels := make([]Level, 0, p.cfg.SplitCount)
	for i := 0; i < p.cfg.SplitCount; i++ {
		offset := p.cfg.SpreadPercent.Mul(decimal.NewFromInt(int64(i + 1))).Div(oneHundred)

		var price decimal.Decimal
		if p.cfg.Side == core.SideBuy {
			price = referencePrice.Mul(decimal.NewFromInt(1).Sub(offset))
		} else {
			price = referencePrice.Mul(decimal.NewFromInt(1).Add(offset))
		}
		price = roundDown(price, p.cfg.PriceDecimals)

		var qty decimal.Decimal
		if p.cfg.Side == core.SideBuy {
			if !price.IsPositive() {
				continue
			}
			qty = roundDown(orderSize.Div(price), p.cfg.QtyDecimals)
		} else {
			qty = roundDown(orderSize, p.cfg.QtyDecimals)
		}

		// Venue rejects zero-size or zero-price orders; dropping the level is
		// cheaper than a guaranteed rejection.
		if !price.IsPositive() || !qty.IsPositive() {
			continue
		}

		levels = append(levels, Level{Index: i, Price: price, Quantity: qty})
	}

	return levels
}

// SkipReason names the guard an empty plan tripped, or "" when no guard
// applies to the inputs.
func (p *Planner) SkipReason(referencePrice, available decimal.Decimal) string {
	if p.cfg.Side == core.SideBuy {
		if available.LessThan(p.cfg.MinBalance) {
			return "balance_guard"
		}
		if p.cfg.StartValue.IsPositive() && referencePrice.GreaterThanOrEqual(p.cfg.StartValue) {
			return "start_value_guard"
		}
		return ""
	}
	if available.LessThan(p.cfg.MinQuantity) {
		return "balance_guard"
	}
	return ""
}

func (p *Planner) guardFails(referencePrice, available decimal.Decimal) bool {
	return p.SkipReason(referencePrice, available) != ""
}

// roundDown truncates toward zero at the given number of decimals, matching
// the venue's own truncation of prices and quantities.
func roundDown(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundFloor(places)
}
