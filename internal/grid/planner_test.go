package grid

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buyConfig() Config {
	return Config{
		Pair:          "BRLBTC",
		Side:          core.SideBuy,
		SplitCount:    3,
		SpreadPercent: dec("1.5"),
		MinBalance:    dec("100"),
		PriceDecimals: 5,
		QtyDecimals:   7,
	}
}

func TestPlanBuyLevels(t *testing.T) {
	p := NewPlanner(buyConfig())

	levels := p.Plan(dec("100000"), dec("30000"))
	require.Len(t, levels, 3)

	assert.True(t, levels[0].Price.Equal(dec("98500")), "got %s", levels[0].Price)
	assert.True(t, levels[1].Price.Equal(dec("97000")), "got %s", levels[1].Price)
	assert.True(t, levels[2].Price.Equal(dec("95500")), "got %s", levels[2].Price)

	// Each level is funded with available/splitCount of quote currency,
	// converted at its own limit price and truncated to 7 decimals.
	assert.True(t, levels[0].Quantity.Equal(dec("0.1015228")), "got %s", levels[0].Quantity)
	assert.True(t, levels[1].Quantity.Equal(dec("0.1030927")), "got %s", levels[1].Quantity)
	assert.True(t, levels[2].Quantity.Equal(dec("0.1047120")), "got %s", levels[2].Quantity)

	for i, lvl := range levels {
		assert.Equal(t, i, lvl.Index)
	}
}

func TestPlanSellLevels(t *testing.T) {
	cfg := buyConfig()
	cfg.Side = core.SideSell
	cfg.SplitCount = 4
	cfg.SpreadPercent = dec("0.5")
	cfg.MinQuantity = dec("0.001")
	p := NewPlanner(cfg)

	levels := p.Plan(dec("100000"), dec("0.4"))
	require.Len(t, levels, 4)

	assert.True(t, levels[0].Price.Equal(dec("100500")))
	assert.True(t, levels[1].Price.Equal(dec("101000")))
	assert.True(t, levels[2].Price.Equal(dec("101500")))
	assert.True(t, levels[3].Price.Equal(dec("102000")))

	for _, lvl := range levels {
		assert.True(t, lvl.Quantity.Equal(dec("0.1")), "got %s", lvl.Quantity)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	p := NewPlanner(buyConfig())

	first := p.Plan(dec("123456.78912"), dec("5000"))
	second := p.Plan(dec("123456.78912"), dec("5000"))

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Price.Equal(second[i].Price))
		assert.True(t, first[i].Quantity.Equal(second[i].Quantity))
	}
}

func TestPlanBuyBalanceGuard(t *testing.T) {
	p := NewPlanner(buyConfig())

	assert.Empty(t, p.Plan(dec("100000"), dec("99.99")))
	assert.NotEmpty(t, p.Plan(dec("100000"), dec("100")))
}

func TestPlanSellQuantityGuard(t *testing.T) {
	cfg := buyConfig()
	cfg.Side = core.SideSell
	cfg.MinQuantity = dec("0.01")
	p := NewPlanner(cfg)

	assert.Empty(t, p.Plan(dec("100000"), dec("0.009")))
	assert.NotEmpty(t, p.Plan(dec("100000"), dec("0.01")))
}

func TestPlanBuyStartValueCap(t *testing.T) {
	cfg := buyConfig()
	cfg.StartValue = dec("53000")
	p := NewPlanner(cfg)

	// At or above the cap no buys are quoted.
	assert.Empty(t, p.Plan(dec("53000"), dec("30000")))
	assert.Empty(t, p.Plan(dec("60000"), dec("30000")))
	assert.NotEmpty(t, p.Plan(dec("52999.99999"), dec("30000")))
}

func TestPlanInvalidReference(t *testing.T) {
	p := NewPlanner(buyConfig())

	assert.Empty(t, p.Plan(decimal.Zero, dec("30000")))
	assert.Empty(t, p.Plan(dec("-1"), dec("30000")))
}

func TestPlanDropsDustLevels(t *testing.T) {
	cfg := buyConfig()
	cfg.MinBalance = decimal.Zero
	p := NewPlanner(cfg)

	// Order size so small the truncated quantity is zero at every level.
	assert.Empty(t, p.Plan(dec("100000"), dec("0.000001")))
}

func TestConfigValidate(t *testing.T) {
	valid := buyConfig()
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing pair", func(c *Config) { c.Pair = "" }},
		{"bad side", func(c *Config) { c.Side = "HOLD" }},
		{"zero split", func(c *Config) { c.SplitCount = 0 }},
		{"zero spread", func(c *Config) { c.SpreadPercent = decimal.Zero }},
		{"spread exhausts price", func(c *Config) { c.SplitCount = 10; c.SpreadPercent = dec("10") }},
		{"negative decimals", func(c *Config) { c.PriceDecimals = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := buyConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
