package gateway

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickerParserParsesTickerMessage(t *testing.T) {
	parse := NewTickerParser("BRLBTC")

	ticker, err := parse([]byte(`{"type": "ticker", "id": "BRLBTC", "data": {"last": "100000.5", "buy": "99950", "sell": "100050"}}`))
	require.NoError(t, err)
	require.NotNil(t, ticker)

	assert.Equal(t, "BRLBTC", ticker.Pair)
	assert.True(t, ticker.Last.Equal(decimal.RequireFromString("100000.5")))
	assert.True(t, ticker.BestBid.Equal(decimal.RequireFromString("99950")))
	assert.True(t, ticker.BestAsk.Equal(decimal.RequireFromString("100050")))
}

func TestTickerParserIgnoresOtherMessages(t *testing.T) {
	parse := NewTickerParser("BRLBTC")

	ticker, err := parse([]byte(`{"type": "subscribed", "id": "BRLBTC"}`))
	require.NoError(t, err)
	assert.Nil(t, ticker)

	ticker, err = parse([]byte(`{"type": "ticker", "id": "BRLETH", "data": {"last": "1"}}`))
	require.NoError(t, err)
	assert.Nil(t, ticker)
}

func TestTickerParserRejectsGarbage(t *testing.T) {
	parse := NewTickerParser("BRLBTC")

	_, err := parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestBinanceSymbolConversion(t *testing.T) {
	symbol, err := binanceSymbol("BRLBTC")
	require.NoError(t, err)
	assert.Equal(t, "BTCBRL", symbol)

	_, err = binanceSymbol("BRL")
	assert.Error(t, err)
}
