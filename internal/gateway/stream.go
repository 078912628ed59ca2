package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
)

// DefaultMercadoBitcoinStreamURL is the public websocket endpoint.
const DefaultMercadoBitcoinStreamURL = "wss://ws.mercadobitcoin.net/ws"

// TickerSubscription builds the subscribe payload for a pair's ticker
// channel, re-sent on every reconnect.
func TickerSubscription(pair string) interface{} {
	return map[string]interface{}{
		"type": "subscribe",
		"subscription": map[string]string{
			"name": "ticker",
			"id":   pair,
		},
	}
}

// NewTickerParser returns a parser for ticker stream messages of the given
// pair. Messages of other types or pairs yield (nil, nil).
func NewTickerParser(pair string) func(message []byte) (*core.Ticker, error) {
	return func(message []byte) (*core.Ticker, error) {
		var msg struct {
			Type string `json:"type"`
			ID   string `json:"id"`
			Data struct {
				Last decimal.Decimal `json:"last"`
				Buy  decimal.Decimal `json:"buy"`
				Sell decimal.Decimal `json:"sell"`
			} `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			return nil, fmt.Errorf("decode stream message: %w", err)
		}
		if msg.Type != "ticker" || msg.ID != pair {
			return nil, nil
		}
		return &core.Ticker{
			Pair:    pair,
			Last:    msg.Data.Last,
			BestBid: msg.Data.Buy,
			BestAsk: msg.Data.Sell,
		}, nil
	}
}
