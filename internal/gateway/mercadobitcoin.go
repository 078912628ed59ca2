// Package gateway contains the venue adapters behind core.IOrderGateway.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	apperrors "github.com/marcosgabbardo/mercadobitcoin-grid/pkg/errors"
	"github.com/marcosgabbardo/mercadobitcoin-grid/pkg/httpclient"
)

const (
	defaultMercadoBitcoinURL = "https://www.mercadobitcoin.net"
	tapiPath                 = "/tapi/v3/"

	tapiStatusSuccess = 100

	// TAPI order_type values.
	tapiOrderTypeBuy  = 1
	tapiOrderTypeSell = 2

	// TAPI order status values.
	tapiOrderStatusOpen     = 2
	tapiOrderStatusCanceled = 3
	tapiOrderStatusFilled   = 4
)

// MercadoBitcoin implements core.IOrderGateway against the Mercado Bitcoin
// TAPI v3 (trade) and public data APIs.
type MercadoBitcoin struct {
	http       *httpclient.Client
	tapiID     string
	tapiSecret string
	limiter    *rate.Limiter
	logger     core.ILogger

	// TAPI nonces must be strictly increasing per key pair.
	nonceMu   sync.Mutex
	lastNonce int64
}

// NewMercadoBitcoin creates a gateway for the given TAPI credentials.
// baseURL overrides the production endpoint, used by tests.
func NewMercadoBitcoin(tapiID, tapiSecret, baseURL string, logger core.ILogger) *MercadoBitcoin {
	if baseURL == "" {
		baseURL = defaultMercadoBitcoinURL
	}
	return &MercadoBitcoin{
		http:       httpclient.NewClient(baseURL, 30*time.Second),
		tapiID:     tapiID,
		tapiSecret: tapiSecret,
		// TAPI allows roughly one trade call per second per key.
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		logger:  logger.WithField("gateway", "mercadobitcoin"),
	}
}

type tapiResponse struct {
	ResponseData json.RawMessage `json:"response_data"`
	StatusCode   int             `json:"status_code"`
	ErrorMessage string          `json:"error_message"`
}

type tapiOrder struct {
	OrderID          int64           `json:"order_id"`
	CoinPair         string          `json:"coin_pair"`
	OrderType        int             `json:"order_type"`
	Status           int             `json:"status"`
	Quantity         decimal.Decimal `json:"quantity"`
	LimitPrice       decimal.Decimal `json:"limit_price"`
	ExecutedQuantity decimal.Decimal `json:"executed_quantity"`
	ExecutedPriceAvg decimal.Decimal `json:"executed_price_avg"`
	Fee              decimal.Decimal `json:"fee"`
	CreatedTimestamp string          `json:"created_timestamp"`
	UpdatedTimestamp string          `json:"updated_timestamp"`
}

// nextNonce returns a strictly increasing nonce, surviving multiple calls
// within the same second.
func (g *MercadoBitcoin) nextNonce() int64 {
	g.nonceMu.Lock()
	defer g.nonceMu.Unlock()

	nonce := time.Now().Unix()
	if nonce <= g.lastNonce {
		nonce = g.lastNonce + 1
	}
	g.lastNonce = nonce
	return nonce
}

// call executes one signed TAPI method. The MAC covers the request path and
// the exact encoded form body.
func (g *MercadoBitcoin) call(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if params == nil {
		params = map[string]string{}
	}
	params["tapi_method"] = method
	params["tapi_nonce"] = fmt.Sprintf("%d", g.nextNonce())

	form := httpclient.EncodeForm(params)

	mac := hmac.New(sha512.New, []byte(g.tapiSecret))
	mac.Write([]byte(tapiPath + "?" + form))
	signature := hex.EncodeToString(mac.Sum(nil))

	body, err := g.http.PostForm(ctx, tapiPath, form, map[string]string{
		"TAPI-ID":  g.tapiID,
		"TAPI-MAC": signature,
	})
	if err != nil {
		return nil, fmt.Errorf("tapi %s: %w: %w", method, apperrors.ErrGatewayUnreachable, err)
	}

	var resp tapiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("tapi %s: decode response: %w", method, err)
	}

	if resp.StatusCode != tapiStatusSuccess {
		return nil, g.classifyError(method, resp.StatusCode, resp.ErrorMessage)
	}

	return resp.ResponseData, nil
}

// classifyError maps TAPI error messages onto the apperrors taxonomy. The
// venue reports errors as Portuguese prose, so classification is by
// substring.
func (g *MercadoBitcoin) classifyError(method string, code int, message string) error {
	lower := strings.ToLower(message)

	var mapped error
	switch {
	case strings.Contains(lower, "insuficiente"):
		mapped = apperrors.ErrInsufficientBalance
	case strings.Contains(lower, "executada"):
		mapped = apperrors.ErrAlreadyExecuted
	case strings.Contains(lower, "encontrada") || strings.Contains(lower, "encontrado"):
		mapped = apperrors.ErrOrderNotFound
	case strings.Contains(lower, "tapi-id") || strings.Contains(lower, "tapi-mac") ||
		strings.Contains(lower, "chave") || strings.Contains(lower, "nonce"):
		mapped = apperrors.ErrAuthenticationFailed
	case strings.Contains(lower, "requisi"):
		mapped = apperrors.ErrRateLimitExceeded
	default:
		mapped = apperrors.ErrOrderRejected
	}

	return fmt.Errorf("tapi %s failed (status %d): %s: %w", method, code, message, mapped)
}

// GetBalance returns the available balance for a lowercase currency code.
func (g *MercadoBitcoin) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	data, err := g.call(ctx, "get_account_info", nil)
	if err != nil {
		return decimal.Zero, err
	}

	var info struct {
		Balance map[string]struct {
			Available decimal.Decimal `json:"available"`
			Total     decimal.Decimal `json:"total"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return decimal.Zero, fmt.Errorf("decode account info: %w", err)
	}

	bal, ok := info.Balance[strings.ToLower(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("currency %s not present in account balances", currency)
	}
	return bal.Available, nil
}

// GetTicker fetches the public ticker. Pairs are quote-first, so BRLBTC maps
// to the /api/BTC/ticker/ endpoint. The data API has no separate best-bid
// and best-ask beyond the buy and sell fields.
func (g *MercadoBitcoin) GetTicker(ctx context.Context, pair string) (*core.Ticker, error) {
	if len(pair) < 4 {
		return nil, fmt.Errorf("invalid pair %q", pair)
	}
	coin := strings.ToUpper(pair[3:])

	body, err := g.http.Get(ctx, fmt.Sprintf("/api/%s/ticker/", coin), nil)
	if err != nil {
		return nil, fmt.Errorf("ticker %s: %w: %w", pair, apperrors.ErrMarketDataUnavailable, err)
	}

	var resp struct {
		Ticker struct {
			Last decimal.Decimal `json:"last"`
			Buy  decimal.Decimal `json:"buy"`
			Sell decimal.Decimal `json:"sell"`
		} `json:"ticker"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("ticker %s: decode response: %w", pair, err)
	}

	return &core.Ticker{
		Pair:    pair,
		Last:    resp.Ticker.Last,
		BestBid: resp.Ticker.Buy,
		BestAsk: resp.Ticker.Sell,
	}, nil
}

// PlaceLimitOrder places a limit order via place_buy_order or
// place_sell_order.
func (g *MercadoBitcoin) PlaceLimitOrder(ctx context.Context, pair string, side core.Side, price, quantity decimal.Decimal) (*core.Order, error) {
	method := "place_buy_order"
	if side == core.SideSell {
		method = "place_sell_order"
	}

	data, err := g.call(ctx, method, map[string]string{
		"coin_pair":   pair,
		"quantity":    quantity.String(),
		"limit_price": price.String(),
	})
	if err != nil {
		return nil, err
	}

	order, err := decodeOrder(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	g.logger.Debug("order placed", "order_id", order.ID, "side", side, "price", price, "quantity", quantity)
	return order, nil
}

// CancelOrder requests cancellation and reports the venue's verdict. A fill
// racing the cancel surfaces as an "already executed" error, which is an
// outcome here, not a failure.
func (g *MercadoBitcoin) CancelOrder(ctx context.Context, pair, orderID string) (core.CancelOutcome, error) {
	data, err := g.call(ctx, "cancel_order", map[string]string{
		"coin_pair": pair,
		"order_id":  orderID,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrAlreadyExecuted):
			return core.CancelOutcomeAlreadyExecuted, nil
		case errors.Is(err, apperrors.ErrOrderNotFound):
			return core.CancelOutcomeNotFound, nil
		}
		return core.CancelOutcomeNotFound, err
	}

	order, err := decodeOrder(data)
	if err != nil {
		return core.CancelOutcomeNotFound, fmt.Errorf("cancel_order: %w", err)
	}

	// The venue can answer a cancel with a filled order when the fill won.
	if order.Status == core.StatusExecuted {
		return core.CancelOutcomeAlreadyExecuted, nil
	}
	return core.CancelOutcomeCanceled, nil
}

// GetOrder fetches the venue's current view of an order.
func (g *MercadoBitcoin) GetOrder(ctx context.Context, pair, orderID string) (*core.Order, error) {
	data, err := g.call(ctx, "get_order", map[string]string{
		"coin_pair": pair,
		"order_id":  orderID,
	})
	if err != nil {
		return nil, err
	}

	order, err := decodeOrder(data)
	if err != nil {
		return nil, fmt.Errorf("get_order: %w", err)
	}
	return order, nil
}

func decodeOrder(data json.RawMessage) (*core.Order, error) {
	var wrapper struct {
		Order tapiOrder `json:"order"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return mapOrder(wrapper.Order), nil
}

func mapOrder(o tapiOrder) *core.Order {
	side := core.SideBuy
	if o.OrderType == tapiOrderTypeSell {
		side = core.SideSell
	}

	order := &core.Order{
		ID:               fmt.Sprintf("%d", o.OrderID),
		Pair:             o.CoinPair,
		Side:             side,
		LimitPrice:       o.LimitPrice,
		RequestedQty:     o.Quantity,
		ExecutedQty:      o.ExecutedQuantity,
		ExecutedPriceAvg: o.ExecutedPriceAvg,
		Fee:              o.Fee,
		Status:           mapOrderStatus(o.Status, o.ExecutedQuantity),
		CreatedAt:        parseTimestamp(o.CreatedTimestamp),
		UpdatedAt:        parseTimestamp(o.UpdatedTimestamp),
	}
	if order.Status == core.StatusCanceled {
		t := order.UpdatedAt
		order.CanceledAt = &t
	}
	return order
}

func mapOrderStatus(status int, executedQty decimal.Decimal) core.OrderStatus {
	switch status {
	case tapiOrderStatusOpen:
		if executedQty.IsPositive() {
			return core.StatusPartiallyExecuted
		}
		return core.StatusCreated
	case tapiOrderStatusCanceled:
		return core.StatusCanceled
	case tapiOrderStatusFilled:
		return core.StatusExecuted
	default:
		return core.StatusFailed
	}
}

func parseTimestamp(s string) time.Time {
	var unix int64
	if _, err := fmt.Sscanf(s, "%d", &unix); err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
