package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marcosgabbardo/mercadobitcoin-grid/internal/core"
	apperrors "github.com/marcosgabbardo/mercadobitcoin-grid/pkg/errors"
)

// Binance implements core.IOrderGateway against Binance spot. It exists so
// the same grid can run on a pair like BTCBRL without touching the
// scheduler.
type Binance struct {
	client *binance.Client
	logger core.ILogger
}

// NewBinance creates a Binance spot gateway. baseURL overrides the
// production endpoint, used by tests.
func NewBinance(apiKey, apiSecret, baseURL string, logger core.ILogger) *Binance {
	client := binance.NewClient(apiKey, apiSecret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &Binance{
		client: client,
		logger: logger.WithField("gateway", "binance"),
	}
}

// binanceSymbol converts a quote-first pair (BRLBTC) to a Binance symbol
// (BTCBRL).
func binanceSymbol(pair string) (string, error) {
	if len(pair) < 4 {
		return "", fmt.Errorf("invalid pair %q", pair)
	}
	return pair[3:] + pair[:3], nil
}

// mapBinanceError translates Binance API error codes onto the apperrors
// taxonomy.
func mapBinanceError(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", apperrors.ErrGatewayUnreachable, err)
	}

	var mapped error
	switch apiErr.Code {
	case -2010:
		mapped = apperrors.ErrInsufficientBalance
	case -2011, -2013:
		mapped = apperrors.ErrOrderNotFound
	case -1003:
		mapped = apperrors.ErrRateLimitExceeded
	case -2014, -2015, -1022:
		mapped = apperrors.ErrAuthenticationFailed
	default:
		mapped = apperrors.ErrOrderRejected
	}
	return fmt.Errorf("binance error %d: %s: %w", apiErr.Code, apiErr.Message, mapped)
}

func (g *Binance) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, mapBinanceError(err)
	}

	for _, b := range account.Balances {
		if b.Asset == toAsset(currency) {
			free, err := decimal.NewFromString(b.Free)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse balance %q: %w", b.Free, err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}

func (g *Binance) GetTicker(ctx context.Context, pair string) (*core.Ticker, error) {
	symbol, err := binanceSymbol(pair)
	if err != nil {
		return nil, err
	}

	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, mapBinanceError(err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("pair %s: %w", pair, apperrors.ErrMarketDataUnavailable)
	}
	last, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return nil, fmt.Errorf("parse last price %q: %w", prices[0].Price, err)
	}

	books, err := g.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, mapBinanceError(err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("pair %s: %w", pair, apperrors.ErrMarketDataUnavailable)
	}
	bid, err := decimal.NewFromString(books[0].BidPrice)
	if err != nil {
		return nil, fmt.Errorf("parse bid price %q: %w", books[0].BidPrice, err)
	}
	ask, err := decimal.NewFromString(books[0].AskPrice)
	if err != nil {
		return nil, fmt.Errorf("parse ask price %q: %w", books[0].AskPrice, err)
	}

	return &core.Ticker{
		Pair:    pair,
		Last:    last,
		BestBid: bid,
		BestAsk: ask,
	}, nil
}

func (g *Binance) PlaceLimitOrder(ctx context.Context, pair string, side core.Side, price, quantity decimal.Decimal) (*core.Order, error) {
	symbol, err := binanceSymbol(pair)
	if err != nil {
		return nil, err
	}

	sideType := binance.SideTypeBuy
	if side == core.SideSell {
		sideType = binance.SideTypeSell
	}

	resp, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Price(price.String()).
		Quantity(quantity.String()).
		NewClientOrderID("grid-" + uuid.NewString()).
		Do(ctx)
	if err != nil {
		return nil, mapBinanceError(err)
	}

	order := &core.Order{
		ID:           strconv.FormatInt(resp.OrderID, 10),
		Pair:         pair,
		Side:         side,
		LimitPrice:   price,
		RequestedQty: quantity,
		Status:       mapBinanceStatus(resp.Status),
		CreatedAt:    time.UnixMilli(resp.TransactTime),
		UpdatedAt:    time.UnixMilli(resp.TransactTime),
	}

	g.logger.Debug("order placed", "order_id", order.ID, "side", side, "price", price, "quantity", quantity)
	return order, nil
}

func (g *Binance) CancelOrder(ctx context.Context, pair, orderID string) (core.CancelOutcome, error) {
	symbol, err := binanceSymbol(pair)
	if err != nil {
		return core.CancelOutcomeNotFound, err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return core.CancelOutcomeNotFound, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}

	_, err = g.client.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err == nil {
		return core.CancelOutcomeCanceled, nil
	}

	mapped := mapBinanceError(err)
	if !errors.Is(mapped, apperrors.ErrOrderNotFound) {
		return core.CancelOutcomeNotFound, mapped
	}

	// An unknown-order cancel usually means the fill won the race. Ask the
	// venue which it was.
	order, getErr := g.GetOrder(ctx, pair, orderID)
	if getErr != nil {
		if errors.Is(getErr, apperrors.ErrOrderNotFound) {
			return core.CancelOutcomeNotFound, nil
		}
		return core.CancelOutcomeNotFound, getErr
	}
	if order.Status == core.StatusExecuted {
		return core.CancelOutcomeAlreadyExecuted, nil
	}
	return core.CancelOutcomeNotFound, nil
}

func (g *Binance) GetOrder(ctx context.Context, pair, orderID string) (*core.Order, error) {
	symbol, err := binanceSymbol(pair)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}

	resp, err := g.client.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, mapBinanceError(err)
	}

	price, _ := decimal.NewFromString(resp.Price)
	origQty, _ := decimal.NewFromString(resp.OrigQuantity)
	execQty, _ := decimal.NewFromString(resp.ExecutedQuantity)
	quoteQty, _ := decimal.NewFromString(resp.CummulativeQuoteQuantity)

	avg := decimal.Zero
	if execQty.IsPositive() {
		avg = quoteQty.Div(execQty)
	}

	side := core.SideBuy
	if resp.Side == binance.SideTypeSell {
		side = core.SideSell
	}

	order := &core.Order{
		ID:               strconv.FormatInt(resp.OrderID, 10),
		Pair:             pair,
		Side:             side,
		LimitPrice:       price,
		RequestedQty:     origQty,
		ExecutedQty:      execQty,
		ExecutedPriceAvg: avg,
		Status:           mapBinanceStatus(resp.Status),
		CreatedAt:        time.UnixMilli(resp.Time),
		UpdatedAt:        time.UnixMilli(resp.UpdateTime),
	}
	if order.Status == core.StatusCanceled {
		t := order.UpdatedAt
		order.CanceledAt = &t
	}
	return order, nil
}

func mapBinanceStatus(status binance.OrderStatusType) core.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return core.StatusCreated
	case binance.OrderStatusTypePartiallyFilled:
		return core.StatusPartiallyExecuted
	case binance.OrderStatusTypeFilled:
		return core.StatusExecuted
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return core.StatusCanceled
	default:
		return core.StatusFailed
	}
}

func toAsset(currency string) string {
	return strings.ToUpper(currency)
}
