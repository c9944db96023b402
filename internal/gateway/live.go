package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/domain"
	"github.com/DMHCAIT/turteltrader/internal/gateway/breeze"

	"github.com/shopspring/decimal"
)

// streamMaxAge bounds how stale a cached WebSocket tick may be before
// the gateway falls back to a REST quote.
const streamMaxAge = 10 * time.Second

// LiveGateway adapts the Breeze client to the engine's gateway
// contracts. Quotes prefer the WebSocket cache and fall back to REST.
type LiveGateway struct {
	client *breeze.Client
	stream *breeze.QuoteStream
}

// NewLiveGateway creates a gateway backed by the Breeze REST client.
func NewLiveGateway(client *breeze.Client) *LiveGateway {
	return &LiveGateway{client: client}
}

// AttachStream wires a running quote stream as the primary price source.
func (g *LiveGateway) AttachStream(stream *breeze.QuoteStream) {
	g.stream = stream
}

// Quote implements MarketData.
func (g *LiveGateway) Quote(ctx context.Context, symbol string) (Quote, error) {
	if g.stream != nil {
		if price, ok := g.stream.Last(symbol, streamMaxAge); ok {
			return Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
		}
	}

	price, err := g.client.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, err)
	}
	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("%w: %s returned non-positive price", ErrQuoteUnavailable, symbol)
	}
	return Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

// ReferenceClose implements MarketData.
func (g *LiveGateway) ReferenceClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	close, err := g.client.PreviousClose(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, err)
	}
	if !close.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s has no previous close", ErrQuoteUnavailable, symbol)
	}
	return close, nil
}

// SubmitOrder implements Gateway. The broker's product on the executed
// order is authoritative for the granted settlement mode.
func (g *LiveGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	params := breeze.OrderParams{
		StockCode:  req.Symbol,
		Exchange:   "NSE",
		Product:    productFor(req.RequestedMode),
		Action:     actionFor(req.Side),
		OrderType:  "market",
		Quantity:   req.Quantity,
		UserRemark: req.ClientOrderID,
	}

	ack, err := g.client.PlaceOrder(ctx, params)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order placement failed: %w", err)
	}

	detail, err := g.client.OrderDetail(ctx, ack.OrderID)
	if err != nil {
		// Placed but unconfirmed. Report pending; the engine reconciles
		// through OrderStatus on the next tick.
		return domain.OrderResult{
			OrderID: ack.OrderID,
			Status:  domain.OrderPending,
			Reason:  fmt.Sprintf("status fetch failed: %v", err),
		}, nil
	}

	return resultFromDetail(detail), nil
}

// CheckMargin implements Gateway. Compares the account's margin limit
// against the order notional at the current price.
func (g *LiveGateway) CheckMargin(ctx context.Context, symbol string, quantity int64) (bool, error) {
	funds, err := g.client.Funds(ctx)
	if err != nil {
		return false, fmt.Errorf("funds query failed: %w", err)
	}

	quote, err := g.Quote(ctx, symbol)
	if err != nil {
		return false, err
	}

	notional := quote.Price.Mul(decimal.NewFromInt(quantity))
	return funds.MarginAvailable.GreaterThanOrEqual(notional), nil
}

// OrderStatus implements Gateway. orderID is the broker order ID when
// submission was acknowledged, or the engine's client tag when it was
// not; unknown IDs fall back to a remark search of the day's book.
// Only an API-level answer from the broker maps to ErrOrderNotFound;
// transport failures stay ambiguous so the caller keeps retrying.
func (g *LiveGateway) OrderStatus(ctx context.Context, orderID string) (domain.OrderResult, error) {
	detail, err := g.client.OrderDetail(ctx, orderID)
	if err == nil {
		return resultFromDetail(detail), nil
	}
	var apiErr *breeze.APIError
	if !errors.As(err, &apiErr) {
		return domain.OrderResult{}, fmt.Errorf("status query failed for %s: %w", orderID, err)
	}

	detail, err = g.client.OrderByRemark(ctx, orderID)
	if err == nil {
		return resultFromDetail(detail), nil
	}
	if errors.Is(err, breeze.ErrNoSuchOrder) || errors.As(err, &apiErr) {
		return domain.OrderResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return domain.OrderResult{}, fmt.Errorf("status query failed for %s: %w", orderID, err)
}

func resultFromDetail(d *breeze.OrderDetail) domain.OrderResult {
	result := domain.OrderResult{
		OrderID:        d.OrderID,
		FilledQuantity: d.ExecutedQty,
		FilledPrice:    d.AveragePrice,
		GrantedMode:    modeFor(d.Product),
		Reason:         d.RejectionReason,
	}

	switch {
	case d.Status == "Rejected":
		result.Status = domain.OrderRejected
	case d.ExecutedQty >= d.Quantity && d.Quantity > 0:
		result.Status = domain.OrderFilled
	case d.ExecutedQty > 0:
		result.Status = domain.OrderPartial
	default:
		result.Status = domain.OrderPending
	}
	return result
}

func productFor(mode domain.SettlementMode) string {
	if mode == domain.ModeMargin {
		return "margin"
	}
	return "cash"
}

func modeFor(product string) domain.SettlementMode {
	if product == "margin" {
		return domain.ModeMargin
	}
	return domain.ModeCash
}

func actionFor(side domain.OrderSide) string {
	if side == domain.SideBuy {
		return "buy"
	}
	return "sell"
}
