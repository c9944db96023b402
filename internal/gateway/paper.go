package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperGateway simulates broker execution against a virtual cash balance.
// Orders fill immediately and fully at the current price. Used for
// strategy validation before any real money is involved.
type PaperGateway struct {
	mu sync.Mutex

	cash   decimal.Decimal
	prices map[string]decimal.Decimal
	closes map[string]decimal.Decimal
	orders map[string]domain.OrderResult

	// Whether margin funding is granted. Toggled in tests to exercise
	// the cash fallback path.
	marginAvailable bool

	brokeragePct decimal.Decimal
}

// NewPaperGateway creates a paper gateway with the given virtual cash.
func NewPaperGateway(initialCash, brokeragePct decimal.Decimal) *PaperGateway {
	return &PaperGateway{
		cash:            initialCash,
		prices:          make(map[string]decimal.Decimal),
		closes:          make(map[string]decimal.Decimal),
		orders:          make(map[string]domain.OrderResult),
		marginAvailable: true,
		brokeragePct:    brokeragePct,
	}
}

// UpdatePrice sets the current market price for a symbol.
func (p *PaperGateway) UpdatePrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetReferenceClose sets the prior session close for a symbol.
func (p *PaperGateway) SetReferenceClose(symbol string, close decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes[symbol] = close
}

// SetMarginAvailable toggles margin funding for all symbols.
func (p *PaperGateway) SetMarginAvailable(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marginAvailable = ok
}

// Cash returns the current virtual cash balance.
func (p *PaperGateway) Cash() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// Quote implements MarketData.
func (p *PaperGateway) Quote(ctx context.Context, symbol string) (Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, symbol)
	}
	return Quote{Symbol: symbol, Price: price, Timestamp: time.Now()}, nil
}

// ReferenceClose implements MarketData.
func (p *PaperGateway) ReferenceClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	close, ok := p.closes[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no reference close for %s", ErrQuoteUnavailable, symbol)
	}
	return close, nil
}

// SubmitOrder fills immediately at the current market price. A margin
// request is downgraded to cash when margin funding is off, matching
// the broker-side fallback the live gateway performs.
func (p *PaperGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[req.Symbol]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("no price available for %s", req.Symbol)
	}

	granted := req.RequestedMode
	if granted == domain.ModeMargin && !p.marginAvailable {
		granted = domain.ModeCash
	}

	qty := decimal.NewFromInt(req.Quantity)
	notional := price.Mul(qty)
	charges := notional.Mul(p.brokeragePct)

	if req.Side == domain.SideBuy {
		total := notional.Add(charges)
		if p.cash.LessThan(total) {
			result := domain.OrderResult{
				OrderID: uuid.NewString(),
				Status:  domain.OrderRejected,
				Reason:  fmt.Sprintf("insufficient cash: need %s, have %s", total, p.cash),
			}
			p.orders[req.ClientOrderID] = result
			return result, nil
		}
		p.cash = p.cash.Sub(total)
	} else {
		p.cash = p.cash.Add(notional.Sub(charges))
	}

	result := domain.OrderResult{
		OrderID:        uuid.NewString(),
		Status:         domain.OrderFilled,
		FilledQuantity: req.Quantity,
		FilledPrice:    price,
		GrantedMode:    granted,
	}
	p.orders[req.ClientOrderID] = result

	slog.Info("paper order filled",
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.Int64("qty", req.Quantity),
		slog.String("price", price.String()),
		slog.String("mode", string(granted)),
	)
	return result, nil
}

// CheckMargin implements Gateway.
func (p *PaperGateway) CheckMargin(ctx context.Context, symbol string, quantity int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marginAvailable, nil
}

// OrderStatus implements Gateway.
func (p *PaperGateway) OrderStatus(ctx context.Context, clientOrderID string) (domain.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, ok := p.orders[clientOrderID]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, clientOrderID)
	}
	return result, nil
}
