package engine

import (
	"context"
	"log/slog"

	"github.com/DMHCAIT/turteltrader/internal/domain"
	"github.com/DMHCAIT/turteltrader/internal/gateway"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sizer computes order quantity from the capital pool and selects the
// settlement mode: margin trade funding first, cash fallback.
type Sizer struct {
	pool *domain.CapitalPool
	gw   gateway.Gateway
}

// NewSizer creates a sizer over the shared capital pool.
func NewSizer(pool *domain.CapitalPool, gw gateway.Gateway) *Sizer {
	return &Sizer{pool: pool, gw: gw}
}

// SizeEntry turns a dip signal into a BUY request, reserving capital.
// Returns (nil, zero, false) when capital is exhausted or the per-trade
// amount buys less than one unit; a failed reservation or a released
// zero-quantity reservation leaves the pool untouched.
func (s *Sizer) SizeEntry(ctx context.Context, sig domain.Signal) (*domain.OrderRequest, decimal.Decimal, bool) {
	amount := s.pool.PerTradeAmount()

	if !s.pool.Reserve(amount) {
		// Capital scarcity silently suppresses new entries. The next
		// tick re-evaluates the dip if it still holds.
		slog.Info("entry signal dropped, deployable capital exhausted",
			slog.String("symbol", sig.Symbol),
			slog.String("amount", amount.String()))
		return nil, decimal.Decimal{}, false
	}

	quantity := amount.Div(sig.ObservedPrice).IntPart()
	if quantity <= 0 {
		// Never lock capital for a trade that cannot be placed.
		s.pool.Release(amount, decimal.Zero)
		slog.Info("entry signal dropped, per-trade amount below one unit",
			slog.String("symbol", sig.Symbol),
			slog.String("price", sig.ObservedPrice.String()))
		return nil, decimal.Decimal{}, false
	}

	req := &domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        sig.Symbol,
		Side:          domain.SideBuy,
		Quantity:      quantity,
		RequestedMode: s.selectMode(ctx, sig.Symbol, quantity),
		LimitPrice:    sig.ObservedPrice,
	}
	return req, amount, true
}

// SizeExit builds the SELL request for a full unwind. Exits always use
// the position's original settlement mode.
func (s *Sizer) SizeExit(pos *domain.Position) *domain.OrderRequest {
	return &domain.OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        pos.Symbol,
		Side:          domain.SideSell,
		Quantity:      pos.Quantity,
		RequestedMode: pos.Mode,
	}
}

// selectMode asks the gateway whether margin funding covers the order.
// The check-then-request sequence is not atomic against broker-side
// margin changes; the granted mode on the fill is authoritative.
func (s *Sizer) selectMode(ctx context.Context, symbol string, quantity int64) domain.SettlementMode {
	ok, err := s.gw.CheckMargin(ctx, symbol, quantity)
	if err != nil {
		slog.Warn("margin check failed, falling back to cash",
			slog.String("symbol", symbol),
			slog.String("err", err.Error()))
		return domain.ModeCash
	}
	if ok {
		return domain.ModeMargin
	}
	return domain.ModeCash
}
