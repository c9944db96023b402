package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/domain"

	"github.com/shopspring/decimal"
)

// ErrQuoteUnavailable signals a transient market data gap. The
// monitoring loop skips the symbol's tick and tries again next tick.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// ErrOrderNotFound is returned by OrderStatus for unknown client order IDs.
var ErrOrderNotFound = errors.New("order not found")

// Quote is one last-traded-price observation.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// MarketData supplies price observations per symbol.
type MarketData interface {
	// Quote returns the last traded price.
	Quote(ctx context.Context, symbol string) (Quote, error)

	// ReferenceClose returns the prior session's closing price, the
	// baseline for dip detection.
	ReferenceClose(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Gateway is the broker execution contract consumed by the engine.
// All calls must be wrapped with a bounded timeout by the caller.
type Gateway interface {
	// SubmitOrder sends an order and returns the broker's verdict.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)

	// CheckMargin reports whether margin trade funding is available for
	// the symbol and quantity. Advisory only: the gateway may still
	// downgrade a margin request at execution time.
	CheckMargin(ctx context.Context, symbol string, quantity int64) (bool, error)

	// OrderStatus returns the authoritative state of a previously
	// submitted order, used to reconcile client-side timeouts.
	OrderStatus(ctx context.Context, clientOrderID string) (domain.OrderResult, error)
}
