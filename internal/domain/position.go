package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the lifecycle state of a symbol's position.
type PositionState int

const (
	StateIdle PositionState = iota
	StateSignalPending
	StateOrderSubmitted
	StateOpen
	StateExitSignaled
	StateExitSubmitted
	StateClosed
	StateLossAlerted
)

func (s PositionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSignalPending:
		return "SIGNAL_PENDING"
	case StateOrderSubmitted:
		return "ORDER_SUBMITTED"
	case StateOpen:
		return "OPEN"
	case StateExitSignaled:
		return "EXIT_SIGNALED"
	case StateExitSubmitted:
		return "EXIT_SUBMITTED"
	case StateClosed:
		return "CLOSED"
	case StateLossAlerted:
		return "LOSS_ALERTED"
	default:
		return "UNKNOWN"
	}
}

// Position is the per-symbol state machine record. Transitions are driven
// exclusively by the lifecycle manager; everyone else reads copies.
type Position struct {
	Symbol string        `json:"symbol"`
	State  PositionState `json:"state"`

	EntryPrice decimal.Decimal `json:"entry_price"`
	Quantity   int64           `json:"quantity"`
	Mode       SettlementMode  `json:"settlement_mode,omitempty"`
	OpenedAt   time.Time       `json:"opened_at"`

	// ReferenceClose is the prior session's closing price, the baseline
	// for dip detection. Zero until the session close has been observed.
	ReferenceClose decimal.Decimal `json:"reference_close"`

	// ReservedAmount is the capital locked when the entry was sized.
	// Released (with P&L) exactly once when the position closes.
	ReservedAmount decimal.Decimal `json:"reserved_amount"`

	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ClosedAt    time.Time       `json:"closed_at"`

	// PendingOrderID tracks an in-flight client order for timeout
	// reconciliation against the gateway's authoritative status.
	PendingOrderID string `json:"pending_order_id,omitempty"`
}

// NewPosition creates a fresh IDLE position for a tracked symbol.
func NewPosition(symbol string) *Position {
	return &Position{Symbol: symbol, State: StateIdle}
}

// IsExposed reports whether the position holds (or is unwinding) market
// exposure. At most one exposed position may exist per symbol.
func (p *Position) IsExposed() bool {
	switch p.State {
	case StateOpen, StateExitSignaled, StateExitSubmitted, StateLossAlerted:
		return true
	}
	return false
}

// CanEnter reports whether a new dip entry may be considered.
func (p *Position) CanEnter() bool {
	return p.State == StateIdle
}

// Terminal reports whether the position has reached its final state.
func (p *Position) Terminal() bool {
	return p.State == StateClosed
}

// UnrealizedPnL values the open quantity against the given price.
// Zero for positions without exposure.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if !p.IsExposed() || p.Quantity == 0 {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Mul(decimal.NewFromInt(p.Quantity))
}
