package domain

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// CapitalPool is the single source of truth for deployable trading capital.
// Total capital is split into a deployable portion and a reserve that is
// never committed to positions. All mutations funnel through Reserve and
// Release so the overcommit invariant is checkable in one place.
//
// The pool carries its own mutex: every symbol's lifecycle shares it, and
// two symbols must never both observe sufficient capital and overcommit.
type CapitalPool struct {
	mu sync.Mutex

	total          decimal.Decimal
	deployableFrac decimal.Decimal
	perTradeFrac   decimal.Decimal
	committed      decimal.Decimal
}

// CapitalSnapshot is a read-only copy of the pool state for dashboards
// and capital events.
type CapitalSnapshot struct {
	Total      decimal.Decimal `json:"total"`
	Deployable decimal.Decimal `json:"deployable"`
	Committed  decimal.Decimal `json:"committed"`
	Available  decimal.Decimal `json:"available"`
	Reserve    decimal.Decimal `json:"reserve"`
}

// NewCapitalPool creates a pool from operator configuration.
// deployableFrac and the implied reserve must sum to 1.0.
func NewCapitalPool(total, deployableFrac, perTradeFrac decimal.Decimal) (*CapitalPool, error) {
	if total.IsNegative() || total.IsZero() {
		return nil, fmt.Errorf("total capital must be positive, got %s", total)
	}
	if deployableFrac.IsNegative() || deployableFrac.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("deployable fraction must be in [0,1], got %s", deployableFrac)
	}
	if perTradeFrac.IsNegative() || perTradeFrac.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("per-trade fraction must be in [0,1], got %s", perTradeFrac)
	}
	return &CapitalPool{
		total:          total,
		deployableFrac: deployableFrac,
		perTradeFrac:   perTradeFrac,
		committed:      decimal.Zero,
	}, nil
}

// PerTradeAmount returns the capital committed to a single trade:
// total * deployable * per-trade. It is recomputed from the live capital
// base on every call so sizing compounds as P&L accrues.
func (p *CapitalPool) PerTradeAmount() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total.Mul(p.deployableFrac).Mul(p.perTradeFrac)
}

// Reserve attempts to lock amount against deployable capital.
// Returns false without mutation when the lock would overcommit.
func (p *CapitalPool) Reserve(amount decimal.Decimal) bool {
	if amount.IsNegative() {
		panic("CAPITAL_RESERVE_NEGATIVE")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	deployable := p.total.Mul(p.deployableFrac)
	if p.committed.Add(amount).GreaterThan(deployable) {
		return false
	}
	p.committed = p.committed.Add(amount)
	p.verifyInvariant()
	return true
}

// Release returns a previously reserved amount to the pool and applies
// realized P&L to total capital. It is called exactly once per closed
// position (the position state machine enforces the once), and with zero
// pnl to cancel a reservation that never became an order.
func (p *CapitalPool) Release(amount, pnl decimal.Decimal) {
	if amount.IsNegative() {
		panic("CAPITAL_RELEASE_NEGATIVE")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if amount.GreaterThan(p.committed) {
		panic(fmt.Sprintf("CAPITAL_RELEASE_UNDERFLOW: release %s exceeds committed %s", amount, p.committed))
	}
	p.committed = p.committed.Sub(amount)
	p.total = p.total.Add(pnl)
	p.verifyInvariant()
}

// Snapshot returns a read-only copy of the pool state.
func (p *CapitalPool) Snapshot() CapitalSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	deployable := p.total.Mul(p.deployableFrac)
	return CapitalSnapshot{
		Total:      p.total,
		Deployable: deployable,
		Committed:  p.committed,
		Available:  deployable.Sub(p.committed),
		Reserve:    p.total.Sub(deployable),
	}
}

// verifyInvariant panics when committed capital exceeds the deployable
// limit or goes negative. Must be called with the mutex held.
func (p *CapitalPool) verifyInvariant() {
	if p.committed.IsNegative() {
		panic(fmt.Sprintf("CAPITAL_COMMITTED_NEGATIVE: %s", p.committed))
	}
	deployable := p.total.Mul(p.deployableFrac)
	if p.committed.GreaterThan(deployable) {
		panic(fmt.Sprintf("CAPITAL_OVERCOMMIT: committed %s > deployable %s", p.committed, deployable))
	}
}
