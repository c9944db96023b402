package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/domain"
	"github.com/DMHCAIT/turteltrader/internal/event"
	"github.com/DMHCAIT/turteltrader/internal/gateway"

	"github.com/shopspring/decimal"
)

// reconcileFailThreshold is how many consecutive status-query failures
// for one in-flight order escalate to a FATAL alert.
const reconcileFailThreshold = 3

// Manager owns every tracked symbol's position state machine. All
// transitions funnel through it; capital moves only on its say-so.
//
// The mutex serializes signal handling against dashboard reads and
// manual overrides. Within one tick the monitoring loop is the only
// writer.
type Manager struct {
	mu      sync.Mutex
	pool    *domain.CapitalPool
	gw      gateway.Gateway
	hub     *event.Hub
	sizer   *Sizer
	timeout time.Duration

	brokeragePct decimal.Decimal

	positions      map[string]*domain.Position
	paused         map[string]bool
	reconcileFails map[string]int
}

// NewManager creates a lifecycle manager over the shared capital pool.
func NewManager(pool *domain.CapitalPool, gw gateway.Gateway, hub *event.Hub, timeout time.Duration) *Manager {
	return &Manager{
		pool:           pool,
		gw:             gw,
		hub:            hub,
		sizer:          NewSizer(pool, gw),
		timeout:        timeout,
		positions:      make(map[string]*domain.Position),
		paused:         make(map[string]bool),
		reconcileFails: make(map[string]int),
	}
}

// WithBrokerage sets the per-leg charge rate deducted from realized
// P&L on close.
func (m *Manager) WithBrokerage(pct decimal.Decimal) *Manager {
	m.brokeragePct = pct
	return m
}

// Track registers symbols for monitoring, each starting IDLE.
func (m *Manager) Track(symbols ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, symbol := range symbols {
		if _, exists := m.positions[symbol]; !exists {
			m.positions[symbol] = domain.NewPosition(symbol)
		}
	}
}

// Position returns a copy of a symbol's position.
func (m *Manager) Position(symbol string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all tracked positions, for snapshots and
// the dashboard.
func (m *Manager) Positions() map[string]*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*domain.Position, len(m.positions))
	for symbol, pos := range m.positions {
		c := *pos
		out[symbol] = &c
	}
	return out
}

// SetReferenceClose records the session baseline for dip detection.
func (m *Manager) SetReferenceClose(symbol string, close decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pos, ok := m.positions[symbol]; ok {
		pos.ReferenceClose = close
	}
}

// ClearReferenceCloses drops all session baselines. Called on session
// rollover so the next tick re-fetches fresh closes.
func (m *Manager) ClearReferenceCloses() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pos := range m.positions {
		pos.ReferenceClose = decimal.Decimal{}
	}
}

// Pause stops signal processing for a symbol. Open exposure stays as-is
// until a manual close or resume.
func (m *Manager) Pause(symbol, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseLocked(symbol, reason)
}

func (m *Manager) pauseLocked(symbol, reason string) {
	m.paused[symbol] = true
	slog.Warn("symbol paused", slog.String("symbol", symbol), slog.String("reason", reason))
}

// Resume re-enables signal processing for a symbol.
func (m *Manager) Resume(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paused, symbol)
	slog.Info("symbol resumed", slog.String("symbol", symbol))
}

// IsPaused reports whether a symbol's processing is suspended.
func (m *Manager) IsPaused(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused[symbol]
}

// HandleSignal applies one detector signal to the symbol's state
// machine. An invariant panic inside the transition pauses the symbol
// and raises a FATAL alert instead of taking the process down.
func (m *Manager) HandleSignal(ctx context.Context, sig domain.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recoverInvariant(sig.Symbol)

	if m.paused[sig.Symbol] {
		return
	}
	pos, ok := m.positions[sig.Symbol]
	if !ok {
		return
	}

	switch sig.Kind {
	case domain.SignalDipEntry:
		m.handleDipEntry(ctx, pos, sig)
	case domain.SignalProfitExit:
		m.submitExit(ctx, pos, sig.Kind.String())
	case domain.SignalLossAlert:
		m.handleLossAlert(pos, sig)
	}
}

// ForceClose is the manual override path: unwind an open (or
// loss-alerted) position immediately, regardless of thresholds.
func (m *Manager) ForceClose(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recoverInvariant(symbol)

	pos, ok := m.positions[symbol]
	if !ok {
		return fmt.Errorf("unknown symbol: %s", symbol)
	}
	switch pos.State {
	case domain.StateOpen, domain.StateLossAlerted:
		m.submitExit(ctx, pos, "manual close")
		return nil
	case domain.StateExitSubmitted:
		return fmt.Errorf("%s: exit already in flight", symbol)
	default:
		return fmt.Errorf("%s: no open position to close (state %s)", symbol, pos.State)
	}
}

// ReconcilePending resolves an in-flight order against the gateway's
// authoritative status. A client-side timeout never frees capital on
// its own: the order may have filled anyway.
func (m *Manager) ReconcilePending(ctx context.Context, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.recoverInvariant(symbol)

	pos, ok := m.positions[symbol]
	if !ok || pos.PendingOrderID == "" {
		return
	}
	if pos.State != domain.StateOrderSubmitted && pos.State != domain.StateExitSubmitted {
		return
	}

	tctx, cancel := context.WithTimeout(ctx, m.timeout)
	result, err := m.gw.OrderStatus(tctx, pos.PendingOrderID)
	cancel()
	if errors.Is(err, gateway.ErrOrderNotFound) {
		// Authoritative: the order never reached the broker's book, so
		// the capital it held is genuinely free.
		delete(m.reconcileFails, symbol)
		m.resolveLostOrder(pos)
		return
	}
	if err != nil {
		m.reconcileFails[symbol]++
		slog.Warn("order reconciliation failed",
			slog.String("symbol", symbol),
			slog.String("order_id", pos.PendingOrderID),
			slog.Int("consecutive", m.reconcileFails[symbol]),
			slog.String("err", err.Error()))

		if m.reconcileFails[symbol] == reconcileFailThreshold {
			m.publishAlert(event.LevelFatal, symbol, "order reconciliation failing",
				fmt.Sprintf("order %s status unavailable after %d attempts, capital held until resolved; human intervention required",
					pos.PendingOrderID, reconcileFailThreshold))
		}
		return
	}
	delete(m.reconcileFails, symbol)

	switch pos.State {
	case domain.StateOrderSubmitted:
		m.applyEntryResult(pos, pos.PendingOrderID, result)
	case domain.StateExitSubmitted:
		m.applyExitResult(pos, pos.PendingOrderID, result)
	}
}

// resolveLostOrder rolls back a submission the broker never recorded.
func (m *Manager) resolveLostOrder(pos *domain.Position) {
	switch pos.State {
	case domain.StateOrderSubmitted:
		m.transition(pos, domain.StateIdle, "order lost before reaching broker")
		m.pool.Release(pos.ReservedAmount, decimal.Zero)
		pos.ReservedAmount = decimal.Decimal{}
		pos.PendingOrderID = ""
	case domain.StateExitSubmitted:
		m.transition(pos, domain.StateOpen, "exit order lost before reaching broker")
		pos.PendingOrderID = ""
	}
}

// NeedsReconciliation reports whether a symbol has an order awaiting a
// status check.
func (m *Manager) NeedsReconciliation(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return false
	}
	return pos.PendingOrderID != "" &&
		(pos.State == domain.StateOrderSubmitted || pos.State == domain.StateExitSubmitted)
}

func (m *Manager) handleDipEntry(ctx context.Context, pos *domain.Position, sig domain.Signal) {
	if pos.IsExposed() {
		panic(fmt.Sprintf("POSITION_DUP_OPEN: %s dip entry while exposed in %s", pos.Symbol, pos.State))
	}
	if !pos.CanEnter() {
		return
	}

	tctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, reserved, ok := m.sizer.SizeEntry(tctx, sig)
	if !ok {
		return
	}

	m.transition(pos, domain.StateOrderSubmitted, sig.Kind.String())
	pos.PendingOrderID = req.ClientOrderID
	pos.ReservedAmount = reserved

	result, err := m.gw.SubmitOrder(tctx, *req)
	if err != nil {
		// Treated like a rejection for state purposes, but the capital
		// stays committed until the gateway's status confirms the order
		// really did not fill.
		slog.Warn("entry submission failed, awaiting reconciliation",
			slog.String("symbol", pos.Symbol),
			slog.String("err", err.Error()))
		return
	}

	m.applyEntryResult(pos, req.ClientOrderID, result)
}

// submitExit drives OPEN or LOSS_ALERTED into EXIT_SUBMITTED. Exit
// rejections land back in the prior state and are retried on every
// subsequent qualifying tick; an open position must stay closeable.
func (m *Manager) submitExit(ctx context.Context, pos *domain.Position, reason string) {
	if pos.State != domain.StateOpen && pos.State != domain.StateLossAlerted {
		return
	}

	req := m.sizer.SizeExit(pos)
	m.transition(pos, domain.StateExitSubmitted, reason)
	pos.PendingOrderID = req.ClientOrderID

	tctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result, err := m.gw.SubmitOrder(tctx, *req)
	if err != nil {
		slog.Warn("exit submission failed, awaiting reconciliation",
			slog.String("symbol", pos.Symbol),
			slog.String("err", err.Error()))
		return
	}

	m.applyExitResult(pos, req.ClientOrderID, result)
}

func (m *Manager) handleLossAlert(pos *domain.Position, sig domain.Signal) {
	if pos.State != domain.StateOpen {
		return
	}

	m.transition(pos, domain.StateLossAlerted, sig.Kind.String())
	m.publishAlert(event.LevelWarn, pos.Symbol, "loss alert",
		fmt.Sprintf("price %s is %s%% below entry %s; position stays open, close manually if desired",
			sig.ObservedPrice, sig.PctMove.Mul(decimal.NewFromInt(100)).StringFixed(2), pos.EntryPrice))
}

// applyEntryResult folds the gateway's verdict on a BUY into the state
// machine.
func (m *Manager) applyEntryResult(pos *domain.Position, clientOrderID string, result domain.OrderResult) {
	m.publishOrderUpdate(pos.Symbol, clientOrderID, domain.SideBuy, result)

	switch result.Status {
	case domain.OrderFilled:
		if result.FilledQuantity <= 0 {
			return // fill event without an executed quantity, keep waiting
		}

		m.transition(pos, domain.StateOpen, "fill confirmed")
		pos.EntryPrice = result.FilledPrice
		pos.Quantity = result.FilledQuantity
		pos.Mode = result.GrantedMode // authoritative, may differ from the request
		pos.OpenedAt = time.Now()
		pos.PendingOrderID = ""

		// A fill below the reservation locked more than it bought;
		// return the excess so other symbols can use it.
		actual := result.FilledPrice.Mul(decimal.NewFromInt(result.FilledQuantity))
		if actual.LessThan(pos.ReservedAmount) {
			m.pool.Release(pos.ReservedAmount.Sub(actual), decimal.Zero)
			pos.ReservedAmount = actual
		}

	case domain.OrderRejected:
		m.transition(pos, domain.StateIdle, "entry rejected: "+result.Reason)
		m.pool.Release(pos.ReservedAmount, decimal.Zero)
		pos.ReservedAmount = decimal.Decimal{}
		pos.PendingOrderID = ""

	case domain.OrderPartial, domain.OrderPending:
		// Still working at the broker. Opening on a partial would leave
		// the working remainder as untracked exposure, so stay submitted
		// and reconcile next tick under the broker's own ID once it has
		// assigned one.
		if result.OrderID != "" {
			pos.PendingOrderID = result.OrderID
		}
	}
}

// applyExitResult folds the gateway's verdict on a SELL into the state
// machine and reconciles capital on close.
func (m *Manager) applyExitResult(pos *domain.Position, clientOrderID string, result domain.OrderResult) {
	m.publishOrderUpdate(pos.Symbol, clientOrderID, domain.SideSell, result)

	switch result.Status {
	case domain.OrderFilled:
		m.closePosition(pos, result.FilledPrice)

	case domain.OrderRejected:
		// Back to OPEN; if the loss condition still holds the next tick
		// re-flags it. Capital remains committed, the exit is retried on
		// every subsequent qualifying tick.
		m.transition(pos, domain.StateOpen, "exit rejected: "+result.Reason)
		pos.PendingOrderID = ""

	case domain.OrderPartial, domain.OrderPending:
		// Unwind still working at the broker; hold EXIT_SUBMITTED and
		// reconcile next tick under the broker's own ID.
		if result.OrderID != "" {
			pos.PendingOrderID = result.OrderID
		}
	}
}

// closePosition realizes P&L net of both legs' charges, releases
// capital exactly once, and re-arms the symbol with a fresh IDLE
// position.
func (m *Manager) closePosition(pos *domain.Position, exitPrice decimal.Decimal) {
	if pos.Terminal() {
		return // duplicate fill event, already closed
	}

	qty := decimal.NewFromInt(pos.Quantity)
	gross := exitPrice.Sub(pos.EntryPrice).Mul(qty)
	charges := pos.EntryPrice.Add(exitPrice).Mul(qty).Mul(m.brokeragePct)
	pnl := gross.Sub(charges)
	m.pool.Release(pos.ReservedAmount, pnl)

	m.transition(pos, domain.StateClosed, "exit filled, pnl "+pnl.String())
	pos.RealizedPnL = pnl
	pos.ClosedAt = time.Now()
	pos.PendingOrderID = ""

	fresh := domain.NewPosition(pos.Symbol)
	fresh.ReferenceClose = pos.ReferenceClose
	fresh.State = domain.StateClosed // so the re-arm records CLOSED -> IDLE
	m.positions[pos.Symbol] = fresh
	m.transition(fresh, domain.StateIdle, "re-armed")
}

func (m *Manager) transition(pos *domain.Position, to domain.PositionState, reason string) {
	from := pos.State
	pos.State = to

	slog.Info("position transition",
		slog.String("symbol", pos.Symbol),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("reason", reason))

	m.hub.Publish(&event.TransitionEvent{
		Symbol: pos.Symbol,
		From:   from.String(),
		To:     to.String(),
		Reason: reason,
	})
}

func (m *Manager) publishOrderUpdate(symbol, clientOrderID string, side domain.OrderSide, result domain.OrderResult) {
	m.hub.Publish(&event.OrderUpdateEvent{
		Symbol:        symbol,
		ClientOrderID: clientOrderID,
		Side:          string(side),
		Status:        string(result.Status),
		Quantity:      result.FilledQuantity,
		Price:         result.FilledPrice.String(),
		Mode:          string(result.GrantedMode),
		Reason:        result.Reason,
	})
}

func (m *Manager) publishAlert(level, symbol, title, message string) {
	m.hub.Publish(&event.AlertEvent{
		Level:   level,
		Symbol:  symbol,
		Title:   title,
		Message: message,
	})
}

// recoverInvariant converts an invariant panic into a paused symbol
// plus a FATAL alert. Picking a winner silently is never an option.
func (m *Manager) recoverInvariant(symbol string) {
	if r := recover(); r != nil {
		m.pauseLocked(symbol, fmt.Sprintf("invariant violation: %v", r))
		m.publishAlert(event.LevelFatal, symbol, "invariant violation",
			fmt.Sprintf("%v; symbol processing aborted, human intervention required", r))
	}
}
