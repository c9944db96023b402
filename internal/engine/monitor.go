package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/domain"
	"github.com/DMHCAIT/turteltrader/internal/event"
	"github.com/DMHCAIT/turteltrader/internal/gateway"
	"github.com/DMHCAIT/turteltrader/internal/storage"
	"github.com/DMHCAIT/turteltrader/internal/telemetry"

	"github.com/shopspring/decimal"
)

// snapshotKeep is how many JSON snapshots survive cleanup.
const snapshotKeep = 20

// Metadata keys for state that survives restarts.
const (
	metaSessionDate    = "session_date"
	metaRefClosePrefix = "refclose:"
)

// MonitorConfig carries the scheduling knobs for the tick loop.
type MonitorConfig struct {
	Symbols        []string
	Interval       time.Duration
	GatewayTimeout time.Duration

	// SnapshotEvery writes a JSON snapshot every N ticks; 0 disables.
	SnapshotEvery int
}

// Monitor is the single loop driving all symbols at a fixed cadence.
// Within one tick every symbol is evaluated before the next tick
// starts; ticks never overlap.
type Monitor struct {
	cfg      MonitorConfig
	market   gateway.MarketData
	detector *Detector
	mgr      *Manager
	pool     *domain.CapitalPool
	hub      *event.Hub

	snapshots   *storage.SnapshotManager
	meta        *storage.AuditStore
	tickCount   int
	sessionDate string
}

// NewMonitor wires the monitoring loop.
func NewMonitor(cfg MonitorConfig, market gateway.MarketData, detector *Detector, mgr *Manager, pool *domain.CapitalPool, hub *event.Hub) *Monitor {
	return &Monitor{
		cfg:      cfg,
		market:   market,
		detector: detector,
		mgr:      mgr,
		pool:     pool,
		hub:      hub,
	}
}

// WithSnapshots enables periodic JSON snapshots for the dashboard.
func (m *Monitor) WithSnapshots(sm *storage.SnapshotManager) *Monitor {
	m.snapshots = sm
	return m
}

// WithMetadata persists the session date and reference closes so a
// restart inside one session keeps its baselines.
func (m *Monitor) WithMetadata(store *storage.AuditStore) *Monitor {
	m.meta = store
	return m
}

// Run ticks until the context is cancelled. The first tick fires
// immediately.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("monitoring loop started",
		slog.Int("symbols", len(m.cfg.Symbols)),
		slog.Duration("interval", m.cfg.Interval))

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			slog.Info("monitoring loop stopped")
			return
		case now := <-ticker.C:
			m.Tick(ctx, now)
		}
	}
}

// Tick evaluates every tracked symbol once. Exported so tests can
// drive the loop deterministically.
func (m *Monitor) Tick(ctx context.Context, now time.Time) {
	if m.sessionDate == "" {
		m.restoreSession(ctx, now)
	}
	m.rolloverSession(ctx, now)

	for _, symbol := range m.cfg.Symbols {
		m.tickSymbol(ctx, symbol, now)
	}

	m.publishCapital()
	m.maybeSnapshot()

	telemetry.IncTick()
	telemetry.SetDroppedEvents(m.hub.Dropped())
}

// rolloverSession clears cached reference closes when the calendar day
// changes, so each session re-fetches its baseline.
func (m *Monitor) rolloverSession(ctx context.Context, now time.Time) {
	date := now.Format("2006-01-02")
	if m.sessionDate == date {
		return
	}
	if m.sessionDate != "" {
		slog.Info("session rollover, clearing reference closes",
			slog.String("from", m.sessionDate), slog.String("to", date))
		m.mgr.ClearReferenceCloses()
		for _, symbol := range m.cfg.Symbols {
			m.saveMeta(ctx, metaRefClosePrefix+symbol, "", now)
		}
	}
	m.sessionDate = date
	m.saveMeta(ctx, metaSessionDate, date, now)
}

// restoreSession reloads persisted reference closes when restarting
// within the same session a previous process already initialized.
func (m *Monitor) restoreSession(ctx context.Context, now time.Time) {
	if m.meta == nil {
		return
	}
	stored, err := m.meta.GetMetadata(ctx, metaSessionDate)
	if err != nil || stored != now.Format("2006-01-02") {
		return
	}

	for _, symbol := range m.cfg.Symbols {
		raw, err := m.meta.GetMetadata(ctx, metaRefClosePrefix+symbol)
		if err != nil || raw == "" {
			continue
		}
		close, err := decimal.NewFromString(raw)
		if err != nil || !close.IsPositive() {
			continue
		}
		m.mgr.SetReferenceClose(symbol, close)
		slog.Info("restored reference close",
			slog.String("symbol", symbol), slog.String("close", close.String()))
	}
}

func (m *Monitor) saveMeta(ctx context.Context, key, value string, now time.Time) {
	if m.meta == nil {
		return
	}
	if err := m.meta.UpsertMetadata(ctx, key, value, now.UnixMicro()); err != nil {
		slog.Warn("metadata save failed",
			slog.String("key", key), slog.String("err", err.Error()))
	}
}

func (m *Monitor) tickSymbol(ctx context.Context, symbol string, now time.Time) {
	if m.mgr.IsPaused(symbol) {
		return
	}

	// Resolve any in-flight order before reading state: a fill that
	// landed since last tick changes what signals apply.
	if m.mgr.NeedsReconciliation(symbol) {
		m.mgr.ReconcilePending(ctx, symbol)
	}

	pos, ok := m.mgr.Position(symbol)
	if !ok {
		return
	}

	// Baseline for dip detection, fetched once per session.
	if !pos.ReferenceClose.IsPositive() {
		tctx, cancel := context.WithTimeout(ctx, m.cfg.GatewayTimeout)
		close, err := m.market.ReferenceClose(tctx, symbol)
		cancel()
		if err != nil {
			slog.Debug("reference close unavailable",
				slog.String("symbol", symbol), slog.String("err", err.Error()))
		} else {
			m.mgr.SetReferenceClose(symbol, close)
			pos.ReferenceClose = close
			m.saveMeta(ctx, metaRefClosePrefix+symbol, close.String(), now)
		}
	}

	tctx, cancel := context.WithTimeout(ctx, m.cfg.GatewayTimeout)
	quote, err := m.market.Quote(tctx, symbol)
	cancel()
	if err != nil {
		// Transient data gap: no signal, no state change this tick.
		slog.Debug("quote unavailable, skipping tick",
			slog.String("symbol", symbol), slog.String("err", err.Error()))
		return
	}

	sig := m.detector.Evaluate(&pos, quote.Price, now)
	if sig == nil {
		return
	}

	m.hub.Publish(&event.SignalEvent{Signal: *sig})
	m.mgr.HandleSignal(ctx, *sig)
}

func (m *Monitor) publishCapital() {
	snap := m.pool.Snapshot()
	m.hub.Publish(&event.CapitalSnapshotEvent{
		Total:     snap.Total.String(),
		Committed: snap.Committed.String(),
		Available: snap.Available.String(),
	})
}

func (m *Monitor) maybeSnapshot() {
	m.tickCount++
	if m.snapshots == nil || m.cfg.SnapshotEvery <= 0 || m.tickCount%m.cfg.SnapshotEvery != 0 {
		return
	}

	snap := storage.CreateSnapshot(m.pool.Snapshot(), m.mgr.Positions())
	if err := m.snapshots.Save(snap); err != nil {
		slog.Warn("snapshot save failed", slog.String("err", err.Error()))
		return
	}
	if err := m.snapshots.Cleanup(snapshotKeep); err != nil {
		slog.Warn("snapshot cleanup failed", slog.String("err", err.Error()))
	}
}
