package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/domain"
	"github.com/DMHCAIT/turteltrader/internal/event"
	"github.com/DMHCAIT/turteltrader/internal/gateway"
	"github.com/DMHCAIT/turteltrader/internal/storage"

	"github.com/shopspring/decimal"
)

type monitorFixture struct {
	pool    *domain.CapitalPool
	mock    *gateway.MockGateway
	mgr     *Manager
	monitor *Monitor
	col     *collector
	stop    func()
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	pool := newTestPool(t)
	mock := gateway.NewMockGateway()
	mock.Closes["NIFTYBEES"] = decimal.NewFromInt(100)
	mock.Prices["NIFTYBEES"] = decimal.NewFromInt(100)

	hub := event.NewHub(256)
	col := &collector{}
	hub.Subscribe(col)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mgr := NewManager(pool, mock, hub, time.Second)
	mgr.Track("NIFTYBEES")

	monitor := NewMonitor(MonitorConfig{
		Symbols:        []string{"NIFTYBEES"},
		Interval:       time.Minute,
		GatewayTimeout: time.Second,
	}, mock, newTestDetector(), mgr, pool, hub)

	f := &monitorFixture{
		pool:    pool,
		mock:    mock,
		mgr:     mgr,
		monitor: monitor,
		col:     col,
		stop:    func() { cancel(); hub.Wait() },
	}
	t.Cleanup(f.stop)
	return f
}

// Full dip-to-profit round trip: 1,000,000 capital, 70% deployable, 5%
// per trade = 35,000. Dip at 99 buys floor(35000/99) = 353 units; exit
// at 102 realizes 353 * 3 = 1,059.
func TestMonitor_EndToEndRoundTrip(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	now := time.Now()

	f.mock.Prices["NIFTYBEES"] = decimal.NewFromInt(99)
	f.monitor.Tick(ctx, now)

	pos, _ := f.mgr.Position("NIFTYBEES")
	if pos.State != domain.StateOpen {
		t.Fatalf("after dip tick: state = %s, want OPEN", pos.State)
	}
	if pos.Quantity != 353 {
		t.Errorf("quantity = %d, want 353", pos.Quantity)
	}
	if !f.pool.Snapshot().Committed.Equal(decimal.NewFromInt(34_947)) {
		t.Errorf("committed = %s, want cost basis 34947", f.pool.Snapshot().Committed)
	}

	f.mock.Prices["NIFTYBEES"] = decimal.NewFromInt(102)
	f.monitor.Tick(ctx, now.Add(30*time.Second))

	pos, _ = f.mgr.Position("NIFTYBEES")
	if pos.State != domain.StateIdle {
		t.Fatalf("after profit tick: state = %s, want IDLE", pos.State)
	}

	snap := f.pool.Snapshot()
	if !snap.Committed.IsZero() {
		t.Errorf("committed = %s, want 0", snap.Committed)
	}
	if !snap.Total.Equal(decimal.NewFromInt(1_001_059)) {
		t.Errorf("total = %s, want 1001059", snap.Total)
	}

	// The symbol is re-eligible: a fresh dip re-enters with compounded
	// sizing (35,037.065 per trade).
	f.mock.Prices["NIFTYBEES"] = decimal.NewFromInt(99)
	f.monitor.Tick(ctx, now.Add(time.Minute))
	pos, _ = f.mgr.Position("NIFTYBEES")
	if pos.State != domain.StateOpen {
		t.Errorf("re-entry after close: state = %s, want OPEN", pos.State)
	}
}

func TestMonitor_QuoteUnavailableSkipsSymbol(t *testing.T) {
	f := newMonitorFixture(t)
	f.mock.QuoteErr = errors.New("feed down")

	f.monitor.Tick(context.Background(), time.Now())

	pos, _ := f.mgr.Position("NIFTYBEES")
	if pos.State != domain.StateIdle {
		t.Errorf("state = %s, quote gap must cause no state change", pos.State)
	}
}

func TestMonitor_NoDipWithoutReferenceClose(t *testing.T) {
	f := newMonitorFixture(t)
	f.mock.CloseErr = errors.New("close unavailable")
	f.mock.Prices["NIFTYBEES"] = decimal.NewFromInt(99)

	f.monitor.Tick(context.Background(), time.Now())

	pos, _ := f.mgr.Position("NIFTYBEES")
	if pos.State != domain.StateIdle {
		t.Errorf("state = %s, no dip without a session baseline", pos.State)
	}
}

func TestMonitor_SessionRolloverRefetchesClose(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	day1 := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	f.monitor.Tick(ctx, day1)
	pos, _ := f.mgr.Position("NIFTYBEES")
	if !pos.ReferenceClose.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("reference close = %s, want 100", pos.ReferenceClose)
	}

	// Next session: yesterday's close moved to 102.
	f.mock.Closes["NIFTYBEES"] = decimal.NewFromInt(102)
	f.mock.Prices["NIFTYBEES"] = decimal.NewFromInt(103)
	f.monitor.Tick(ctx, day1.Add(24*time.Hour))

	pos, _ = f.mgr.Position("NIFTYBEES")
	if !pos.ReferenceClose.Equal(decimal.NewFromInt(102)) {
		t.Errorf("reference close = %s, want refetched 102", pos.ReferenceClose)
	}
}

func TestMonitor_RestoresReferenceCloseAfterRestart(t *testing.T) {
	store, err := storage.NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	day := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	f := newMonitorFixture(t)
	f.monitor.WithMetadata(store)
	f.monitor.Tick(context.Background(), day)

	got, err := store.GetMetadata(context.Background(), "session_date")
	if err != nil || got != "2026-08-31" {
		t.Fatalf("session_date = %q (%v), want 2026-08-31", got, err)
	}

	// Same session, fresh process: the close feed is down but the
	// persisted baseline still arms dip detection.
	f2 := newMonitorFixture(t)
	f2.monitor.WithMetadata(store)
	f2.mock.CloseErr = errors.New("close unavailable")
	f2.mock.Prices["NIFTYBEES"] = decimal.NewFromInt(99)
	f2.monitor.Tick(context.Background(), day.Add(time.Hour))

	pos, _ := f2.mgr.Position("NIFTYBEES")
	if !pos.ReferenceClose.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("reference close = %s, want the restored 100", pos.ReferenceClose)
	}
	if pos.State != domain.StateOpen {
		t.Errorf("state = %s, want OPEN from the restored baseline", pos.State)
	}
}

func TestMonitor_ReconcilesPendingOrderOnTick(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	now := time.Now()

	f.mock.Prices["NIFTYBEES"] = decimal.NewFromInt(99)
	f.mock.SubmitErr = errors.New("gateway timeout")
	f.monitor.Tick(ctx, now)

	pos, _ := f.mgr.Position("NIFTYBEES")
	if pos.State != domain.StateOrderSubmitted {
		t.Fatalf("state = %s, want ORDER_SUBMITTED", pos.State)
	}

	f.mock.SubmitErr = nil
	f.mock.StatusResults[pos.PendingOrderID] = domain.OrderResult{
		OrderID:        "b1",
		Status:         domain.OrderFilled,
		FilledQuantity: 353,
		FilledPrice:    decimal.NewFromInt(99),
		GrantedMode:    domain.ModeMargin,
	}
	f.monitor.Tick(ctx, now.Add(30*time.Second))

	pos, _ = f.mgr.Position("NIFTYBEES")
	if pos.State != domain.StateOpen {
		t.Errorf("state = %s, want OPEN after on-tick reconciliation", pos.State)
	}
}

func TestMonitor_PublishesCapitalSnapshot(t *testing.T) {
	f := newMonitorFixture(t)

	f.monitor.Tick(context.Background(), time.Now())
	f.stop()

	found := false
	f.col.mu.Lock()
	for _, ev := range f.col.events {
		if _, ok := ev.(*event.CapitalSnapshotEvent); ok {
			found = true
		}
	}
	f.col.mu.Unlock()
	if !found {
		t.Error("expected a capital snapshot event after the tick")
	}
}
