package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DMHCAIT/turteltrader/internal/event"
)

func newTestStore(t *testing.T) *AuditStore {
	t.Helper()
	store, err := NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAuditStore_SaveAndLoadTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev1 := &event.TransitionEvent{
		BaseEvent: event.BaseEvent{Seq: 1, TsUnixMicro: 1000},
		Symbol:    "NIFTYBEES",
		From:      "IDLE",
		To:        "ORDER_SUBMITTED",
		Reason:    "DIP_ENTRY",
	}
	ev2 := &event.TransitionEvent{
		BaseEvent: event.BaseEvent{Seq: 2, TsUnixMicro: 2000},
		Symbol:    "NIFTYBEES",
		From:      "ORDER_SUBMITTED",
		To:        "OPEN",
		Reason:    "fill",
	}
	ev3 := &event.TransitionEvent{
		BaseEvent: event.BaseEvent{Seq: 3, TsUnixMicro: 3000},
		Symbol:    "GOLDBEES",
		From:      "IDLE",
		To:        "ORDER_SUBMITTED",
		Reason:    "DIP_ENTRY",
	}

	for _, ev := range []*event.TransitionEvent{ev1, ev2, ev3} {
		if err := store.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("failed to save event %d: %v", ev.Seq, err)
		}
	}

	loaded, err := store.LoadTransitions(ctx, "NIFTYBEES")
	if err != nil {
		t.Fatalf("failed to load transitions: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 transitions for NIFTYBEES, got %d", len(loaded))
	}
	if loaded[0].GetSeq() != 1 || loaded[1].GetSeq() != 2 {
		t.Errorf("transitions out of order: %d, %d", loaded[0].GetSeq(), loaded[1].GetSeq())
	}
	if loaded[1].To != "OPEN" {
		t.Errorf("transition payload mismatch: %s", loaded[1].To)
	}

	all, err := store.LoadTransitions(ctx, "")
	if err != nil {
		t.Fatalf("failed to load all transitions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 transitions in total, got %d", len(all))
	}
}

func TestAuditStore_GetLastSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Empty DB should return 0.
	lastSeq, err := store.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq failed: %v", err)
	}
	if lastSeq != 0 {
		t.Errorf("expected 0 for empty DB, got %d", lastSeq)
	}

	ev := &event.AlertEvent{
		BaseEvent: event.BaseEvent{Seq: 7, TsUnixMicro: 1000},
		Level:     event.LevelWarn,
		Symbol:    "NIFTYBEES",
		Title:     "loss alert",
	}
	if err := store.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("failed to save event: %v", err)
	}

	lastSeq, err = store.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq failed: %v", err)
	}
	if lastSeq != 7 {
		t.Errorf("expected 7, got %d", lastSeq)
	}
}

func TestAuditStore_SequenceSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	ctx := context.Background()

	store, err := NewAuditStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	ev := &event.AlertEvent{
		BaseEvent: event.BaseEvent{Seq: 1, TsUnixMicro: 1000},
		Level:     event.LevelInfo,
		Title:     "startup",
	}
	if err := store.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("failed to save event: %v", err)
	}
	store.Close()

	// A new process must resume numbering where the log left off, or
	// every insert after the restart hits the primary key.
	reopened, err := NewAuditStore(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	lastSeq, err := reopened.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq failed: %v", err)
	}
	if lastSeq != 1 {
		t.Fatalf("lastSeq = %d, want 1", lastSeq)
	}

	next := &event.AlertEvent{
		BaseEvent: event.BaseEvent{Seq: lastSeq + 1, TsUnixMicro: 2000},
		Level:     event.LevelInfo,
		Title:     "startup",
	}
	if err := reopened.SaveEvent(ctx, next); err != nil {
		t.Fatalf("save after restart failed: %v", err)
	}
}

func TestAuditStore_LoadAlerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alert := &event.AlertEvent{
		BaseEvent: event.BaseEvent{Seq: 1, TsUnixMicro: 1000},
		Level:     event.LevelFatal,
		Symbol:    "GOLDBEES",
		Title:     "reconciliation failed",
		Message:   "order status unavailable after retries",
	}
	if err := store.SaveEvent(ctx, alert); err != nil {
		t.Fatalf("failed to save alert: %v", err)
	}

	alerts, err := store.LoadAlerts(ctx)
	if err != nil {
		t.Fatalf("LoadAlerts failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Level != event.LevelFatal {
		t.Errorf("level = %s, want FATAL", alerts[0].Level)
	}
}

func TestAuditStore_Metadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMetadata(ctx, "session_date", "2026-08-31", 1000); err != nil {
		t.Fatalf("UpsertMetadata failed: %v", err)
	}
	if err := store.UpsertMetadata(ctx, "session_date", "2026-09-01", 2000); err != nil {
		t.Fatalf("UpsertMetadata overwrite failed: %v", err)
	}

	val, err := store.GetMetadata(ctx, "session_date")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if val != "2026-09-01" {
		t.Errorf("value = %q, want 2026-09-01", val)
	}

	missing, err := store.GetMetadata(ctx, "nope")
	if err != nil {
		t.Fatalf("GetMetadata for missing key failed: %v", err)
	}
	if missing != "" {
		t.Errorf("expected empty value for missing key, got %q", missing)
	}
}
