package storage

import (
	"testing"

	"github.com/DMHCAIT/turteltrader/internal/domain"

	"github.com/shopspring/decimal"
)

func testSnapshot(ts int64) *Snapshot {
	return &Snapshot{
		TsUnix: ts,
		Capital: domain.CapitalSnapshot{
			Total:     decimal.NewFromInt(1_000_000),
			Committed: decimal.NewFromInt(35_000),
			Available: decimal.NewFromInt(665_000),
		},
		Positions: map[string]*domain.Position{
			"NIFTYBEES": {
				Symbol:     "NIFTYBEES",
				State:      domain.StateOpen,
				EntryPrice: decimal.NewFromInt(99),
				Quantity:   350,
				Mode:       domain.ModeMargin,
			},
		},
	}
}

func TestSnapshotManager_SaveAndLoad(t *testing.T) {
	sm := NewSnapshotManager(t.TempDir())

	if err := sm.Save(testSnapshot(1000)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := sm.Save(testSnapshot(2000)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot")
	}
	if snap.TsUnix != 2000 {
		t.Errorf("loaded ts = %d, want latest 2000", snap.TsUnix)
	}

	pos, ok := snap.Positions["NIFTYBEES"]
	if !ok {
		t.Fatal("position missing from snapshot")
	}
	if pos.State != domain.StateOpen || pos.Quantity != 350 {
		t.Errorf("position round-trip mismatch: %+v", pos)
	}
	if !snap.Capital.Committed.Equal(decimal.NewFromInt(35_000)) {
		t.Errorf("committed = %s, want 35000", snap.Capital.Committed)
	}
}

func TestSnapshotManager_LoadLatestEmpty(t *testing.T) {
	sm := NewSnapshotManager(t.TempDir())

	snap, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if snap != nil {
		t.Error("expected nil snapshot for empty dir")
	}
}

func TestSnapshotManager_Cleanup(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)

	for ts := int64(1); ts <= 5; ts++ {
		if err := sm.Save(testSnapshot(ts)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := sm.Cleanup(2); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	snap, err := sm.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest after cleanup failed: %v", err)
	}
	if snap == nil || snap.TsUnix != 5 {
		t.Error("latest snapshot should survive cleanup")
	}
}

func TestCreateSnapshot_CopiesPositions(t *testing.T) {
	positions := map[string]*domain.Position{
		"GOLDBEES": {Symbol: "GOLDBEES", State: domain.StateOpen, Quantity: 10},
	}
	snap := CreateSnapshot(domain.CapitalSnapshot{}, positions)

	// Mutating the source must not leak into the snapshot.
	positions["GOLDBEES"].Quantity = 999

	if snap.Positions["GOLDBEES"].Quantity != 10 {
		t.Error("snapshot shares memory with live positions")
	}
}
