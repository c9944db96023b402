package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPosition_Exposure(t *testing.T) {
	tests := []struct {
		state    PositionState
		exposed  bool
		canEnter bool
	}{
		{StateIdle, false, true},
		{StateSignalPending, false, false},
		{StateOrderSubmitted, false, false},
		{StateOpen, true, false},
		{StateExitSignaled, true, false},
		{StateExitSubmitted, true, false},
		{StateLossAlerted, true, false},
		{StateClosed, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			p := &Position{Symbol: "NIFTYBEES", State: tt.state}
			if got := p.IsExposed(); got != tt.exposed {
				t.Errorf("IsExposed() = %v, want %v", got, tt.exposed)
			}
			if got := p.CanEnter(); got != tt.canEnter {
				t.Errorf("CanEnter() = %v, want %v", got, tt.canEnter)
			}
		})
	}
}

func TestPosition_UnrealizedPnL(t *testing.T) {
	p := &Position{
		Symbol:     "GOLDBEES",
		State:      StateOpen,
		EntryPrice: decimal.NewFromInt(99),
		Quantity:   350,
	}

	// 350 * (102 - 99) = 1050
	got := p.UnrealizedPnL(decimal.NewFromInt(102))
	if !got.Equal(decimal.NewFromInt(1_050)) {
		t.Errorf("UnrealizedPnL = %s, want 1050", got)
	}

	// No exposure, no P&L.
	p.State = StateClosed
	if !p.UnrealizedPnL(decimal.NewFromInt(102)).IsZero() {
		t.Error("closed position should have zero unrealized P&L")
	}
}

func TestPositionState_String(t *testing.T) {
	if StateOrderSubmitted.String() != "ORDER_SUBMITTED" {
		t.Errorf("unexpected state string: %s", StateOrderSubmitted)
	}
	if PositionState(99).String() != "UNKNOWN" {
		t.Error("out-of-range state should stringify as UNKNOWN")
	}
}
