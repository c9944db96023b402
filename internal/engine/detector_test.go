package engine

import (
	"testing"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestDetector() *Detector {
	return NewDetector(
		decimal.NewFromFloat(0.01),
		decimal.NewFromFloat(0.03),
		decimal.NewFromFloat(0.05),
	)
}

func TestDetector_DipEntryBoundary(t *testing.T) {
	d := newTestDetector()
	now := time.Now()

	tests := []struct {
		name  string
		price string
		want  bool
	}{
		{"exactly at threshold", "99.00", true},
		{"one paisa above threshold", "99.01", false},
		{"well below threshold", "95.50", true},
		{"at reference", "100.00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := domain.NewPosition("NIFTYBEES")
			pos.ReferenceClose = decimal.NewFromInt(100)

			sig := d.Evaluate(pos, decimal.RequireFromString(tt.price), now)
			got := sig != nil && sig.Kind == domain.SignalDipEntry
			if got != tt.want {
				t.Errorf("price %s: dip = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestDetector_NoDipWithoutReferenceClose(t *testing.T) {
	d := newTestDetector()
	pos := domain.NewPosition("NIFTYBEES")

	if sig := d.Evaluate(pos, decimal.NewFromInt(50), time.Now()); sig != nil {
		t.Errorf("expected no signal on first tick of session, got %s", sig.Kind)
	}
}

func TestDetector_NoDipUnlessIdle(t *testing.T) {
	d := newTestDetector()
	pos := domain.NewPosition("NIFTYBEES")
	pos.ReferenceClose = decimal.NewFromInt(100)
	pos.State = domain.StateOrderSubmitted

	if sig := d.Evaluate(pos, decimal.NewFromInt(95), time.Now()); sig != nil {
		t.Errorf("expected no signal while order in flight, got %s", sig.Kind)
	}
}

func TestDetector_ProfitExitBoundary(t *testing.T) {
	d := newTestDetector()
	now := time.Now()

	tests := []struct {
		name  string
		price string
		want  bool
	}{
		{"exactly at target", "103.00", true},
		{"one paisa below target", "102.99", false},
		{"above target", "110.00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := domain.NewPosition("NIFTYBEES")
			pos.State = domain.StateOpen
			pos.EntryPrice = decimal.NewFromInt(100)
			pos.Quantity = 350

			sig := d.Evaluate(pos, decimal.RequireFromString(tt.price), now)
			got := sig != nil && sig.Kind == domain.SignalProfitExit
			if got != tt.want {
				t.Errorf("price %s: profit exit = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}

func TestDetector_LossAlert(t *testing.T) {
	d := newTestDetector()
	pos := domain.NewPosition("NIFTYBEES")
	pos.State = domain.StateOpen
	pos.EntryPrice = decimal.NewFromInt(100)
	pos.Quantity = 350

	sig := d.Evaluate(pos, decimal.NewFromInt(95), time.Now())
	if sig == nil || sig.Kind != domain.SignalLossAlert {
		t.Fatalf("expected LOSS_ALERT at -5%%, got %v", sig)
	}

	// Already flagged positions are not re-alerted.
	pos.State = domain.StateLossAlerted
	if sig := d.Evaluate(pos, decimal.NewFromInt(94), time.Now()); sig != nil {
		t.Errorf("expected no repeat alert, got %s", sig.Kind)
	}
}

func TestDetector_ProfitBeatsLossAlertedState(t *testing.T) {
	// A loss-alerted position that recovers past the target still exits.
	d := newTestDetector()
	pos := domain.NewPosition("NIFTYBEES")
	pos.State = domain.StateLossAlerted
	pos.EntryPrice = decimal.NewFromInt(100)
	pos.Quantity = 350

	sig := d.Evaluate(pos, decimal.NewFromInt(103), time.Now())
	if sig == nil || sig.Kind != domain.SignalProfitExit {
		t.Fatalf("expected PROFIT_EXIT from LOSS_ALERTED, got %v", sig)
	}
}

func TestDetector_PctMove(t *testing.T) {
	d := newTestDetector()
	pos := domain.NewPosition("NIFTYBEES")
	pos.ReferenceClose = decimal.NewFromInt(100)

	sig := d.Evaluate(pos, decimal.NewFromInt(99), time.Now())
	if sig == nil {
		t.Fatal("expected a dip signal")
	}
	if !sig.PctMove.Equal(decimal.NewFromFloat(-0.01)) {
		t.Errorf("pct move = %s, want -0.01", sig.PctMove)
	}
	if !sig.ReferencePrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("reference = %s, want 100", sig.ReferencePrice)
	}
}
