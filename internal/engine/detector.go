// Package engine contains the capital allocation and position lifecycle
// core: signal detection, order sizing with settlement mode selection,
// the per-symbol state machine, and the monitoring loop that drives it.
package engine

import (
	"time"

	"github.com/DMHCAIT/turteltrader/internal/domain"

	"github.com/shopspring/decimal"
)

// Detector turns price observations into typed signals. It holds no
// cross-tick state: reference close and entry price are read from the
// position owned by the lifecycle manager.
type Detector struct {
	dipThreshold    decimal.Decimal
	profitThreshold decimal.Decimal
	lossThreshold   decimal.Decimal
}

// NewDetector creates a detector with the given thresholds, each a
// fraction in (0,1).
func NewDetector(dip, profit, loss decimal.Decimal) *Detector {
	return &Detector{
		dipThreshold:    dip,
		profitThreshold: profit,
		lossThreshold:   loss,
	}
}

// Evaluate inspects one price observation against the position and
// returns at most one signal. When several thresholds hold at once the
// priority is PROFIT_EXIT > LOSS_ALERT > DIP_ENTRY: an open position's
// exit always wins over any new entry consideration.
func (d *Detector) Evaluate(pos *domain.Position, price decimal.Decimal, now time.Time) *domain.Signal {
	one := decimal.NewFromInt(1)

	switch pos.State {
	case domain.StateOpen, domain.StateLossAlerted:
		entry := pos.EntryPrice
		if !entry.IsPositive() {
			return nil
		}

		profitLine := entry.Mul(one.Add(d.profitThreshold))
		if price.GreaterThanOrEqual(profitLine) {
			return d.signal(domain.SignalProfitExit, pos.Symbol, price, entry, now)
		}

		// A position already flagged stays flagged; no repeat alerts.
		if pos.State == domain.StateOpen {
			lossLine := entry.Mul(one.Sub(d.lossThreshold))
			if price.LessThanOrEqual(lossLine) {
				return d.signal(domain.SignalLossAlert, pos.Symbol, price, entry, now)
			}
		}

	case domain.StateIdle:
		// No reference close yet (first tick of the session): no dip.
		ref := pos.ReferenceClose
		if !ref.IsPositive() {
			return nil
		}

		dipLine := ref.Mul(one.Sub(d.dipThreshold))
		if price.LessThanOrEqual(dipLine) {
			return d.signal(domain.SignalDipEntry, pos.Symbol, price, ref, now)
		}
	}

	return nil
}

func (d *Detector) signal(kind domain.SignalKind, symbol string, price, ref decimal.Decimal, now time.Time) *domain.Signal {
	return &domain.Signal{
		Kind:           kind,
		Symbol:         symbol,
		ObservedPrice:  price,
		ReferencePrice: ref,
		PctMove:        price.Sub(ref).Div(ref),
		Timestamp:      now,
	}
}
