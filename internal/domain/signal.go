package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalKind tags the signal variant so the lifecycle manager can match
// exhaustively on it.
type SignalKind int

const (
	SignalDipEntry SignalKind = iota + 1
	SignalProfitExit
	SignalLossAlert
)

func (k SignalKind) String() string {
	switch k {
	case SignalDipEntry:
		return "DIP_ENTRY"
	case SignalProfitExit:
		return "PROFIT_EXIT"
	case SignalLossAlert:
		return "LOSS_ALERT"
	default:
		return "UNKNOWN"
	}
}

// Signal is a per-tick observation that crossed a configured threshold.
// Ephemeral: produced by the detector, consumed once by the lifecycle
// manager, persisted only to the audit log.
type Signal struct {
	Kind           SignalKind      `json:"kind"`
	Symbol         string          `json:"symbol"`
	ObservedPrice  decimal.Decimal `json:"observed_price"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	PctMove        decimal.Decimal `json:"pct_move"`
	Timestamp      time.Time       `json:"timestamp"`
}
