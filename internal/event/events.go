package event

import (
	"github.com/DMHCAIT/turteltrader/internal/domain"
)

// Type defines the type of event.
type Type uint16

const (
	EvSignal Type = iota + 1
	EvTransition
	EvOrderUpdate
	EvCapitalSnapshot
	EvAlert
)

// Alert severity levels consumed by notification sinks.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelFatal = "FATAL"
)

// Event is the interface for all engine events. Events are produced for
// presentation and notification sinks and persisted to the audit log;
// they never influence engine decisions.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq         uint64 `json:"seq"`
	TsUnixMicro int64  `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64 { return e.Seq }
func (e BaseEvent) GetTs() int64   { return e.TsUnixMicro }

// SignalEvent records a detector signal for the audit trail.
type SignalEvent struct {
	BaseEvent
	Signal domain.Signal `json:"signal"`
}

func (e SignalEvent) GetType() Type { return EvSignal }

// TransitionEvent records one position state machine transition.
type TransitionEvent struct {
	BaseEvent
	Symbol string `json:"symbol"`
	From   string `json:"from_state"`
	To     string `json:"to_state"`
	Reason string `json:"reason"`
}

func (e TransitionEvent) GetType() Type { return EvTransition }

// OrderUpdateEvent records one order round-trip outcome.
type OrderUpdateEvent struct {
	BaseEvent
	Symbol        string `json:"symbol"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	Quantity      int64  `json:"quantity"`
	Price         string `json:"price"`
	Mode          string `json:"mode"`
	Reason        string `json:"reason,omitempty"`
}

func (e OrderUpdateEvent) GetType() Type { return EvOrderUpdate }

// CapitalSnapshotEvent carries the pool state after a tick. Amounts are
// decimal strings so the payload survives JSON round-trips losslessly.
type CapitalSnapshotEvent struct {
	BaseEvent
	Total     string `json:"total_capital"`
	Committed string `json:"committed"`
	Available string `json:"available"`
}

func (e CapitalSnapshotEvent) GetType() Type { return EvCapitalSnapshot }

// AlertEvent is an actionable notification: loss alerts, reconciliation
// failures, invariant violations.
type AlertEvent struct {
	BaseEvent
	Level   string `json:"level"`
	Symbol  string `json:"symbol,omitempty"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (e AlertEvent) GetType() Type { return EvAlert }
