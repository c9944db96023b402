// Package telemetry exposes Prometheus metrics and the webhook notifier.
// Both consume engine events; neither influences engine decisions.
package telemetry

import (
	"strconv"

	"github.com/DMHCAIT/turteltrader/internal/event"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mtxSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_signals_total",
			Help: "Detector signals emitted, by kind",
		},
		[]string{"kind"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_orders_total",
			Help: "Order outcomes, by side and status",
		},
		[]string{"side", "status"},
	)

	mtxTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_transitions_total",
			Help: "Position state transitions, by target state",
		},
		[]string{"to"},
	)

	mtxAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turtle_alerts_total",
			Help: "Alerts raised, by level",
		},
		[]string{"level"},
	)

	gaugeTotalCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turtle_capital_total",
			Help: "Total capital including realized P&L",
		},
	)

	gaugeCommitted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turtle_capital_committed",
			Help: "Capital locked in open positions",
		},
	)

	gaugeAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turtle_capital_available",
			Help: "Deployable capital not yet committed",
		},
	)

	mtxTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "turtle_ticks_total",
			Help: "Monitoring loop ticks completed",
		},
	)

	mtxDroppedEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turtle_events_dropped_total",
			Help: "Events dropped due to a full hub inbox",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxSignals,
		mtxOrders,
		mtxTransitions,
		mtxAlerts,
		gaugeTotalCapital,
		gaugeCommitted,
		gaugeAvailable,
		mtxTicks,
		mtxDroppedEvents,
	)
}

// IncTick counts one completed monitoring tick.
func IncTick() { mtxTicks.Inc() }

// SetDroppedEvents mirrors the hub's drop counter.
func SetDroppedEvents(n uint64) { mtxDroppedEvents.Set(float64(n)) }

// MetricsSink implements event.Sink, translating engine events into
// Prometheus series. Subscribe it to the hub.
type MetricsSink struct{}

// Consume implements event.Sink.
func (MetricsSink) Consume(ev event.Event) {
	switch e := ev.(type) {
	case *event.SignalEvent:
		mtxSignals.WithLabelValues(e.Signal.Kind.String()).Inc()

	case *event.OrderUpdateEvent:
		mtxOrders.WithLabelValues(e.Side, e.Status).Inc()

	case *event.TransitionEvent:
		mtxTransitions.WithLabelValues(e.To).Inc()

	case *event.AlertEvent:
		mtxAlerts.WithLabelValues(e.Level).Inc()

	case *event.CapitalSnapshotEvent:
		setGaugeFromString(gaugeTotalCapital, e.Total)
		setGaugeFromString(gaugeCommitted, e.Committed)
		setGaugeFromString(gaugeAvailable, e.Available)
	}
}

func setGaugeFromString(g prometheus.Gauge, s string) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		g.Set(f)
	}
}
