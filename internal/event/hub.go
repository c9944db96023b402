package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink consumes events. Implementations must not block for long; slow
// sinks cause drops, never engine stalls.
type Sink interface {
	Consume(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) Consume(ev Event) { f(ev) }

// Hub fans engine events out to registered sinks from a single dispatch
// goroutine. Publish assigns sequence numbers and timestamps; when the
// buffer is full the event is dropped and counted rather than blocking
// the monitoring loop.
type Hub struct {
	mu      sync.RWMutex
	sinks   []Sink
	inbox   chan Event
	nextSeq uint64
	dropped uint64
	wg      sync.WaitGroup
}

// NewHub creates a hub with the given inbox buffer size.
func NewHub(inboxSize int) *Hub {
	return &Hub{inbox: make(chan Event, inboxSize)}
}

// SeedSeq continues sequence numbering after n. Call before Run with
// the highest sequence already persisted so a restart never reissues
// an audit-log id.
func (h *Hub) SeedSeq(n uint64) {
	atomic.StoreUint64(&h.nextSeq, n)
}

// Subscribe registers a sink. Must be called before Run.
func (h *Hub) Subscribe(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Run dispatches events until the context is cancelled. Run it in its
// own goroutine.
func (h *Hub) Run(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued so late lifecycle events
			// still reach the audit log.
			for {
				select {
				case ev := <-h.inbox:
					h.dispatch(ev)
				default:
					return
				}
			}
		case ev := <-h.inbox:
			h.dispatch(ev)
		}
	}
}

// Wait blocks until the dispatch goroutine has exited.
func (h *Hub) Wait() { h.wg.Wait() }

func (h *Hub) dispatch(ev Event) {
	h.mu.RLock()
	sinks := h.sinks
	h.mu.RUnlock()

	for _, s := range sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event sink panicked", slog.Any("panic", r))
				}
			}()
			s.Consume(ev)
		}()
	}
}

// Publish stamps the event and queues it for dispatch. Non-blocking.
func (h *Hub) Publish(ev Event) {
	stamp(ev, atomic.AddUint64(&h.nextSeq, 1))

	select {
	case h.inbox <- ev:
	default:
		n := atomic.AddUint64(&h.dropped, 1)
		slog.Warn("event hub inbox full, event dropped",
			slog.Uint64("dropped_total", n),
			slog.Any("type", ev.GetType()))
	}
}

// Dropped returns the number of events dropped due to a full inbox.
func (h *Hub) Dropped() uint64 { return atomic.LoadUint64(&h.dropped) }

func stamp(ev Event, seq uint64) {
	ts := time.Now().UnixMicro()
	switch e := ev.(type) {
	case *SignalEvent:
		e.Seq, e.TsUnixMicro = seq, ts
	case *TransitionEvent:
		e.Seq, e.TsUnixMicro = seq, ts
	case *OrderUpdateEvent:
		e.Seq, e.TsUnixMicro = seq, ts
	case *CapitalSnapshotEvent:
		e.Seq, e.TsUnixMicro = seq, ts
	case *AlertEvent:
		e.Seq, e.TsUnixMicro = seq, ts
	}
}
