package breeze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// QuoteStream maintains a live price cache fed by the Breeze WebSocket
// feed. It implements infra.StreamHandler; the embedded worker handles
// reconnection and read deadlines.
type QuoteStream struct {
	url     string
	symbols []string
	worker  *infra.WSWorker

	mu    sync.RWMutex
	ticks map[string]streamTick
}

type streamTick struct {
	price decimal.Decimal
	ts    time.Time
}

type streamMessage struct {
	StockCode  string          `json:"stock_code"`
	LastTraded decimal.Decimal `json:"ltp"`
}

// NewQuoteStream creates a quote stream for the given symbols.
func NewQuoteStream(wsURL string, symbols []string) *QuoteStream {
	qs := &QuoteStream{
		url:     wsURL,
		symbols: symbols,
		ticks:   make(map[string]streamTick),
	}
	qs.worker = infra.NewWSWorker(qs)
	return qs
}

// Start connects and begins consuming ticks.
func (q *QuoteStream) Start(ctx context.Context) {
	q.worker.Start(ctx)
}

// Stop closes the connection.
func (q *QuoteStream) Stop() {
	q.worker.Stop()
}

// Last returns the most recent tick for a symbol. ok is false when no
// tick has arrived yet or the cached tick is stale.
func (q *QuoteStream) Last(symbol string, maxAge time.Duration) (decimal.Decimal, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	tick, ok := q.ticks[symbol]
	if !ok {
		return decimal.Decimal{}, false
	}
	if maxAge > 0 && time.Since(tick.ts) > maxAge {
		return decimal.Decimal{}, false
	}
	return tick.price, true
}

// GetURL implements infra.StreamHandler.
func (q *QuoteStream) GetURL() string { return q.url }

// ID implements infra.StreamHandler.
func (q *QuoteStream) ID() string { return "breeze-quotes" }

// OnConnect subscribes to tick updates for every tracked symbol.
func (q *QuoteStream) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	sub := map[string]any{
		"action":      "subscribe",
		"stock_codes": q.symbols,
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// OnMessage caches the incoming tick.
func (q *QuoteStream) OnMessage(ctx context.Context, msg []byte) {
	var tick streamMessage
	if err := json.Unmarshal(msg, &tick); err != nil {
		slog.Debug("quote stream: unparseable message", slog.String("err", err.Error()))
		return
	}
	if tick.StockCode == "" || !tick.LastTraded.IsPositive() {
		return
	}

	q.mu.Lock()
	q.ticks[tick.StockCode] = streamTick{price: tick.LastTraded, ts: time.Now()}
	q.mu.Unlock()
}

// OnPing keeps the session alive.
func (q *QuoteStream) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.PingMessage, nil)
}
