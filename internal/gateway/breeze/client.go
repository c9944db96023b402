package breeze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/infra"

	"github.com/shopspring/decimal"
)

// DefaultRestURL is the production Breeze API endpoint.
const DefaultRestURL = "https://api.icicidirect.com/breezeapi/api/v1"

// ClientConfig holds connection settings for the REST client.
type ClientConfig struct {
	RestURL      string
	WSURL        string
	APIKey       string
	APISecret    string
	SessionToken string
}

// Client handles Breeze REST API communication. Every call is rate
// limited per endpoint class and guarded by a shared circuit breaker.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	signer  *Signer
	breaker *infra.CircuitBreaker
}

// NewClient creates a new Breeze REST client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RestURL == "" {
		cfg.RestURL = DefaultRestURL
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 10 * time.Second},
		signer:  NewSigner(cfg.APIKey, cfg.APISecret, cfg.SessionToken),
		breaker: infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("breeze")),
	}
}

// WSURL returns the configured quote stream endpoint.
func (c *Client) WSURL() string {
	return c.cfg.WSURL
}

// ErrNoSuchOrder reports an order absent from the day's book.
var ErrNoSuchOrder = errors.New("breeze: no such order")

// APIError is a rejection from the Breeze API itself, as opposed to a
// transport failure. The broker saw the request and answered no.
type APIError struct {
	Message string
}

func (e *APIError) Error() string { return "breeze error: " + e.Message }

// envelope is the common Breeze response wrapper.
type envelope struct {
	Success json.RawMessage `json:"Success"`
	Status  int             `json:"Status"`
	Error   string          `json:"Error"`
}

// OrderParams is an order placement request.
type OrderParams struct {
	StockCode  string          `json:"stock_code"`
	Exchange   string          `json:"exchange_code"`
	Product    string          `json:"product"` // "margin" | "cash"
	Action     string          `json:"action"`  // "buy" | "sell"
	OrderType  string          `json:"order_type"`
	Quantity   int64           `json:"quantity,string"`
	Price      decimal.Decimal `json:"price"`
	UserRemark string          `json:"user_remark,omitempty"`
}

// OrderAck is the broker's response to a placement request.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Message string `json:"message"`
}

// OrderDetail is the authoritative state of a placed order.
type OrderDetail struct {
	OrderID         string          `json:"order_id"`
	Status          string          `json:"status"` // "Executed" | "Rejected" | "Ordered" | ...
	Product         string          `json:"product"`
	Quantity        int64           `json:"quantity,string"`
	ExecutedQty     int64           `json:"executed_quantity,string"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	UserRemark      string          `json:"user_remark,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
}

// FundsDetail reports the account's available limits.
type FundsDetail struct {
	CashAvailable   decimal.Decimal `json:"cash_available"`
	MarginAvailable decimal.Decimal `json:"margin_available"`
}

type quotePayload struct {
	StockCode     string          `json:"stock_code"`
	LastTraded    decimal.Decimal `json:"ltp"`
	PreviousClose decimal.Decimal `json:"previous_close"`
}

// PlaceOrder submits an order.
func (c *Client) PlaceOrder(ctx context.Context, params OrderParams) (*OrderAck, error) {
	infra.GetBreezeOrderLimiter().Wait()

	var ack OrderAck
	if err := c.doRequest(ctx, http.MethodPost, "/order", params, &ack); err != nil {
		return nil, err
	}

	slog.Info("breeze order placed",
		slog.String("stock", params.StockCode),
		slog.String("action", params.Action),
		slog.String("product", params.Product),
		slog.String("order_id", ack.OrderID))
	return &ack, nil
}

// OrderDetail fetches the current state of an order by ID.
func (c *Client) OrderDetail(ctx context.Context, orderID string) (*OrderDetail, error) {
	infra.GetBreezeStatusLimiter().Wait()

	req := map[string]string{"order_id": orderID, "exchange_code": "NSE"}
	var detail OrderDetail
	if err := c.doRequest(ctx, http.MethodGet, "/order", req, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// OrderByRemark scans the day's order book for the order tagged with
// the given user remark. A submission that failed before the broker's
// acknowledgment arrived is only known by its client tag.
func (c *Client) OrderByRemark(ctx context.Context, remark string) (*OrderDetail, error) {
	infra.GetBreezeStatusLimiter().Wait()

	req := map[string]string{"exchange_code": "NSE"}
	var details []OrderDetail
	if err := c.doRequest(ctx, http.MethodGet, "/order/list", req, &details); err != nil {
		return nil, err
	}
	for i := range details {
		if details[i].UserRemark == remark {
			return &details[i], nil
		}
	}
	return nil, fmt.Errorf("%w: remark %s", ErrNoSuchOrder, remark)
}

// Funds fetches the account's available cash and margin limits.
func (c *Client) Funds(ctx context.Context) (*FundsDetail, error) {
	infra.GetBreezeStatusLimiter().Wait()

	var funds FundsDetail
	if err := c.doRequest(ctx, http.MethodGet, "/funds", map[string]string{}, &funds); err != nil {
		return nil, err
	}
	return &funds, nil
}

// Quote fetches the last traded price for a stock.
func (c *Client) Quote(ctx context.Context, stockCode string) (decimal.Decimal, error) {
	infra.GetBreezeQuoteLimiter().Wait()

	req := map[string]string{"stock_code": stockCode, "exchange_code": "NSE"}
	var q quotePayload
	if err := c.doRequest(ctx, http.MethodGet, "/quotes", req, &q); err != nil {
		return decimal.Decimal{}, err
	}
	return q.LastTraded, nil
}

// PreviousClose fetches the prior session's closing price for a stock.
func (c *Client) PreviousClose(ctx context.Context, stockCode string) (decimal.Decimal, error) {
	infra.GetBreezeQuoteLimiter().Wait()

	req := map[string]string{"stock_code": stockCode, "exchange_code": "NSE"}
	var q quotePayload
	if err := c.doRequest(ctx, http.MethodGet, "/quotes", req, &q); err != nil {
		return decimal.Decimal{}, err
	}
	return q.PreviousClose, nil
}

// doRequest signs and executes one REST call, decoding the Success
// payload into out. The circuit breaker sees every outcome.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("breeze circuit breaker open, refusing %s %s", method, path)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.RestURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range c.signer.GenerateHeaders(string(payload)) {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("breeze request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return fmt.Errorf("breeze returned HTTP %d: %s", resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Error != "" {
		// API-level rejection. The transport is healthy, so the breaker
		// records success; the caller decides what the rejection means.
		c.breaker.RecordSuccess()
		return &APIError{Message: env.Error}
	}

	if out != nil && len(env.Success) > 0 {
		if err := json.Unmarshal(env.Success, out); err != nil {
			c.breaker.RecordFailure()
			return fmt.Errorf("failed to decode payload: %w", err)
		}
	}

	c.breaker.RecordSuccess()
	return nil
}
