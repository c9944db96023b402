package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/DMHCAIT/turteltrader/internal/domain"

	"github.com/shopspring/decimal"
)

// MockGateway is a scripted gateway for engine tests. Every response is
// queued or fixed ahead of time and every submission is recorded.
type MockGateway struct {
	mu sync.Mutex

	Prices    map[string]decimal.Decimal
	Closes    map[string]decimal.Decimal
	QuoteErr  error
	CloseErr  error
	MarginOK  bool
	MarginErr error

	// SubmitResults are consumed in FIFO order, one per SubmitOrder
	// call. When empty, SubmitErr (or a filled-at-market default) is
	// returned instead.
	SubmitResults []domain.OrderResult
	SubmitErr     error

	StatusResults map[string]domain.OrderResult
	StatusErr     error

	Submitted []domain.OrderRequest
}

// NewMockGateway creates a mock with margin granted and no scripted orders.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Prices:        make(map[string]decimal.Decimal),
		Closes:        make(map[string]decimal.Decimal),
		MarginOK:      true,
		StatusResults: make(map[string]domain.OrderResult),
	}
}

func (m *MockGateway) Quote(ctx context.Context, symbol string) (Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.QuoteErr != nil {
		return Quote{}, m.QuoteErr
	}
	price, ok := m.Prices[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, symbol)
	}
	return Quote{Symbol: symbol, Price: price}, nil
}

func (m *MockGateway) ReferenceClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CloseErr != nil {
		return decimal.Decimal{}, m.CloseErr
	}
	close, ok := m.Closes[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no close for %s", ErrQuoteUnavailable, symbol)
	}
	return close, nil
}

func (m *MockGateway) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Submitted = append(m.Submitted, req)

	if len(m.SubmitResults) > 0 {
		result := m.SubmitResults[0]
		m.SubmitResults = m.SubmitResults[1:]
		return result, nil
	}
	if m.SubmitErr != nil {
		return domain.OrderResult{}, m.SubmitErr
	}

	// Default: full fill at the scripted price, mode as requested.
	return domain.OrderResult{
		OrderID:        "mock-" + req.ClientOrderID,
		Status:         domain.OrderFilled,
		FilledQuantity: req.Quantity,
		FilledPrice:    m.Prices[req.Symbol],
		GrantedMode:    req.RequestedMode,
	}, nil
}

func (m *MockGateway) CheckMargin(ctx context.Context, symbol string, quantity int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.MarginErr != nil {
		return false, m.MarginErr
	}
	return m.MarginOK, nil
}

func (m *MockGateway) OrderStatus(ctx context.Context, clientOrderID string) (domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StatusErr != nil {
		return domain.OrderResult{}, m.StatusErr
	}
	result, ok := m.StatusResults[clientOrderID]
	if !ok {
		return domain.OrderResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, clientOrderID)
	}
	return result, nil
}

// LastSubmitted returns the most recent order request, or nil.
func (m *MockGateway) LastSubmitted() *domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Submitted) == 0 {
		return nil
	}
	req := m.Submitted[len(m.Submitted)-1]
	return &req
}
