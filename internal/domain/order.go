package domain

import "github.com/shopspring/decimal"

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// SettlementMode is the funding mode requested for a buy.
// Margin trade funding (MTF) uses broker-extended leverage; cash-and-carry
// (CNC) requires full upfront funding. Exits always unwind in the mode
// the position was entered with.
type SettlementMode string

const (
	ModeMargin SettlementMode = "MTF"
	ModeCash   SettlementMode = "CNC"
)

// OrderStatus is the gateway's verdict on a submitted order.
type OrderStatus string

const (
	OrderFilled   OrderStatus = "FILLED"
	OrderRejected OrderStatus = "REJECTED"
	OrderPartial  OrderStatus = "PARTIAL"
	OrderPending  OrderStatus = "PENDING"
)

// OrderRequest is one order round-trip's worth of intent. It is owned
// transiently by the sizer/lifecycle pair and never shared across
// positions.
type OrderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Quantity      int64           `json:"quantity"`
	RequestedMode SettlementMode  `json:"requested_mode"`
	LimitPrice    decimal.Decimal `json:"limit_price"` // reference only; orders go at market
}

// OrderResult is the gateway's response. GrantedMode is authoritative:
// a MTF request may be silently downgraded to CNC by the gateway.
type OrderResult struct {
	OrderID        string          `json:"order_id"`
	Status         OrderStatus     `json:"status"`
	FilledQuantity int64           `json:"filled_quantity"`
	FilledPrice    decimal.Decimal `json:"filled_price"`
	GrantedMode    SettlementMode  `json:"granted_mode"`
	Reason         string          `json:"reason,omitempty"`
}
