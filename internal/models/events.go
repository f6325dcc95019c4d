package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider webhook event types (Paystack naming).
const (
	ProviderEventChargeSuccess   = "charge.success"
	ProviderEventChargeFailed    = "charge.failed"
	ProviderEventChargeCancelled = "charge.cancelled"
	ProviderEventRefundProcessed = "refund.processed"
)

// ProviderEvent is the parsed payment-provider webhook body. The HTTP
// layer verifies the signature and hands this to the orchestrator via
// the processing queue.
type ProviderEvent struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event"`
	Data       ProviderEventData `json:"data"`
	ReceivedAt time.Time         `json:"received_at"`
}

// ProviderEventData carries the provider's charge payload fields the
// orchestrator needs.
type ProviderEventData struct {
	Reference string        `json:"reference"`
	Amount    int64         `json:"amount"` // minor units, as sent by the provider
	Metadata  EventMetadata `json:"metadata"`
}

// EventMetadata is the metadata block attached at checkout time.
type EventMetadata struct {
	OrderID int64 `json:"order_id"`
}

// Domain event types published to the order-events topic.
const (
	EventTypeOrderCreated  = "order.created"
	EventTypeOrderPaid     = "order.paid"
	EventTypeOrderFailed   = "order.failed"
	EventTypeOrderRefunded = "order.refunded"
)

// BaseEvent contains common fields for all domain events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published when a pending order is created at
// checkout submission.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	Reference    string          `json:"reference"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	DiscountCode *string         `json:"discount_code,omitempty"`
	Items        []OrderLineData `json:"items"`
}

// OrderPaidEvent is published after a successful ledger commit.
type OrderPaidEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	Reference   string          `json:"reference"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderFailedEvent is published when payment fails or the ledger commit
// cannot fulfill the order.
type OrderFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderRefundedEvent is published when an order is refunded.
type OrderRefundedEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	RefundStatus string `json:"refund_status"`
}

// OrderLineData represents line data in events.
type OrderLineData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
