package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID            int64           `db:"id" json:"id"`
	SKU           string          `db:"sku" json:"sku"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	AllowPreorder bool            `db:"allow_preorder" json:"allow_preorder"`
	PreorderCap   *int            `db:"preorder_cap" json:"preorder_cap,omitempty"`
	PreorderCount int             `db:"preorder_count" json:"preorder_count"`
	Categories    pq.StringArray  `db:"categories" json:"categories"`
	Tags          pq.StringArray  `db:"tags" json:"tags"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// HasTag reports whether the product carries the given tag.
func (p *Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// InCategory reports whether the product belongs to the given category.
func (p *Product) InCategory(category string) bool {
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Discount code types
const (
	DiscountTypePercent      = "percent"
	DiscountTypeFixed        = "fixed"
	DiscountTypeFreeShipping = "free_shipping"
	DiscountTypeBOGO         = "bogo"
)

// DiscountCode represents an admin-managed discount code.
// Code is stored normalized: trimmed, and uppercased when case-insensitive
// matching is configured.
type DiscountCode struct {
	ID                 int64            `db:"id" json:"id"`
	Code               string           `db:"code" json:"code"`
	Type               string           `db:"type" json:"type"`
	Value              decimal.Decimal  `db:"value" json:"value"`
	MinimumPurchase    *decimal.Decimal `db:"minimum_purchase" json:"minimum_purchase,omitempty"`
	UsageLimit         *int             `db:"usage_limit" json:"usage_limit,omitempty"`
	UsageCount         int              `db:"usage_count" json:"usage_count"`
	PerUserLimit       *int             `db:"per_user_limit" json:"per_user_limit,omitempty"`
	ExpiresAt          *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	IsActive           bool             `db:"is_active" json:"is_active"`
	IncludedCategories pq.StringArray   `db:"included_categories" json:"included_categories"`
	ExcludedTags       pq.StringArray   `db:"excluded_tags" json:"excluded_tags"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// CurrentlyValid reports whether the code is active and unexpired at now.
func (d *DiscountCode) CurrentlyValid(now time.Time) bool {
	if !d.IsActive {
		return false
	}
	return d.ExpiresAt == nil || d.ExpiresAt.After(now)
}

// DiscountRedemption records one successful redemption of a code by a user,
// used to enforce per-user limits.
type DiscountRedemption struct {
	ID         int64     `db:"id"`
	CodeID     int64     `db:"code_id"`
	UserID     string    `db:"user_id"`
	OrderID    int64     `db:"order_id"`
	RedeemedAt time.Time `db:"redeemed_at"`
}

// Cart represents a customer cart, guest or authenticated.
type Cart struct {
	ID               int64           `db:"id" json:"id"`
	UserID           *string         `db:"user_id" json:"user_id,omitempty"`
	SessionToken     string          `db:"session_token" json:"session_token"`
	TotalAmount      decimal.Decimal `db:"total_amount" json:"total_amount"`
	ConvertedToOrder bool            `db:"converted_to_order" json:"converted_to_order"`
	LastUpdated      time.Time       `db:"last_updated" json:"last_updated"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	Items            []CartItem      `db:"-" json:"items"`
}

// CartItem is a cart line with the price captured at add time.
type CartItem struct {
	ID         int64           `db:"id" json:"id"`
	CartID     int64           `db:"cart_id" json:"cart_id"`
	ProductID  int64           `db:"product_id" json:"product_id"`
	Quantity   int             `db:"quantity" json:"quantity"`
	PriceAtAdd decimal.Decimal `db:"price_at_add" json:"price_at_add"`
}

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Order statuses
const (
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Refund statuses
const (
	RefundStatusNone    = "none"
	RefundStatusPartial = "partial"
	RefundStatusFull    = "full"
)

// Order represents a customer order. Monetary fields are frozen at
// creation; webhook processing only moves the status fields.
type Order struct {
	ID                int64            `db:"id" json:"id"`
	CustomerEmail     string           `db:"customer_email" json:"customer_email"`
	UserID            *string          `db:"user_id" json:"user_id,omitempty"`
	Subtotal          decimal.Decimal  `db:"subtotal" json:"subtotal"`
	DiscountCode      *string          `db:"discount_code" json:"discount_code,omitempty"`
	DiscountAmount    *decimal.Decimal `db:"discount_amount" json:"discount_amount,omitempty"`
	TaxAmount         decimal.Decimal  `db:"tax_amount" json:"tax_amount"`
	ShippingCost      decimal.Decimal  `db:"shipping_cost" json:"shipping_cost"`
	TotalAmount       decimal.Decimal  `db:"total_amount" json:"total_amount"`
	ShippingAddress   string           `db:"shipping_address" json:"shipping_address"`
	PaymentStatus     string           `db:"payment_status" json:"payment_status"`
	OrderStatus       string           `db:"order_status" json:"order_status"`
	PaystackReference string           `db:"paystack_reference" json:"paystack_reference"`
	RefundStatus      string           `db:"refund_status" json:"refund_status"`
	FailureReason     *string          `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// OrderItem is an immutable snapshot of a product line at order-creation
// time. Never recomputed from the live catalog.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// CommitLine is one line item of an inventory commit or release.
type CommitLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// LineFailure describes why a single line could not be committed.
type LineFailure struct {
	ProductID int64  `json:"product_id"`
	Reason    Reason `json:"reason"`
}

// Webhook event processing statuses
const (
	WebhookStatusProcessed = "processed"
	WebhookStatusFailed    = "failed"
	WebhookStatusSkipped   = "skipped"
)

// WebhookEvent is the idempotency ledger row: one per provider event ID,
// written only after the event's side effects have been applied.
type WebhookEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	Status      string    `db:"status"`
	ProcessedAt time.Time `db:"processed_at"`
}
