package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderStore is the order persistence surface for checkout.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

// CartFreezer freezes a cart once it converts to an order.
type CartFreezer interface {
	GetCartByToken(ctx context.Context, token string) (*models.Cart, error)
	FreezeCart(ctx context.Context, cartID int64) (bool, error)
}

// OrderEventPublisher publishes order lifecycle events.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
}

// InvalidDiscountError rejects a checkout whose discount code failed
// evaluation. The reason is surfaced inline to the customer.
type InvalidDiscountError struct {
	Reason models.Reason
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("discount code rejected: %s", e.Reason)
}

var (
	ErrEmptyOrder      = errors.New("order has no items")
	ErrProductNotFound = errors.New("product not found")
	ErrCartNotFound    = errors.New("cart not found")
	ErrCartConverted   = errors.New("cart already converted to an order")
)

// CheckoutRequest is a checkout submission. Client-supplied prices are
// never trusted; lines are priced from the cart snapshot or the live
// catalog on the server.
type CheckoutRequest struct {
	CustomerEmail   string             `json:"customer_email" binding:"required,email"`
	UserID          *string            `json:"user_id,omitempty"`
	ShippingAddress string             `json:"shipping_address" binding:"required"`
	DiscountCode    *string            `json:"discount_code,omitempty"`
	CartToken       *string            `json:"cart_token,omitempty"`
	Items           []CheckoutItem     `json:"items"`
}

// CheckoutItem is one submitted line.
type CheckoutItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CheckoutResult is the created pending order with its item snapshots.
type CheckoutResult struct {
	Order *models.Order      `json:"order"`
	Items []models.OrderItem `json:"items"`
}

// CheckoutService turns a cart into a pending order with frozen prices
// and computed totals. No inventory is touched here; stock moves only on
// confirmed payment.
type CheckoutService struct {
	orders    OrderStore
	carts     CartFreezer
	catalog   ProductCatalog
	discounts *DiscountService
	publisher OrderEventPublisher
	taxRate   decimal.Decimal
	shipping  ShippingRule
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	orders OrderStore,
	carts CartFreezer,
	catalog ProductCatalog,
	discounts *DiscountService,
	publisher OrderEventPublisher,
	taxRate decimal.Decimal,
	shipping ShippingRule,
) *CheckoutService {
	return &CheckoutService{
		orders:    orders,
		carts:     carts,
		catalog:   catalog,
		discounts: discounts,
		publisher: publisher,
		taxRate:   taxRate,
		shipping:  shipping,
		logger:    util.NamedLogger("checkout"),
	}
}

// Checkout creates a pending order from the request. The discount code,
// if any, is re-evaluated server side; a rejected code fails the whole
// submission with an *InvalidDiscountError.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	lines, snapshots, cart, err := s.resolveLines(ctx, req)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = subtotal.Round(2)

	var effect *DiscountEffect
	var appliedCode *models.DiscountCode
	if req.DiscountCode != nil && *req.DiscountCode != "" {
		verdict, err := s.discounts.Evaluate(ctx, *req.DiscountCode, subtotal, lines, req.UserID, 0)
		if err != nil {
			return nil, fmt.Errorf("evaluate discount: %w", err)
		}
		if !verdict.Valid {
			return nil, &InvalidDiscountError{Reason: verdict.Reason}
		}
		effect = verdict.Effect
		appliedCode = verdict.Code
	}

	totals := ComputeTotals(lines, effect, s.taxRate, s.shipping)

	order := &models.Order{
		CustomerEmail:     req.CustomerEmail,
		UserID:            req.UserID,
		Subtotal:          totals.Subtotal,
		TaxAmount:         totals.TaxAmount,
		ShippingCost:      totals.ShippingCost,
		TotalAmount:       totals.Total,
		ShippingAddress:   req.ShippingAddress,
		PaymentStatus:     models.PaymentStatusPending,
		OrderStatus:       models.OrderStatusProcessing,
		PaystackReference: newPaymentReference(),
		RefundStatus:      models.RefundStatusNone,
	}
	if appliedCode != nil {
		order.DiscountCode = &appliedCode.Code
		order.DiscountAmount = &totals.DiscountAmount
	}

	if err := s.orders.CreateOrder(ctx, order, snapshots); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("create order: %w", err)
	}

	if cart != nil {
		frozen, err := s.carts.FreezeCart(ctx, cart.ID)
		if err != nil {
			s.logger.Error("failed to freeze cart", zap.Int64("cart_id", cart.ID), zap.Error(err))
		} else if !frozen {
			s.logger.Warn("cart was already frozen", zap.Int64("cart_id", cart.ID))
		}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("reference", order.PaystackReference),
		zap.String("total", order.TotalAmount.String()))

	event := &models.OrderCreatedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderCreated),
		OrderID:      order.ID,
		Reference:    order.PaystackReference,
		TotalAmount:  order.TotalAmount,
		DiscountCode: order.DiscountCode,
	}
	for _, line := range lines {
		event.Items = append(event.Items, models.OrderLineData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("failed to publish order.created", zap.Error(err))
	}

	return &CheckoutResult{Order: order, Items: snapshots}, nil
}

// resolveLines builds priced lines and order-item snapshots. A cart token
// prices lines from the cart's price-at-add captures; direct submissions
// price from the live catalog.
func (s *CheckoutService) resolveLines(ctx context.Context, req *CheckoutRequest) ([]LineItem, []models.OrderItem, *models.Cart, error) {
	if req.CartToken != nil && *req.CartToken != "" {
		cart, err := s.carts.GetCartByToken(ctx, *req.CartToken)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load cart: %w", err)
		}
		if cart == nil {
			return nil, nil, nil, ErrCartNotFound
		}
		if cart.ConvertedToOrder {
			return nil, nil, nil, ErrCartConverted
		}
		if len(cart.Items) == 0 {
			return nil, nil, nil, ErrEmptyOrder
		}

		lines, snapshots, err := s.priceCartLines(ctx, cart.Items)
		if err != nil {
			return nil, nil, nil, err
		}
		return lines, snapshots, cart, nil
	}

	if len(req.Items) == 0 {
		return nil, nil, nil, ErrEmptyOrder
	}

	ids := make([]int64, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}
	products, err := s.productsByID(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}

	var lines []LineItem
	var snapshots []models.OrderItem
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: %d", ErrProductNotFound, item.ProductID)
		}
		lines = append(lines, LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
		snapshots = append(snapshots, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
		})
	}
	return lines, snapshots, nil, nil
}

func (s *CheckoutService) priceCartLines(ctx context.Context, cartItems []models.CartItem) ([]LineItem, []models.OrderItem, error) {
	ids := make([]int64, len(cartItems))
	for i, item := range cartItems {
		ids[i] = item.ProductID
	}
	products, err := s.productsByID(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	var lines []LineItem
	var snapshots []models.OrderItem
	for _, item := range cartItems {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %d", ErrProductNotFound, item.ProductID)
		}
		lines = append(lines, LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.PriceAtAdd,
		})
		snapshots = append(snapshots, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.PriceAtAdd,
		})
	}
	return lines, snapshots, nil
}

func (s *CheckoutService) productsByID(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return byID, nil
}

// GetOrder retrieves an order with its item snapshots.
func (s *CheckoutService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.orders.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func newPaymentReference() string {
	return fmt.Sprintf("SF-%s", uuid.New().String())
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
