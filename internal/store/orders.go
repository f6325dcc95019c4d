package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"
)

// CreateOrder inserts an order and its item snapshots in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders
			(customer_email, user_id, subtotal, discount_code, discount_amount,
			 tax_amount, shipping_cost, total_amount, shipping_address,
			 payment_status, order_status, paystack_reference, refund_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, order, query,
		order.CustomerEmail, order.UserID, order.Subtotal, order.DiscountCode,
		order.DiscountAmount, order.TaxAmount, order.ShippingCost, order.TotalAmount,
		order.ShippingAddress, order.PaymentStatus, order.OrderStatus,
		order.PaystackReference, order.RefundStatus); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		if err := tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].ProductName,
			items[i].Quantity, items[i].UnitPrice); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByReference retrieves an order by its payment-provider reference.
func (s *Store) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE paystack_reference = $1", reference)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found for reference: %s", reference)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all item snapshots for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// SettlePayment transitions a pending order to completed or failed. The
// pending guard in the WHERE clause makes terminal states sticky: a late
// or duplicate settlement affects zero rows. Returns false when the order
// was not pending.
func (s *Store) SettlePayment(ctx context.Context, orderID int64, paymentStatus, orderStatus string, failureReason *string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, order_status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $4 AND payment_status = $5`,
		paymentStatus, orderStatus, failureReason, orderID, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("settle payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkRefunded transitions a completed order to refunded. Only completed,
// not-yet-refunded orders match, so a second refund affects zero rows.
func (s *Store) MarkRefunded(ctx context.Context, orderID int64, refundStatus string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1, refund_status = $2, order_status = $3, updated_at = NOW()
		WHERE id = $4 AND payment_status = $5 AND refund_status = $6`,
		models.PaymentStatusRefunded, refundStatus, models.OrderStatusCancelled,
		orderID, models.PaymentStatusCompleted, models.RefundStatusNone)
	if err != nil {
		return false, fmt.Errorf("mark refunded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IsEventProcessed checks the idempotency ledger for a provider event ID.
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM webhook_events WHERE event_id = $1)", eventID)
	return exists, err
}

// RecordWebhookEvent writes the idempotency ledger row. Written only after
// the event's side effects succeed, so a crash mid-processing retries
// instead of silently skipping.
func (s *Store) RecordWebhookEvent(ctx context.Context, eventID, eventType, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, status)
	return err
}
