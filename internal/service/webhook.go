package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// OrderLedgerStore is the persistence surface of the orchestrator.
type OrderLedgerStore interface {
	GetOrderByReference(ctx context.Context, reference string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SettlePayment(ctx context.Context, orderID int64, paymentStatus, orderStatus string, failureReason *string) (bool, error)
	MarkRefunded(ctx context.Context, orderID int64, refundStatus string) (bool, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	RecordWebhookEvent(ctx context.Context, eventID, eventType, status string) error
}

// Ledger is the inventory side of settlement.
type Ledger interface {
	Commit(ctx context.Context, orderID int64, lines []models.CommitLine) error
	Release(ctx context.Context, orderID int64, lines []models.CommitLine) error
}

// EventFilter is an optional fast duplicate filter in front of the
// authoritative webhook_events ledger.
type EventFilter interface {
	WasEventSeen(ctx context.Context, eventID string) (bool, error)
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

// ErrAlreadyRefunded rejects a repeated refund with a conflict.
var ErrAlreadyRefunded = errors.New("order already refunded")

const eventFilterTTL = 24 * time.Hour

// WebhookOrchestrator drives an order through its payment lifecycle from
// provider webhook events. Events for one payment reference are consumed
// serially off one partition; across different orders processing is
// independent and concurrent. Duplicate deliveries are silent successes.
type WebhookOrchestrator struct {
	orders    OrderLedgerStore
	ledger    Ledger
	discounts *DiscountService
	publisher OrderEventPublisher
	filter    EventFilter
	logger    *zap.Logger
}

// NewWebhookOrchestrator creates a new webhook orchestrator
func NewWebhookOrchestrator(
	orders OrderLedgerStore,
	ledger Ledger,
	discounts *DiscountService,
	publisher OrderEventPublisher,
	filter EventFilter,
) *WebhookOrchestrator {
	return &WebhookOrchestrator{
		orders:    orders,
		ledger:    ledger,
		discounts: discounts,
		publisher: publisher,
		filter:    filter,
		logger:    util.NamedLogger("webhook"),
	}
}

// ProcessEvent applies one provider event. The idempotency ledger is
// consulted first and written last: side effects run only for unseen
// events, and the ledger row lands only after they succeed, so a crash
// mid-processing retries instead of silently skipping.
func (o *WebhookOrchestrator) ProcessEvent(ctx context.Context, event *models.ProviderEvent) error {
	ctx, span := util.StartSpan(ctx, "WebhookOrchestrator.ProcessEvent")
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	if o.filter != nil {
		seen, err := o.filter.WasEventSeen(ctx, event.EventID)
		if err == nil && seen {
			util.WebhooksDuplicateTotal.Inc()
			return nil
		}
	}

	processed, err := o.orders.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("check idempotency ledger: %w", err)
	}
	if processed {
		util.WebhooksDuplicateTotal.Inc()
		o.logger.Info("duplicate webhook delivery", zap.String("event_id", event.EventID))
		return nil
	}

	var status string
	switch event.EventType {
	case models.ProviderEventChargeSuccess:
		status, err = o.handleChargeSuccess(ctx, event)
	case models.ProviderEventChargeFailed, models.ProviderEventChargeCancelled:
		status, err = o.handleChargeFailed(ctx, event)
	case models.ProviderEventRefundProcessed:
		status, err = o.handleRefundProcessed(ctx, event)
	default:
		o.logger.Info("ignoring unhandled event type", zap.String("event_type", event.EventType))
		status = models.WebhookStatusSkipped
	}
	if err != nil {
		return err
	}

	if err := o.orders.RecordWebhookEvent(ctx, event.EventID, event.EventType, status); err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	if o.filter != nil {
		if err := o.filter.MarkEventSeen(ctx, event.EventID, eventFilterTTL); err != nil {
			o.logger.Warn("failed to mark event in fast filter", zap.Error(err))
		}
	}
	return nil
}

// handleChargeSuccess commits inventory and, only on ledger success,
// consumes discount usage and completes the order. A ledger failure fails
// the order and leaves discount usage untouched; the customer's payment
// is refunded out of band.
func (o *WebhookOrchestrator) handleChargeSuccess(ctx context.Context, event *models.ProviderEvent) (string, error) {
	order, err := o.orders.GetOrderByReference(ctx, event.Data.Reference)
	if err != nil {
		return "", fmt.Errorf("resolve order for charge.success: %w", err)
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		o.logger.Info("order not pending, skipping settlement",
			zap.Int64("order_id", order.ID),
			zap.String("payment_status", order.PaymentStatus))
		return models.WebhookStatusSkipped, nil
	}

	items, err := o.orders.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return "", fmt.Errorf("load order items: %w", err)
	}
	lines := commitLines(items)

	if err := o.ledger.Commit(ctx, order.ID, lines); err != nil {
		var commitErr *CommitError
		if !errors.As(err, &commitErr) {
			return "", err
		}
		return o.failOrder(ctx, order, commitErr)
	}

	if order.DiscountCode != nil {
		if err := o.consumeDiscount(ctx, order); err != nil {
			o.logger.Error("failed to consume discount usage",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}

	if _, err := o.orders.SettlePayment(ctx, order.ID, models.PaymentStatusCompleted, models.OrderStatusProcessing, nil); err != nil {
		return "", fmt.Errorf("complete order %d: %w", order.ID, err)
	}

	util.OrdersCompletedTotal.Inc()
	o.logger.Info("order completed",
		zap.Int64("order_id", order.ID),
		zap.String("reference", order.PaystackReference))

	paid := &models.OrderPaidEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderPaid),
		OrderID:     order.ID,
		Reference:   order.PaystackReference,
		TotalAmount: order.TotalAmount,
	}
	if err := o.publisher.PublishOrderPaid(ctx, paid); err != nil {
		o.logger.Error("failed to publish order.paid", zap.Error(err))
	}

	return models.WebhookStatusProcessed, nil
}

func (o *WebhookOrchestrator) failOrder(ctx context.Context, order *models.Order, commitErr *CommitError) (string, error) {
	reasons := make([]string, 0, len(commitErr.Failures))
	for _, f := range commitErr.Failures {
		reasons = append(reasons, fmt.Sprintf("product %d: %s", f.ProductID, f.Reason))
		util.OrdersFailedTotal.WithLabelValues(string(f.Reason)).Inc()
	}
	reason := strings.Join(reasons, "; ")

	if _, err := o.orders.SettlePayment(ctx, order.ID, models.PaymentStatusFailed, models.OrderStatusCancelled, &reason); err != nil {
		return "", fmt.Errorf("fail order %d: %w", order.ID, err)
	}

	o.logger.Warn("order failed at settlement",
		zap.Int64("order_id", order.ID),
		zap.String("reason", reason))

	failed := &models.OrderFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderFailed),
		OrderID:   order.ID,
		Reason:    reason,
	}
	if err := o.publisher.PublishOrderFailed(ctx, failed); err != nil {
		o.logger.Error("failed to publish order.failed", zap.Error(err))
	}

	return models.WebhookStatusFailed, nil
}

func (o *WebhookOrchestrator) consumeDiscount(ctx context.Context, order *models.Order) error {
	code, err := o.discounts.store.GetDiscountCode(ctx, o.discounts.Normalize(*order.DiscountCode))
	if err != nil {
		return err
	}
	if code == nil {
		// Code deleted between checkout and settlement. The order keeps
		// its copied discount amount; there is just no counter to move.
		return nil
	}
	return o.discounts.ConsumeUsage(ctx, code, order.UserID, order.ID)
}

// handleChargeFailed fails a pending order on a declined or cancelled
// charge. No inventory or discount side effects exist yet, so there is
// nothing to compensate.
func (o *WebhookOrchestrator) handleChargeFailed(ctx context.Context, event *models.ProviderEvent) (string, error) {
	order, err := o.orders.GetOrderByReference(ctx, event.Data.Reference)
	if err != nil {
		return "", fmt.Errorf("resolve order for %s: %w", event.EventType, err)
	}

	reason, label := "payment declined by provider", "payment_declined"
	if event.EventType == models.ProviderEventChargeCancelled {
		reason, label = "payment cancelled before completion", "payment_cancelled"
	}
	ok, err := o.orders.SettlePayment(ctx, order.ID, models.PaymentStatusFailed, models.OrderStatusCancelled, &reason)
	if err != nil {
		return "", fmt.Errorf("fail order %d: %w", order.ID, err)
	}
	if !ok {
		return models.WebhookStatusSkipped, nil
	}

	util.OrdersFailedTotal.WithLabelValues(label).Inc()

	failed := &models.OrderFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderFailed),
		OrderID:   order.ID,
		Reason:    reason,
	}
	if err := o.publisher.PublishOrderFailed(ctx, failed); err != nil {
		o.logger.Error("failed to publish order.failed", zap.Error(err))
	}
	return models.WebhookStatusProcessed, nil
}

func (o *WebhookOrchestrator) handleRefundProcessed(ctx context.Context, event *models.ProviderEvent) (string, error) {
	order, err := o.orders.GetOrderByReference(ctx, event.Data.Reference)
	if err != nil {
		return "", fmt.Errorf("resolve order for refund.processed: %w", err)
	}

	if err := o.refund(ctx, order, models.RefundStatusFull); err != nil {
		if errors.Is(err, ErrAlreadyRefunded) {
			return models.WebhookStatusSkipped, nil
		}
		return "", err
	}
	return models.WebhookStatusProcessed, nil
}

// Refund is the admin-triggered refund path. A repeat refund returns
// ErrAlreadyRefunded so the caller can answer with a conflict instead of
// double-crediting.
func (o *WebhookOrchestrator) Refund(ctx context.Context, orderID int64, refundStatus string) error {
	ctx, span := util.StartSpan(ctx, "WebhookOrchestrator.Refund")
	defer span.End()

	order, err := o.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	return o.refund(ctx, order, refundStatus)
}

func (o *WebhookOrchestrator) refund(ctx context.Context, order *models.Order, refundStatus string) error {
	ok, err := o.orders.MarkRefunded(ctx, order.ID, refundStatus)
	if err != nil {
		return fmt.Errorf("refund order %d: %w", order.ID, err)
	}
	if !ok {
		return fmt.Errorf("order %d: %w", order.ID, ErrAlreadyRefunded)
	}

	// A full refund returns the units to the shelf; a partial refund
	// keeps the fulfillment as-is.
	if refundStatus == models.RefundStatusFull {
		items, err := o.orders.GetOrderItemsByOrderID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("load order items for release: %w", err)
		}
		if err := o.ledger.Release(ctx, order.ID, commitLines(items)); err != nil {
			o.logger.Error("failed to release inventory on refund",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}

	util.OrdersRefundedTotal.Inc()
	o.logger.Info("order refunded",
		zap.Int64("order_id", order.ID),
		zap.String("refund_status", refundStatus))

	refunded := &models.OrderRefundedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderRefunded),
		OrderID:      order.ID,
		RefundStatus: refundStatus,
	}
	if err := o.publisher.PublishOrderRefunded(ctx, refunded); err != nil {
		o.logger.Error("failed to publish order.refunded", zap.Error(err))
	}
	return nil
}

func commitLines(items []models.OrderItem) []models.CommitLine {
	lines := make([]models.CommitLine, len(items))
	for i, item := range items {
		lines[i] = models.CommitLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lines
}
