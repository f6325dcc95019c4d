package broker

import (
	"context"
	"fmt"

	"storefront-service/internal/models"
)

// EventPublisher publishes order lifecycle events for downstream
// consumers (fulfillment, notifications).
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderCreated publishes an order.created event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.Publish(ctx, orderKey(event.OrderID), event)
}

// PublishOrderPaid publishes an order.paid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.producer.Publish(ctx, orderKey(event.OrderID), event)
}

// PublishOrderFailed publishes an order.failed event
func (ep *EventPublisher) PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	return ep.producer.Publish(ctx, orderKey(event.OrderID), event)
}

// PublishOrderRefunded publishes an order.refunded event
func (ep *EventPublisher) PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error {
	return ep.producer.Publish(ctx, orderKey(event.OrderID), event)
}

// WebhookQueue enqueues signature-verified provider webhooks for async
// processing. The HTTP handler ACKs the provider as soon as the event is
// durably queued; the orchestrator worker consumes from here.
type WebhookQueue struct {
	producer *Producer
}

// NewWebhookQueue creates a new webhook queue
func NewWebhookQueue(producer *Producer) *WebhookQueue {
	return &WebhookQueue{producer: producer}
}

// Enqueue writes a verified provider event to the processing topic, keyed
// by payment reference so retries for one charge stay ordered.
func (wq *WebhookQueue) Enqueue(ctx context.Context, event *models.ProviderEvent) error {
	return wq.producer.Publish(ctx, event.Data.Reference, event)
}
