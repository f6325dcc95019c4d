package worker

import (
	"context"
	"encoding/json"
	"log"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/service"

	"github.com/segmentio/kafka-go"
)

// WebhookWorker consumes signature-verified provider events off the
// processing topic and drives the orchestrator. A handler error leaves
// the offset uncommitted so the event is retried; the idempotency ledger
// makes every retry safe. Events for one payment reference share a
// partition key, so they arrive here in order.
type WebhookWorker struct {
	consumer     *broker.Consumer
	orchestrator *service.WebhookOrchestrator
}

// NewWebhookWorker creates a new webhook worker
func NewWebhookWorker(consumer *broker.Consumer, orchestrator *service.WebhookOrchestrator) *WebhookWorker {
	return &WebhookWorker{
		consumer:     consumer,
		orchestrator: orchestrator,
	}
}

// Start starts the worker
func (w *WebhookWorker) Start(ctx context.Context) error {
	log.Println("Starting webhook worker...")

	return w.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		var event models.ProviderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			// Unparseable messages can never succeed; drop them by
			// returning nil so the offset commits.
			log.Printf("Dropping malformed webhook message: %v", err)
			return nil
		}

		return w.orchestrator.ProcessEvent(ctx, &event)
	})
}

// Stop stops the worker
func (w *WebhookWorker) Stop() error {
	log.Println("Stopping webhook worker...")
	return w.consumer.Close()
}
