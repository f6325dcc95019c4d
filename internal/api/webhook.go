package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureHeader carries the provider's HMAC-SHA512 signature of the
// raw request body.
const SignatureHeader = "x-paystack-signature"

// WebhookEnqueuer hands verified provider events to the processing queue.
type WebhookEnqueuer interface {
	Enqueue(ctx context.Context, event *models.ProviderEvent) error
}

// WebhookHandler receives provider webhooks: verify the signature, parse,
// enqueue, ACK. All side effects happen in the orchestrator worker, so a
// rejected request leaves no trace and a corrected retry can still
// succeed.
type WebhookHandler struct {
	secret string
	queue  WebhookEnqueuer
	logger *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(secret string, queue WebhookEnqueuer) *WebhookHandler {
	return &WebhookHandler{
		secret: secret,
		queue:  queue,
		logger: util.NamedLogger("webhook-intake"),
	}
}

// providerPayload is the raw provider body shape.
type providerPayload struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Metadata  struct {
			OrderID int64 `json:"order_id"`
		} `json:"metadata"`
	} `json:"data"`
}

// Receive handles POST /webhook.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("read_error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read body"})
		return
	}

	if !VerifySignature(h.secret, body, c.GetHeader(SignatureHeader)) {
		util.WebhooksReceivedTotal.WithLabelValues("bad_signature").Inc()
		h.logger.Warn("webhook rejected: invalid signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	var payload providerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed payload"})
		return
	}
	if payload.Event == "" || payload.Data.Reference == "" {
		util.WebhooksReceivedTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing event or reference"})
		return
	}

	event := &models.ProviderEvent{
		EventID:    eventID(&payload),
		EventType:  payload.Event,
		ReceivedAt: time.Now(),
		Data: models.ProviderEventData{
			Reference: payload.Data.Reference,
			Amount:    payload.Data.Amount,
			Metadata:  models.EventMetadata{OrderID: payload.Data.Metadata.OrderID},
		},
	}

	if err := h.queue.Enqueue(c.Request.Context(), event); err != nil {
		util.WebhooksReceivedTotal.WithLabelValues("enqueue_error").Inc()
		h.logger.Error("failed to enqueue webhook event", zap.Error(err))
		// 5xx so the provider retries delivery.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue event"})
		return
	}

	util.WebhooksReceivedTotal.WithLabelValues("accepted").Inc()
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// eventID returns the provider event ID, synthesizing a stable one from
// the event type and charge reference when the provider omits it. Stable
// derivation keeps redeliveries mapping to the same ledger row.
func eventID(p *providerPayload) string {
	if p.ID != "" {
		return p.ID
	}
	return fmt.Sprintf("%s:%s", p.Event, p.Data.Reference)
}

// VerifySignature checks the HMAC-SHA512 hex signature of the raw body.
// Comparison is constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
