// Package handler exposes the channel webhook endpoint. Its contract with
// the provider: verify fast, acknowledge fast, never let processing work
// delay the response.
package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/internal/messaging/dedup"
	"leadflow_backend/internal/messaging/transport"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// signatureHeader carries the HMAC of the raw request body.
const signatureHeader = "X-Signature-256"

// maxBodyBytes bounds a webhook body. Deliveries batch at most a few dozen
// messages; anything larger is not ours.
const maxBodyBytes = 1 << 20

// SecretSource returns webhook signing secrets per instance. Satisfied by
// the channels service.
type SecretSource interface {
	Known(ctx context.Context, instanceID string) (bool, error)
	WebhookSecret(ctx context.Context, instanceID string) (string, error)
}

// Webhook handles channel webhook traffic.
type Webhook struct {
	secrets  SecretSource
	dedup    dedup.Deduplicator
	enqueuer scheduler.Enqueuer
	cfg      config.WebhookConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewWebhook creates the webhook handler.
func NewWebhook(secrets SecretSource, deduplicator dedup.Deduplicator, enqueuer scheduler.Enqueuer, cfg config.WebhookConfig, log *logger.Logger) *Webhook {
	return &Webhook{
		secrets:  secrets,
		dedup:    deduplicator,
		enqueuer: enqueuer,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// RegisterRoutes mounts the webhook endpoints.
func (h *Webhook) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/channel", h.verify)
	group.POST("/channel", h.receive)
}

// verify answers the provider's subscription handshake: echo the challenge
// when the verify token matches.
func (h *Webhook) verify(c *gin.Context) {
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if h.cfg.GetWebhookVerifyToken() == "" || !hmac.Equal([]byte(token), []byte(h.cfg.GetWebhookVerifyToken())) {
		c.JSON(http.StatusForbidden, gin.H{"error": "verify token mismatch"})
		return
	}
	c.String(http.StatusOK, challenge)
}

// receive handles one webhook delivery. Invalid signatures get 401; every
// other outcome is 200 so the provider keeps the subscription healthy. The
// response is sent after admission only; processing happens off-request.
func (h *Webhook) receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var envelope transport.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.InstanceID == "" {
		// Malformed payloads are acknowledged, not retried: a body that does
		// not parse today will not parse tomorrow either.
		h.log.Warn("malformed webhook body dropped", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx := c.Request.Context()
	log := h.log.WithInstance(envelope.InstanceID)

	if !h.verifySignature(ctx, envelope.InstanceID, body, c.GetHeader(signatureHeader)) {
		log.Warn("webhook signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	known, err := h.secrets.Known(ctx, envelope.InstanceID)
	if err != nil {
		log.Error("instance lookup failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
		return
	}
	if !known {
		log.Warn("webhook for unknown instance dropped")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	accepted := 0
	for _, raw := range envelope.Messages {
		if h.admit(ctx, envelope.InstanceID, raw, log) {
			accepted++
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted", "messages": accepted})
}

// admit normalizes, deduplicates and enqueues one raw message. Returns true
// when the message was handed to the queue. Per-message failures are logged
// and skipped so one bad message never blocks its batch.
func (h *Webhook) admit(ctx context.Context, instanceID string, raw transport.RawMessage, log *logger.Logger) bool {
	if raw.FromMe {
		msg, err := transport.NormalizeOutbound(instanceID, raw, h.now())
		if err != nil {
			log.Warn("outbound message skipped", "error", err)
			return false
		}
		if err := h.enqueuer.EnqueueOutbound(ctx, msg); err != nil {
			log.Error("outbound enqueue failed", "error", err)
			return false
		}
		return true
	}

	msg, err := transport.NormalizeInbound(instanceID, raw, h.now())
	if err != nil {
		log.Warn("inbound message skipped", "error", err, "message_id", raw.ID)
		return false
	}

	seen, err := h.dedup.Seen(ctx, msg.ProviderMessageID)
	if err != nil {
		// A broken dedup store must not drop traffic; prefer the rare
		// duplicate over a lost message.
		log.Error("dedup lookup failed", "error", err, "message_id", msg.ProviderMessageID)
	}
	if seen {
		log.Debug("duplicate delivery dropped", "message_id", msg.ProviderMessageID)
		return false
	}

	if err := h.enqueuer.EnqueueInbound(ctx, msg); err != nil {
		log.Error("inbound enqueue failed", "error", err)
		return false
	}
	return true
}

// verifySignature checks the body HMAC. The instance's own secret wins; the
// globally configured secret is the fallback for instances created before
// per-instance secrets existed. No secret configured at all means signature
// checking is disabled.
func (h *Webhook) verifySignature(ctx context.Context, instanceID string, body []byte, header string) bool {
	secret, err := h.secrets.WebhookSecret(ctx, instanceID)
	if err != nil {
		h.log.Error("webhook secret lookup failed", "error", err, "instance_id", instanceID)
		return false
	}
	if secret == "" {
		secret = h.cfg.GetWebhookGlobalSecret()
	}
	if secret == "" {
		return true
	}

	provided := strings.TrimPrefix(header, "sha256=")
	decoded, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}
