package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow_backend/internal/messaging/dedup"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type fakeSecrets struct {
	known  bool
	secret string
}

func (f *fakeSecrets) Known(context.Context, string) (bool, error) {
	return f.known, nil
}

func (f *fakeSecrets) WebhookSecret(context.Context, string) (string, error) {
	return f.secret, nil
}

type captureEnqueuer struct {
	inbound  []domain.InboundMessage
	outbound []domain.OutboundMessage
}

func (e *captureEnqueuer) EnqueueInbound(_ context.Context, msg domain.InboundMessage) error {
	e.inbound = append(e.inbound, msg)
	return nil
}

func (e *captureEnqueuer) EnqueueOutbound(_ context.Context, msg domain.OutboundMessage) error {
	e.outbound = append(e.outbound, msg)
	return nil
}

type webhookConfig struct {
	verifyToken  string
	globalSecret string
}

func (c webhookConfig) GetWebhookVerifyToken() string  { return c.verifyToken }
func (c webhookConfig) GetWebhookGlobalSecret() string { return c.globalSecret }

func newTestRouter(secrets *fakeSecrets, enq *captureEnqueuer, cfg webhookConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewWebhook(secrets, dedup.NewMemoryStore(10*time.Minute), enq, cfg, logger.New("development"))
	engine := gin.New()
	h.RegisterRoutes(engine.Group("/webhooks"))
	return engine
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const envelopeBody = `{
	"instanceId": "inst-1",
	"messages": [
		{"id": "wamid.1", "type": "chat", "sender": "79991234567@c.us", "chatId": "79991234567@c.us", "text": {"body": "привет"}}
	]
}`

func TestReceive_ValidSignatureEnqueues(t *testing.T) {
	enq := &captureEnqueuer{}
	router := newTestRouter(&fakeSecrets{known: true, secret: "s3cret"}, enq, webhookConfig{})

	body := []byte(envelopeBody)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(body))
	req.Header.Set(signatureHeader, sign("s3cret", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(enq.inbound) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(enq.inbound))
	}
	if enq.inbound[0].ProviderMessageID != "wamid.1" {
		t.Fatalf("unexpected message id %q", enq.inbound[0].ProviderMessageID)
	}
}

func TestReceive_InvalidSignatureRejected(t *testing.T) {
	enq := &captureEnqueuer{}
	router := newTestRouter(&fakeSecrets{known: true, secret: "s3cret"}, enq, webhookConfig{})

	body := []byte(envelopeBody)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(body))
	req.Header.Set(signatureHeader, sign("wrong", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(enq.inbound) != 0 {
		t.Fatal("rejected delivery must not enqueue")
	}
}

func TestReceive_GlobalSecretFallback(t *testing.T) {
	enq := &captureEnqueuer{}
	router := newTestRouter(&fakeSecrets{known: true}, enq, webhookConfig{globalSecret: "global"})

	body := []byte(envelopeBody)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(body))
	req.Header.Set(signatureHeader, sign("global", body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || len(enq.inbound) != 1 {
		t.Fatalf("expected fallback secret to verify, got %d with %d enqueued", rec.Code, len(enq.inbound))
	}
}

func TestReceive_DuplicateDeliveryDropped(t *testing.T) {
	enq := &captureEnqueuer{}
	router := newTestRouter(&fakeSecrets{known: true}, enq, webhookConfig{})

	body := []byte(envelopeBody)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	if len(enq.inbound) != 1 {
		t.Fatalf("expected duplicate to be dropped, got %d messages", len(enq.inbound))
	}
}

func TestReceive_OutboundMessageRouted(t *testing.T) {
	enq := &captureEnqueuer{}
	router := newTestRouter(&fakeSecrets{known: true}, enq, webhookConfig{})

	body := []byte(`{
		"instanceId": "inst-1",
		"messages": [
			{"fromMe": true, "chatId": "79991234567@c.us", "text": {"body": "Добрый день"}}
		]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(enq.outbound) != 1 || len(enq.inbound) != 0 {
		t.Fatalf("expected one outbound, got in=%d out=%d", len(enq.inbound), len(enq.outbound))
	}
}

func TestReceive_UnknownInstanceIgnoredWith200(t *testing.T) {
	enq := &captureEnqueuer{}
	router := newTestRouter(&fakeSecrets{known: false}, enq, webhookConfig{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/channel", bytes.NewReader([]byte(envelopeBody)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unknown instance must still ack, got %d", rec.Code)
	}
	if len(enq.inbound) != 0 {
		t.Fatal("unknown instance must not enqueue")
	}
}

func TestVerify_ChallengeEcho(t *testing.T) {
	router := newTestRouter(&fakeSecrets{}, &captureEnqueuer{}, webhookConfig{verifyToken: "vtok"})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/channel?hub.verify_token=vtok&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/webhooks/channel?hub.verify_token=wrong&hub.challenge=12345", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong token, got %d", rec.Code)
	}
}
