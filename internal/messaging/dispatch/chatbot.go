package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// ChatbotRequest is the payload relayed to the external chatbot service for
// each inbound message the bot should answer.
type ChatbotRequest struct {
	InstanceID   string     `json:"instanceId"`
	Contact      string     `json:"contact"`
	ReplyAddress string     `json:"replyAddress"`
	Text         string     `json:"text"`
	SenderName   string     `json:"senderName,omitempty"`
	DirectionID  *uuid.UUID `json:"directionId,omitempty"`
	MessageKind  string     `json:"messageKind"`
	ReceivedAt   time.Time  `json:"receivedAt"`
}

// ChatbotClient posts inbound messages to the chatbot relay endpoint.
type ChatbotClient struct {
	baseURL string
	http    *http.Client
}

// NewChatbotClient creates a relay client. A zero timeout disables the
// per-request deadline, which callers should not do in production.
func NewChatbotClient(baseURL string, timeout time.Duration) *ChatbotClient {
	return &ChatbotClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a relay endpoint is configured.
func (c *ChatbotClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// Relay forwards one inbound message to the chatbot. Any non-2xx response is
// a failure; the relay endpoint returns no meaningful body.
func (c *ChatbotClient) Relay(ctx context.Context, msg domain.InboundMessage, replyAddress string, directionID *uuid.UUID) error {
	payload := ChatbotRequest{
		InstanceID:   msg.InstanceID,
		Contact:      msg.Sender,
		ReplyAddress: replyAddress,
		Text:         msg.Text,
		SenderName:   msg.SenderName,
		DirectionID:  directionID,
		MessageKind:  string(msg.Kind),
		ReceivedAt:   msg.ReceivedAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal chatbot request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build chatbot request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "chatbot relay unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.Unavailable(fmt.Sprintf("chatbot relay returned %d", resp.StatusCode))
	}

	return nil
}
