package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"leadflow_backend/platform/apperr"
)

// ConversionEvent is the payload reported to the advertising platform's
// conversion endpoint when a contact crosses a funnel level.
type ConversionEvent struct {
	ClickID    string    `json:"clickId,omitempty"`
	Level      string    `json:"eventName"`
	Contact    string    `json:"contact"`
	InstanceID string    `json:"instanceId"`
	OccurredAt time.Time `json:"eventTime"`
}

type conversionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ConversionClient reports funnel crossings to the conversion endpoint.
type ConversionClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewConversionClient creates a conversion client.
func NewConversionClient(baseURL, token string, timeout time.Duration) *ConversionClient {
	return &ConversionClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a conversion endpoint is configured.
func (c *ConversionClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// Report sends one conversion event. The endpoint answers 200 even for
// rejected events, so the body's success flag decides the outcome.
func (c *ConversionClient) Report(ctx context.Context, event ConversionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "marshal conversion event", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build conversion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "conversion endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.Unavailable(fmt.Sprintf("conversion endpoint returned %d", resp.StatusCode))
	}

	var parsed conversionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "decode conversion response", err)
	}
	if !parsed.Success {
		return apperr.Unavailable(fmt.Sprintf("conversion event rejected: %s", parsed.Error))
	}

	return nil
}
