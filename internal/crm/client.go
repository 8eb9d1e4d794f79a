// Package crm integrates the external CRM: it receives stage-change webhooks
// and maps CRM pipeline statuses onto funnel levels.
package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
)

// Entity is the slice of a CRM record the pipeline cares about.
type Entity struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipelineId"`
	StatusID   string `json:"statusId"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
}

// EntityFetcher loads CRM entities. Satisfied by *HTTPClient.
type EntityFetcher interface {
	FetchEntity(ctx context.Context, entityID string) (Entity, error)
}

// HTTPClient talks to the CRM's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient creates a CRM API client. Returns nil when the CRM is not
// configured; callers treat a nil fetcher as "trust the webhook payload".
func NewHTTPClient(cfg config.CRMConfig) *HTTPClient {
	if cfg.GetCRMBaseURL() == "" {
		return nil
	}
	return &HTTPClient{
		baseURL: cfg.GetCRMBaseURL(),
		token:   cfg.GetCRMAPIToken(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchEntity loads one entity by id, used to re-read the authoritative
// status instead of trusting possibly stale webhook payloads.
func (c *HTTPClient) FetchEntity(ctx context.Context, entityID string) (Entity, error) {
	url := fmt.Sprintf("%s/entities/%s", c.baseURL, entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Entity{}, apperr.Wrap(apperr.KindInternal, "build crm request", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Entity{}, apperr.Wrap(apperr.KindUnavailable, "crm unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Entity{}, apperr.NotFound("crm entity not found")
	}
	if resp.StatusCode != http.StatusOK {
		return Entity{}, apperr.Unavailable(fmt.Sprintf("crm returned %d", resp.StatusCode))
	}

	var entity Entity
	if err := json.NewDecoder(resp.Body).Decode(&entity); err != nil {
		return Entity{}, apperr.Wrap(apperr.KindUnavailable, "decode crm entity", err)
	}
	return entity, nil
}
