// Package crm provides the CRM integration bounded context module.
package crm

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the CRM bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates and initializes the CRM module.
func NewModule(pool *pgxpool.Pool, leadSource LeadSource, dispatcher FunnelDispatcher, cfg config.CRMConfig, val *validator.Validator, log *logger.Logger) *Module {
	var fetcher EntityFetcher
	if client := NewHTTPClient(cfg); client != nil {
		fetcher = client
	}

	service := NewService(NewRepository(pool), leadSource, dispatcher, fetcher, log)
	return &Module{
		handler: NewHandler(service, cfg, val, log),
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "crm"
}

// Service returns the CRM service for cross-module wiring.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts the webhook and the admin rule routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterWebhook(ctx.Webhook)
	m.handler.RegisterAdminRoutes(ctx.Protected)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
