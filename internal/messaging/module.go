// Package messaging provides the messaging bounded context module: webhook
// intake, attribution, dialog state, chatbot relay and funnel dispatch.
package messaging

import (
	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/errtrack"
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/mediaarchive"
	"leadflow_backend/internal/messaging/attribution"
	"leadflow_backend/internal/messaging/dedup"
	"leadflow_backend/internal/messaging/dialog"
	"leadflow_backend/internal/messaging/dispatch"
	"leadflow_backend/internal/messaging/handler"
	"leadflow_backend/internal/messaging/operator"
	"leadflow_backend/internal/messaging/service"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the messaging bounded context module implementing http.Module.
type Module struct {
	webhook    *handler.Webhook
	pipeline   *service.Pipeline
	dispatcher *dispatch.Dispatcher
	archiver   *mediaarchive.Archiver
}

// NewModule wires the messaging context. The dedup store is Redis-backed when
// a Redis URL is configured; otherwise an in-process store, which is enough
// for a single replica. A nil enqueuer selects the in-process fallback that
// runs the pipeline on a goroutine.
func NewModule(
	pool *pgxpool.Pool,
	channelsSvc *channels.Service,
	leadsSvc *leads.Service,
	enqueuer scheduler.Enqueuer,
	bus events.Bus,
	cfg *config.Config,
	errs *errtrack.Reporter,
	log *logger.Logger,
) (*Module, error) {
	var deduplicator dedup.Deduplicator
	if cfg.GetRedisURL() != "" {
		store, err := dedup.NewFromURL(cfg.GetRedisURL(), cfg.GetDedupTTL())
		if err != nil {
			return nil, err
		}
		deduplicator = store
	} else {
		log.Warn("redis not configured, using in-memory webhook dedup")
		deduplicator = dedup.NewMemoryStore(cfg.GetDedupTTL())
	}

	dialogRepo := dialog.New(pool)

	resolver := attribution.NewResolver(
		attribution.NewRepository(pool),
		dialogRepo,
		cfg.GetSimilarityThreshold(),
		cfg.GetSilenceWindow(),
		log,
	)

	archiver, err := mediaarchive.New(cfg, log)
	if err != nil {
		return nil, err
	}

	dispatcher := dispatch.NewDispatcher(
		dispatch.NewChatbotClient(cfg.GetChatbotURL(), cfg.GetChatbotTimeout()),
		dispatch.NewConversionClient(cfg.GetConversionAPIURL(), cfg.GetConversionAPIToken(), cfg.GetChatbotTimeout()),
		dialogRepo,
		channelsSvc,
		bus,
		dispatch.Policy{Attempts: cfg.GetDispatchAttempts(), BackoffBase: cfg.GetDispatchBackoffBase()},
		log,
	)

	detector := operator.NewDetector(dialogRepo, channelsSvc, bus, cfg.GetOperatorEchoWindow(), log)

	pipeline := service.NewPipeline(
		channelsSvc,
		resolver,
		dialogRepo,
		leadsSvc,
		dispatcher,
		dispatcher,
		archiver,
		detector,
		cfg,
		errs,
		log,
	)

	if enqueuer == nil {
		enqueuer = scheduler.NewInlineEnqueuer(pipeline, pipeline, log)
	}

	return &Module{
		webhook:    handler.NewWebhook(channelsSvc, deduplicator, enqueuer, cfg, log),
		pipeline:   pipeline,
		dispatcher: dispatcher,
		archiver:   archiver,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "messaging"
}

// Pipeline returns the message pipeline for the task worker.
func (m *Module) Pipeline() *service.Pipeline {
	return m.pipeline
}

// Dispatcher returns the dispatcher for cross-module wiring.
func (m *Module) Dispatcher() *dispatch.Dispatcher {
	return m.dispatcher
}

// Archiver returns the media archiver; nil-safe when archiving is disabled.
func (m *Module) Archiver() *mediaarchive.Archiver {
	return m.archiver
}

// RegisterRoutes mounts the channel webhook.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.webhook.RegisterRoutes(ctx.Webhook)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
