// Package service orchestrates the inbound-message pipeline: attribution,
// dialog state, lead recording, chatbot relay and funnel evaluation.
package service

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/channels"
	"leadflow_backend/internal/errtrack"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/messaging/attribution"
	"leadflow_backend/internal/messaging/dialog"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DialogStore is the slice of the dialog repository the pipeline needs.
type DialogStore interface {
	Upsert(ctx context.Context, p dialog.UpsertParams) (domain.DialogState, error)
	ResumeBot(ctx context.Context, instanceID, contact string) error
}

// AttributionResolver resolves one message to its originating ad.
type AttributionResolver interface {
	Resolve(ctx context.Context, accountID uuid.UUID, msg domain.InboundMessage) (domain.AttributionResult, error)
}

// LeadRecorder is the slice of the leads service the pipeline needs.
type LeadRecorder interface {
	RecordFromPipeline(ctx context.Context, p leads.UpsertParams, messageText string) (leads.Lead, error)
	AdvanceStage(ctx context.Context, instanceID, contact, stage string) error
}

// Relay forwards messages to the chatbot. Satisfied by the dispatcher.
type Relay interface {
	RelayMessage(ctx context.Context, msg domain.InboundMessage, state domain.DialogState, replyAddress string, directionID *uuid.UUID) error
}

// FunnelSender dispatches funnel crossings. Satisfied by the dispatcher.
type FunnelSender interface {
	SendFunnelLevel(ctx context.Context, accountID uuid.UUID, instanceID, contact string, level domain.FunnelLevel, clickID string) error
}

// MediaArchiver copies media attachments to durable storage.
type MediaArchiver interface {
	Enabled() bool
	Archive(ctx context.Context, msg domain.InboundMessage) (string, error)
}

// AccountResolver maps an instance to its owning account.
type AccountResolver interface {
	AccountID(ctx context.Context, instanceID string) (uuid.UUID, error)
}

// OperatorDetector classifies outbound traffic.
type OperatorDetector interface {
	HandleOutbound(ctx context.Context, msg domain.OutboundMessage) error
}

// Pipeline runs the full processing sequence for one message.
type Pipeline struct {
	accounts   AccountResolver
	resolver   AttributionResolver
	dialogs    DialogStore
	leads      LeadRecorder
	relay      Relay
	funnel     FunnelSender
	archiver   MediaArchiver
	detector   OperatorDetector
	thresholds domain.Thresholds
	errs       *errtrack.Reporter
	log        *logger.Logger
	now        func() time.Time
}

// NewPipeline wires the pipeline. archiver may be nil.
func NewPipeline(
	accounts AccountResolver,
	resolver AttributionResolver,
	dialogs DialogStore,
	leadRecorder LeadRecorder,
	relay Relay,
	funnel FunnelSender,
	archiver MediaArchiver,
	detector OperatorDetector,
	cfg config.PipelineConfig,
	errs *errtrack.Reporter,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		accounts:   accounts,
		resolver:   resolver,
		dialogs:    dialogs,
		leads:      leadRecorder,
		relay:      relay,
		funnel:     funnel,
		archiver:   archiver,
		detector:   detector,
		thresholds: domain.Thresholds{Interest: cfg.GetInterestThreshold()},
		errs:       errs,
		log:        log,
		now:        time.Now,
	}
}

// Process runs one inbound message through the pipeline. A returned error
// means the whole message is safe to retry: every step before the failure is
// idempotent. Side-channel steps (media archive, chatbot relay) report their
// failures instead of failing the message.
func (p *Pipeline) Process(ctx context.Context, msg domain.InboundMessage) error {
	log := p.log.WithInstance(msg.InstanceID).WithContact(msg.Sender)

	accountID, err := p.accounts.AccountID(ctx, msg.InstanceID)
	if errors.Is(err, channels.ErrNotFound) {
		// Instance deactivated between enqueue and processing.
		log.Warn("message for unknown instance dropped")
		return nil
	}
	if err != nil {
		return err
	}

	result, err := p.resolver.Resolve(ctx, accountID, msg)
	if err != nil {
		return err
	}
	if result.Resolved() {
		log.Info("message attributed",
			"method", result.Method, "score", result.Score)
	}

	if p.archiver != nil && p.archiver.Enabled() && msg.MediaURL != "" {
		if _, err := p.archiver.Archive(ctx, msg); err != nil {
			p.errs.Capture(errtrack.Report{Op: "media_archive", InstanceID: msg.InstanceID, Contact: msg.Sender, Err: err})
		}
	}

	state, err := p.dialogs.Upsert(ctx, dialog.UpsertParams{
		InstanceID:      msg.InstanceID,
		Contact:         msg.Sender,
		DisplayName:     optional(msg.SenderName),
		DirectionID:     result.DirectionID,
		CreativeID:      result.CreativeID,
		PaidAttribution: result.Paid(),
		IsInbound:       true,
		Timestamp:       msg.ReceivedAt,
	})
	if err != nil {
		return err
	}

	p.maybeResumeBot(ctx, state)

	replyAddress := attribution.ResolveReplyAddress(msg)

	var lead leads.Lead
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lead, err = p.leads.RecordFromPipeline(gctx, leads.UpsertParams{
			AccountID:   accountID,
			InstanceID:  msg.InstanceID,
			Contact:     msg.Sender,
			DisplayName: optional(msg.SenderName),
			Phone:       optional(replyAddress),
			Attribution: result,
		}, msg.Text)
		return err
	})
	g.Go(func() error {
		if err := p.relay.RelayMessage(gctx, msg, state, replyAddress, state.DirectionID); err != nil {
			p.errs.Capture(errtrack.Report{Op: "chatbot_relay", InstanceID: msg.InstanceID, Contact: msg.Sender, Err: err})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	clickID := result.ClickID
	if clickID == "" && lead.ClickID != nil {
		clickID = *lead.ClickID
	}

	for _, level := range domain.EvaluateFunnel(state, p.thresholds) {
		if err := p.funnel.SendFunnelLevel(ctx, accountID, msg.InstanceID, msg.Sender, level, clickID); err != nil {
			// The claim was released; the next message retries the level.
			p.errs.Capture(errtrack.Report{Op: "funnel_dispatch", InstanceID: msg.InstanceID, Contact: msg.Sender, Err: err})
			continue
		}
		if err := p.leads.AdvanceStage(ctx, msg.InstanceID, msg.Sender, string(level)); err != nil {
			p.errs.Capture(errtrack.Report{Op: "lead_stage", InstanceID: msg.InstanceID, Contact: msg.Sender, Err: err})
		}
	}

	return nil
}

// HandleOutbound runs operator detection for one outbound message.
func (p *Pipeline) HandleOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	return p.detector.HandleOutbound(ctx, msg)
}

// maybeResumeBot lifts an elapsed operator pause. The pause flag is only
// consulted on inbound traffic, so resuming lazily here is equivalent to a
// timer and needs no scheduler.
func (p *Pipeline) maybeResumeBot(ctx context.Context, state domain.DialogState) {
	if !state.BotPaused || state.BotResumeAt == nil || p.now().Before(*state.BotResumeAt) {
		return
	}
	if err := p.dialogs.ResumeBot(ctx, state.InstanceID, state.Contact); err != nil {
		p.errs.Capture(errtrack.Report{Op: "bot_resume", InstanceID: state.InstanceID, Contact: state.Contact, Err: err})
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
