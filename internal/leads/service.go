package leads

import (
	"context"
	"errors"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs. Satisfied by *Repository.
type Store interface {
	UpsertFromPipeline(ctx context.Context, p UpsertParams) (Lead, bool, error)
	GetByContact(ctx context.Context, instanceID, contact string) (Lead, error)
	GetByCRMEntity(ctx context.Context, crmEntityID string) (Lead, error)
	LinkCRMEntity(ctx context.Context, leadID uuid.UUID, crmEntityID string) error
	UpdateStage(ctx context.Context, leadID uuid.UUID, stage string) error
	SetAttribution(ctx context.Context, accountID, leadID uuid.UUID, directionID, creativeID *uuid.UUID, method string) (Lead, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, method string, limit, offset int) ([]Lead, error)
}

// Service wraps lead persistence with event publication.
type Service struct {
	repo Store
	bus  events.Bus
	log  *logger.Logger
}

// NewService creates a leads service.
func NewService(repo Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// RecordFromPipeline upserts the lead for an attributed message and publishes
// the resulting events: LeadCreated for a new row, ManualMatchRequired
// whenever the similarity fallback attributed this message, whether the row
// is new or an existing lead re-matched after the silence window.
func (s *Service) RecordFromPipeline(ctx context.Context, p UpsertParams, messageText string) (Lead, error) {
	lead, created, err := s.repo.UpsertFromPipeline(ctx, p)
	if err != nil {
		return Lead{}, err
	}

	if created {
		s.log.Info("lead created",
			"lead_id", lead.ID, "instance_id", lead.InstanceID,
			"contact", lead.Contact, "method", lead.AttributionMethod)
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			AccountID: lead.AccountID,
			Contact:   lead.Contact,
			Source:    lead.AttributionMethod,
		})
	}

	// The stored method check filters out leads already attributed through ad
	// metadata: those keep their attribution and need no review.
	matchPending := p.Attribution.Method == domain.MethodTextSimilarity &&
		p.Attribution.DirectionID != nil &&
		lead.AttributionMethod == string(domain.MethodTextSimilarity)
	if matchPending {
		s.bus.Publish(ctx, events.ManualMatchRequired{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      lead.ID,
			AccountID:   lead.AccountID,
			DirectionID: *p.Attribution.DirectionID,
			Contact:     lead.Contact,
			MessageText: messageText,
			Score:       p.Attribution.Score,
		})
	}

	return lead, nil
}

// AdvanceStage moves a lead forward when a funnel level is reached. Stages
// never move backwards.
func (s *Service) AdvanceStage(ctx context.Context, instanceID, contact, stage string) error {
	lead, err := s.repo.GetByContact(ctx, instanceID, contact)
	if errors.Is(err, ErrNotFound) {
		// Funnel events can race lead creation; the stage is derivable from
		// the dialog state, so losing this update is acceptable.
		return nil
	}
	if err != nil {
		return err
	}

	if stageRank(stage) <= stageRank(lead.Stage) {
		return nil
	}
	return s.repo.UpdateStage(ctx, lead.ID, stage)
}

// ByCRMEntity returns the lead linked to a CRM entity id.
func (s *Service) ByCRMEntity(ctx context.Context, crmEntityID string) (Lead, error) {
	lead, err := s.repo.GetByCRMEntity(ctx, crmEntityID)
	if errors.Is(err, ErrNotFound) {
		return Lead{}, apperr.NotFound("no lead linked to CRM entity")
	}
	return lead, err
}

// LinkCRMEntity stores the CRM entity id for a lead.
func (s *Service) LinkCRMEntity(ctx context.Context, leadID uuid.UUID, crmEntityID string) error {
	return s.repo.LinkCRMEntity(ctx, leadID, crmEntityID)
}

// List returns the account's leads.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, method string, limit, offset int) ([]Lead, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByAccount(ctx, accountID, method, limit, offset)
}

// ConfirmMatchParams carries a manual attribution review decision.
type ConfirmMatchParams struct {
	DirectionID *uuid.UUID `json:"directionId"`
	CreativeID  *uuid.UUID `json:"creativeId"`
}

// ConfirmMatch applies a human decision to a similarity-matched lead.
func (s *Service) ConfirmMatch(ctx context.Context, accountID, leadID uuid.UUID, p ConfirmMatchParams) (Lead, error) {
	lead, err := s.repo.SetAttribution(ctx, accountID, leadID, p.DirectionID, p.CreativeID, "manual")
	if errors.Is(err, ErrNotFound) {
		return Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

func stageRank(stage string) int {
	switch stage {
	case StageNew:
		return 0
	case StageInterest:
		return 1
	case StageQualified:
		return 2
	case StageScheduled:
		return 3
	}
	return -1
}
