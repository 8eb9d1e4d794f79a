package crm

import (
	"context"
	"errors"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadSource is the slice of the leads service the CRM module needs.
type LeadSource interface {
	ByCRMEntity(ctx context.Context, crmEntityID string) (leads.Lead, error)
	AdvanceStage(ctx context.Context, instanceID, contact, stage string) error
}

// FunnelDispatcher sends funnel crossings to the conversion endpoint.
// Satisfied by the messaging dispatcher.
type FunnelDispatcher interface {
	SendFunnelLevel(ctx context.Context, accountID uuid.UUID, instanceID, contact string, level domain.FunnelLevel, clickID string) error
}

// Service handles CRM stage changes.
type Service struct {
	rules      *Repository
	leads      LeadSource
	dispatcher FunnelDispatcher
	fetcher    EntityFetcher
	log        *logger.Logger

	// ruleLookup is the rule resolution step, replaceable in tests.
	ruleLookup func(ctx context.Context, accountID uuid.UUID, pipelineID, statusID string) (*FunnelRule, error)
}

// NewService creates a CRM service. fetcher may be nil, in which case the
// webhook payload's status is trusted as-is.
func NewService(rules *Repository, leadSource LeadSource, dispatcher FunnelDispatcher, fetcher EntityFetcher, log *logger.Logger) *Service {
	s := &Service{
		rules:      rules,
		leads:      leadSource,
		dispatcher: dispatcher,
		fetcher:    fetcher,
		log:        log,
	}
	if rules != nil {
		s.ruleLookup = rules.RuleForStatus
	}
	return s
}

// StatusChange is one CRM stage-change notification.
type StatusChange struct {
	EntityID   string `json:"entityId" validate:"required"`
	PipelineID string `json:"pipelineId" validate:"required"`
	StatusID   string `json:"statusId" validate:"required"`
}

// HandleStatusChange maps a CRM stage change onto the funnel. An entity with
// no linked lead or a status with no rule is not an error; the CRM tracks
// far more than this pipeline does.
func (s *Service) HandleStatusChange(ctx context.Context, change StatusChange) error {
	if s.fetcher != nil {
		// Re-read the entity so a delayed webhook cannot dispatch a stage the
		// entity has already left.
		entity, err := s.fetcher.FetchEntity(ctx, change.EntityID)
		if apperr.Is(err, apperr.KindNotFound) {
			s.log.Warn("crm entity vanished before processing", "entity_id", change.EntityID)
			return nil
		}
		if err != nil {
			return err
		}
		change.PipelineID = entity.PipelineID
		change.StatusID = entity.StatusID
	}

	lead, err := s.leads.ByCRMEntity(ctx, change.EntityID)
	if apperr.Is(err, apperr.KindNotFound) {
		s.log.Debug("crm entity has no linked lead", "entity_id", change.EntityID)
		return nil
	}
	if err != nil {
		return err
	}

	rule, err := s.ruleLookup(ctx, lead.AccountID, change.PipelineID, change.StatusID)
	if err != nil {
		return err
	}
	if rule == nil {
		return nil
	}

	level, err := parseLevel(rule.Level)
	if err != nil {
		return err
	}

	clickID := ""
	if lead.ClickID != nil {
		clickID = *lead.ClickID
	}

	if err := s.dispatcher.SendFunnelLevel(ctx, lead.AccountID, lead.InstanceID, lead.Contact, level, clickID); err != nil {
		return err
	}

	return s.leads.AdvanceStage(ctx, lead.InstanceID, lead.Contact, rule.Level)
}

// ListRules returns the account's funnel rules.
func (s *Service) ListRules(ctx context.Context, accountID uuid.UUID) ([]FunnelRule, error) {
	return s.rules.ListByAccount(ctx, accountID)
}

// CreateRuleParams are the admin-supplied fields for a funnel rule.
type CreateRuleParams struct {
	PipelineID string `json:"pipelineId" validate:"required,min=1,max=100"`
	StatusID   string `json:"statusId" validate:"required,min=1,max=100"`
	Level      string `json:"level" validate:"required,oneof=qualified scheduled"`
}

// CreateRule adds or replaces the rule for a pipeline status.
func (s *Service) CreateRule(ctx context.Context, accountID uuid.UUID, p CreateRuleParams) (FunnelRule, error) {
	return s.rules.Create(ctx, FunnelRule{
		AccountID:  accountID,
		PipelineID: p.PipelineID,
		StatusID:   p.StatusID,
		Level:      p.Level,
	})
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, accountID, id uuid.UUID) error {
	err := s.rules.Delete(ctx, accountID, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("funnel rule not found")
	}
	return err
}

func parseLevel(level string) (domain.FunnelLevel, error) {
	switch level {
	case string(domain.LevelQualified):
		return domain.LevelQualified, nil
	case string(domain.LevelScheduled):
		return domain.LevelScheduled, nil
	}
	return "", apperr.Validation("unknown funnel level: " + level)
}
