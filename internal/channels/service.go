package channels

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// settingsTTL bounds how stale the per-instance settings cache may get.
// Webhook traffic reads settings on every delivery; admin writes are rare.
const settingsTTL = 30 * time.Second

type cachedInstance struct {
	inst    Instance
	fetched time.Time
}

// Service exposes channel instance management and answers the capability
// questions the pipeline asks on the hot path.
type Service struct {
	repo *Repository
	log  *logger.Logger

	mu    sync.RWMutex
	cache map[string]cachedInstance
	now   func() time.Time
}

// NewService creates a channels service.
func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		log:   log,
		cache: make(map[string]cachedInstance),
		now:   time.Now,
	}
}

// instance returns the active instance for a provider id, served from the
// cache when fresh.
func (s *Service) instance(ctx context.Context, instanceID string) (Instance, error) {
	s.mu.RLock()
	entry, ok := s.cache[instanceID]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.fetched) < settingsTTL {
		return entry.inst, nil
	}

	inst, err := s.repo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return Instance{}, err
	}

	s.mu.Lock()
	s.cache[instanceID] = cachedInstance{inst: inst, fetched: s.now()}
	s.mu.Unlock()
	return inst, nil
}

func (s *Service) invalidate(instanceID string) {
	s.mu.Lock()
	delete(s.cache, instanceID)
	s.mu.Unlock()
}

// Known reports whether an active instance exists for the provider id.
func (s *Service) Known(ctx context.Context, instanceID string) (bool, error) {
	_, err := s.instance(ctx, instanceID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AccountID returns the owning account of an instance.
func (s *Service) AccountID(ctx context.Context, instanceID string) (uuid.UUID, error) {
	inst, err := s.instance(ctx, instanceID)
	if err != nil {
		return uuid.Nil, err
	}
	return inst.AccountID, nil
}

// WebhookSecret returns the instance's webhook signing secret. An empty
// secret means the instance relies on the globally configured one.
func (s *Service) WebhookSecret(ctx context.Context, instanceID string) (string, error) {
	inst, err := s.instance(ctx, instanceID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return inst.WebhookSecret, nil
}

// BotEnabled reports whether automated responses are enabled for the
// instance. Unknown instances have no bot.
func (s *Service) BotEnabled(ctx context.Context, instanceID string) (bool, error) {
	inst, err := s.instance(ctx, instanceID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inst.BotEnabled, nil
}

// PauseOnOperator reports whether operator messages pause the bot for this
// instance.
func (s *Service) PauseOnOperator(ctx context.Context, instanceID string) (bool, error) {
	inst, err := s.instance(ctx, instanceID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return inst.BotEnabled && inst.PauseOnOperator, nil
}

// AutoResumeAfter returns the instance's operator-pause duration. Zero means
// the pause holds until lifted by hand.
func (s *Service) AutoResumeAfter(ctx context.Context, instanceID string) (time.Duration, error) {
	inst, err := s.instance(ctx, instanceID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Duration(inst.AutoResumeSeconds) * time.Second, nil
}

// =============================================================================
// Admin operations
// =============================================================================

// CreateParams are the admin-supplied fields for a new instance.
type CreateParams struct {
	InstanceID        string `json:"instanceId" validate:"required,min=3,max=128"`
	Name              string `json:"name" validate:"required,min=1,max=200"`
	BotEnabled        bool   `json:"botEnabled"`
	PauseOnOperator   bool   `json:"pauseOnOperator"`
	AutoResumeSeconds int    `json:"autoResumeSeconds" validate:"min=0,max=604800"`
}

// Create registers a new channel instance with a generated webhook secret.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, p CreateParams) (Instance, error) {
	secret, err := newSecret()
	if err != nil {
		return Instance{}, apperr.Wrap(apperr.KindInternal, "generate webhook secret", err)
	}

	inst, err := s.repo.Create(ctx, Instance{
		AccountID:         accountID,
		InstanceID:        p.InstanceID,
		Name:              p.Name,
		WebhookSecret:     secret,
		BotEnabled:        p.BotEnabled,
		PauseOnOperator:   p.PauseOnOperator,
		AutoResumeSeconds: p.AutoResumeSeconds,
	})
	if err != nil {
		return Instance{}, err
	}

	s.log.Info("channel instance created", "instance_id", inst.InstanceID, "account_id", accountID)
	return inst, nil
}

// UpdateParams are the mutable settings of an instance.
type UpdateParams struct {
	Name              string `json:"name" validate:"required,min=1,max=200"`
	BotEnabled        bool   `json:"botEnabled"`
	PauseOnOperator   bool   `json:"pauseOnOperator"`
	AutoResumeSeconds int    `json:"autoResumeSeconds" validate:"min=0,max=604800"`
	IsActive          bool   `json:"isActive"`
	RotateSecret      bool   `json:"rotateSecret"`
}

// Update saves instance settings, optionally rotating the webhook secret.
func (s *Service) Update(ctx context.Context, accountID, id uuid.UUID, p UpdateParams) (Instance, error) {
	inst, err := s.repo.GetByID(ctx, accountID, id)
	if errors.Is(err, ErrNotFound) {
		return Instance{}, apperr.NotFound("channel instance not found")
	}
	if err != nil {
		return Instance{}, err
	}

	inst.Name = p.Name
	inst.BotEnabled = p.BotEnabled
	inst.PauseOnOperator = p.PauseOnOperator
	inst.AutoResumeSeconds = p.AutoResumeSeconds
	inst.IsActive = p.IsActive
	if p.RotateSecret {
		secret, err := newSecret()
		if err != nil {
			return Instance{}, apperr.Wrap(apperr.KindInternal, "rotate webhook secret", err)
		}
		inst.WebhookSecret = secret
	}

	updated, err := s.repo.Update(ctx, inst)
	if err != nil {
		return Instance{}, err
	}

	s.invalidate(updated.InstanceID)
	return updated, nil
}

// List returns the account's instances.
func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]Instance, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// Get returns one instance by id.
func (s *Service) Get(ctx context.Context, accountID, id uuid.UUID) (Instance, error) {
	inst, err := s.repo.GetByID(ctx, accountID, id)
	if errors.Is(err, ErrNotFound) {
		return Instance{}, apperr.NotFound("channel instance not found")
	}
	return inst, err
}

// Deactivate disables an instance.
func (s *Service) Deactivate(ctx context.Context, accountID, id uuid.UUID) error {
	inst, err := s.repo.GetByID(ctx, accountID, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("channel instance not found")
	}
	if err != nil {
		return err
	}

	if err := s.repo.Deactivate(ctx, accountID, id); err != nil {
		return err
	}
	s.invalidate(inst.InstanceID)
	return nil
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
