// Package channels manages the registry of connected messaging channel
// instances: their webhook credentials and their bot behaviour settings.
package channels

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no channel instance matches.
var ErrNotFound = errors.New("channel instance not found")

// Instance is one connected messaging channel account.
type Instance struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"accountId"`
	// InstanceID is the provider-assigned identifier carried on webhooks.
	InstanceID    string `json:"instanceId"`
	Name          string `json:"name"`
	WebhookSecret string `json:"-"`
	BotEnabled    bool   `json:"botEnabled"`
	// PauseOnOperator enables the operator-takeover pause for this instance.
	PauseOnOperator bool `json:"pauseOnOperator"`
	// AutoResumeSeconds is how long an operator pause lasts. Zero means the
	// pause holds until explicitly lifted.
	AutoResumeSeconds int       `json:"autoResumeSeconds"`
	IsActive          bool      `json:"isActive"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Repository stores channel instances in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a channels repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const instanceColumns = `
	id, account_id, instance_id, name, webhook_secret, bot_enabled,
	pause_on_operator, auto_resume_seconds, is_active, created_at, updated_at`

// GetByInstanceID returns the active instance with the given provider id.
func (r *Repository) GetByInstanceID(ctx context.Context, instanceID string) (Instance, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+instanceColumns+`
		FROM channel_instances
		WHERE instance_id = $1 AND is_active = true
	`, instanceID)
	return scanInstance(row)
}

// GetByID returns an instance by primary key, scoped to the account.
func (r *Repository) GetByID(ctx context.Context, accountID, id uuid.UUID) (Instance, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+instanceColumns+`
		FROM channel_instances
		WHERE id = $1 AND account_id = $2
	`, id, accountID)
	return scanInstance(row)
}

// ListByAccount returns all of an account's instances, active first.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]Instance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+instanceColumns+`
		FROM channel_instances
		WHERE account_id = $1
		ORDER BY is_active DESC, created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Instance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inst)
	}
	return items, rows.Err()
}

// Create inserts a new instance.
func (r *Repository) Create(ctx context.Context, inst Instance) (Instance, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO channel_instances (
			account_id, instance_id, name, webhook_secret, bot_enabled,
			pause_on_operator, auto_resume_seconds, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING`+instanceColumns,
		inst.AccountID, inst.InstanceID, inst.Name, inst.WebhookSecret,
		inst.BotEnabled, inst.PauseOnOperator, inst.AutoResumeSeconds,
	)
	return scanInstance(row)
}

// Update saves the mutable settings of an instance.
func (r *Repository) Update(ctx context.Context, inst Instance) (Instance, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE channel_instances SET
			name = $3,
			webhook_secret = $4,
			bot_enabled = $5,
			pause_on_operator = $6,
			auto_resume_seconds = $7,
			is_active = $8,
			updated_at = now()
		WHERE id = $1 AND account_id = $2
		RETURNING`+instanceColumns,
		inst.ID, inst.AccountID, inst.Name, inst.WebhookSecret,
		inst.BotEnabled, inst.PauseOnOperator, inst.AutoResumeSeconds, inst.IsActive,
	)
	return scanInstance(row)
}

// Deactivate soft-deletes an instance. Webhooks for it stop being accepted.
func (r *Repository) Deactivate(ctx context.Context, accountID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE channel_instances
		SET is_active = false, updated_at = now()
		WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInstance(row pgx.Row) (Instance, error) {
	var inst Instance
	err := row.Scan(
		&inst.ID, &inst.AccountID, &inst.InstanceID, &inst.Name, &inst.WebhookSecret,
		&inst.BotEnabled, &inst.PauseOnOperator, &inst.AutoResumeSeconds,
		&inst.IsActive, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, ErrNotFound
	}
	return inst, err
}
