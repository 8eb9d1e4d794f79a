package crm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no funnel rule matches.
var ErrNotFound = errors.New("funnel rule not found")

// FunnelRule maps one CRM pipeline status to a funnel level.
type FunnelRule struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"accountId"`
	PipelineID string    `json:"pipelineId"`
	StatusID   string    `json:"statusId"`
	// Level is the funnel level this status corresponds to, qualified or
	// scheduled. The interest level is computed from message counts and
	// never comes from the CRM.
	Level     string    `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository stores funnel rules in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a funnel rule repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RuleForStatus returns the rule matching a pipeline status, or nil when the
// status is not mapped to any funnel level.
func (r *Repository) RuleForStatus(ctx context.Context, accountID uuid.UUID, pipelineID, statusID string) (*FunnelRule, error) {
	var rule FunnelRule
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, pipeline_id, status_id, level, created_at
		FROM crm_funnel_rules
		WHERE account_id = $1 AND pipeline_id = $2 AND status_id = $3
	`, accountID, pipelineID, statusID).Scan(
		&rule.ID, &rule.AccountID, &rule.PipelineID, &rule.StatusID, &rule.Level, &rule.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListByAccount returns all of an account's rules.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]FunnelRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, pipeline_id, status_id, level, created_at
		FROM crm_funnel_rules
		WHERE account_id = $1
		ORDER BY pipeline_id, status_id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]FunnelRule, 0)
	for rows.Next() {
		var rule FunnelRule
		if err := rows.Scan(&rule.ID, &rule.AccountID, &rule.PipelineID, &rule.StatusID, &rule.Level, &rule.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, rule)
	}
	return items, rows.Err()
}

// Create inserts a rule. One status maps to at most one level.
func (r *Repository) Create(ctx context.Context, rule FunnelRule) (FunnelRule, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO crm_funnel_rules (account_id, pipeline_id, status_id, level)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, pipeline_id, status_id) DO UPDATE SET level = EXCLUDED.level
		RETURNING id, account_id, pipeline_id, status_id, level, created_at
	`, rule.AccountID, rule.PipelineID, rule.StatusID, rule.Level)

	var out FunnelRule
	err := row.Scan(&out.ID, &out.AccountID, &out.PipelineID, &out.StatusID, &out.Level, &out.CreatedAt)
	return out, err
}

// Delete removes a rule.
func (r *Repository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM crm_funnel_rules WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
