// Package leads manages the lead records the pipeline produces, one per
// attributed contact, and their progression through the funnel stages.
package leads

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/messaging/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no lead matches.
var ErrNotFound = errors.New("lead not found")

// Lead is one attributed contact.
type Lead struct {
	ID                uuid.UUID  `json:"id"`
	AccountID         uuid.UUID  `json:"accountId"`
	InstanceID        string     `json:"instanceId"`
	Contact           string     `json:"contact"`
	DisplayName       *string    `json:"displayName,omitempty"`
	Phone             *string    `json:"phone,omitempty"`
	DirectionID       *uuid.UUID `json:"directionId,omitempty"`
	CreativeID        *uuid.UUID `json:"creativeId,omitempty"`
	ClickID           *string    `json:"clickId,omitempty"`
	AttributionMethod string     `json:"attributionMethod"`
	AttributionScore  *float64   `json:"attributionScore,omitempty"`
	Stage             string     `json:"stage"`
	CRMEntityID       *string    `json:"crmEntityId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Lead stages, in funnel order.
const (
	StageNew       = "new"
	StageInterest  = "interest"
	StageQualified = "qualified"
	StageScheduled = "scheduled"
)

// Repository stores leads in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a leads repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, account_id, instance_id, contact_address, display_name, phone,
	direction_id, creative_id, click_id, attribution_method, attribution_score,
	stage, crm_entity_id, created_at, updated_at`

// UpsertParams carries one message's contribution to the lead record.
type UpsertParams struct {
	AccountID   uuid.UUID
	InstanceID  string
	Contact     string
	DisplayName *string
	Phone       *string
	Attribution domain.AttributionResult
}

// UpsertFromPipeline creates or refreshes the lead for a contact. A fresh
// attribution overwrites an unresolved one but never downgrades: the creative
// link and click id keep their latest non-null value, and the method only
// moves away from unresolved. Created reports whether the row is new.
func (r *Repository) UpsertFromPipeline(ctx context.Context, p UpsertParams) (Lead, bool, error) {
	var clickID *string
	if p.Attribution.ClickID != "" {
		clickID = &p.Attribution.ClickID
	}
	var score *float64
	if p.Attribution.Method == domain.MethodTextSimilarity {
		score = &p.Attribution.Score
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			account_id, instance_id, contact_address, display_name, phone,
			direction_id, creative_id, click_id, attribution_method,
			attribution_score, stage
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'new')
		ON CONFLICT (instance_id, contact_address) DO UPDATE SET
			display_name = COALESCE(leads.display_name, EXCLUDED.display_name),
			phone        = COALESCE(EXCLUDED.phone, leads.phone),
			direction_id = COALESCE(EXCLUDED.direction_id, leads.direction_id),
			creative_id  = COALESCE(EXCLUDED.creative_id, leads.creative_id),
			click_id     = COALESCE(EXCLUDED.click_id, leads.click_id),
			attribution_method = CASE
				WHEN leads.attribution_method = 'unresolved' THEN EXCLUDED.attribution_method
				WHEN EXCLUDED.attribution_method = 'ad_metadata' THEN 'ad_metadata'
				ELSE leads.attribution_method
			END,
			attribution_score = COALESCE(EXCLUDED.attribution_score, leads.attribution_score),
			updated_at = now()
		RETURNING`+leadColumns+`, (xmax = 0) AS inserted`,
		p.AccountID, p.InstanceID, p.Contact, p.DisplayName, p.Phone,
		p.Attribution.DirectionID, p.Attribution.CreativeID, clickID,
		string(p.Attribution.Method), score,
	)

	var lead Lead
	var inserted bool
	if err := scanLeadInto(row, &lead, &inserted); err != nil {
		return Lead{}, false, err
	}
	return lead, inserted, nil
}

// GetByContact returns the lead for a contact address.
func (r *Repository) GetByContact(ctx context.Context, instanceID, contact string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE instance_id = $1 AND contact_address = $2
	`, instanceID, contact)
	return scanLead(row)
}

// GetByCRMEntity returns the lead linked to a CRM entity.
func (r *Repository) GetByCRMEntity(ctx context.Context, crmEntityID string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE crm_entity_id = $1
	`, crmEntityID)
	return scanLead(row)
}

// LinkCRMEntity stores the CRM entity id on a lead. First write wins.
func (r *Repository) LinkCRMEntity(ctx context.Context, leadID uuid.UUID, crmEntityID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET crm_entity_id = COALESCE(crm_entity_id, $2), updated_at = now()
		WHERE id = $1
	`, leadID, crmEntityID)
	return err
}

// UpdateStage advances a lead's stage.
func (r *Repository) UpdateStage(ctx context.Context, leadID uuid.UUID, stage string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET stage = $2, updated_at = now() WHERE id = $1
	`, leadID, stage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAttribution overwrites a lead's attribution after a manual match review.
func (r *Repository) SetAttribution(ctx context.Context, accountID, leadID uuid.UUID, directionID, creativeID *uuid.UUID, method string) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads SET
			direction_id = $3,
			creative_id = $4,
			attribution_method = $5,
			attribution_score = NULL,
			updated_at = now()
		WHERE id = $1 AND account_id = $2
		RETURNING`+leadColumns,
		leadID, accountID, directionID, creativeID, method,
	)
	return scanLead(row)
}

// ListByAccount returns the account's leads, newest first, optionally
// filtered to one attribution method.
func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID, method string, limit, offset int) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+leadColumns+`
		FROM leads
		WHERE account_id = $1 AND ($2 = '' OR attribution_method = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, accountID, method, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		var lead Lead
		if err := rows.Scan(
			&lead.ID, &lead.AccountID, &lead.InstanceID, &lead.Contact,
			&lead.DisplayName, &lead.Phone, &lead.DirectionID, &lead.CreativeID,
			&lead.ClickID, &lead.AttributionMethod, &lead.AttributionScore,
			&lead.Stage, &lead.CRMEntityID, &lead.CreatedAt, &lead.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	return items, rows.Err()
}

func scanLead(row pgx.Row) (Lead, error) {
	var lead Lead
	err := row.Scan(
		&lead.ID, &lead.AccountID, &lead.InstanceID, &lead.Contact,
		&lead.DisplayName, &lead.Phone, &lead.DirectionID, &lead.CreativeID,
		&lead.ClickID, &lead.AttributionMethod, &lead.AttributionScore,
		&lead.Stage, &lead.CRMEntityID, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

func scanLeadInto(row pgx.Row, lead *Lead, inserted *bool) error {
	return row.Scan(
		&lead.ID, &lead.AccountID, &lead.InstanceID, &lead.Contact,
		&lead.DisplayName, &lead.Phone, &lead.DirectionID, &lead.CreativeID,
		&lead.ClickID, &lead.AttributionMethod, &lead.AttributionScore,
		&lead.Stage, &lead.CRMEntityID, &lead.CreatedAt, &lead.UpdatedAt,
		inserted,
	)
}
