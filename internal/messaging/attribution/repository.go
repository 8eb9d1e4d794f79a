// Package attribution resolves inbound messages to the advertisement that
// produced them, either from ad metadata carried on the message or through
// the text-similarity fallback matcher.
package attribution

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Creative is an advertisement creative as stored by the campaign CRUD
// collaborator. The resolver only reads creatives, never writes them.
type Creative struct {
	ID                uuid.UUID
	AccountID         uuid.UUID
	PlatformAdID      string
	DirectionID       *uuid.UUID
	ChannelIdentityID *uuid.UUID
}

// Direction is a campaign direction with its configured expected first
// question used by the fallback matcher.
type Direction struct {
	ID                    uuid.UUID
	AccountID             uuid.UUID
	Name                  string
	ExpectedFirstQuestion string
}

// Repository reads creatives and campaign directions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attribution repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreativeByPlatformID looks up the creative whose platform-assigned ad id
// matches, scoped to the owning account. Returns nil when no creative is
// known for the id.
func (r *Repository) CreativeByPlatformID(ctx context.Context, accountID uuid.UUID, platformAdID string) (*Creative, error) {
	var c Creative
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, platform_ad_id, direction_id, channel_identity_id
		FROM creatives
		WHERE account_id = $1 AND platform_ad_id = $2 AND is_active = true
	`, accountID, platformAdID).Scan(
		&c.ID, &c.AccountID, &c.PlatformAdID, &c.DirectionID, &c.ChannelIdentityID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// ActiveDirections lists the account's active campaign directions that carry
// a non-empty expected first question.
func (r *Repository) ActiveDirections(ctx context.Context, accountID uuid.UUID) ([]Direction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, name, expected_first_question
		FROM campaign_directions
		WHERE account_id = $1 AND is_active = true AND expected_first_question <> ''
		ORDER BY name ASC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Direction, 0)
	for rows.Next() {
		var d Direction
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Name, &d.ExpectedFirstQuestion); err != nil {
			return nil, err
		}
		items = append(items, d)
	}

	return items, rows.Err()
}
