// Package dialog persists the per-contact conversational state of the
// pipeline. Every mutation is a single conditional SQL statement so that
// concurrent webhook deliveries for the same contact serialize on the row
// instead of racing in application code.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/messaging/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no dialog state exists for a contact.
var ErrNotFound = errors.New("dialog state not found")

// Repository stores dialog states in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a dialog repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertParams carries one message's contribution to the dialog state.
type UpsertParams struct {
	InstanceID  string
	Contact     string
	DisplayName *string
	DirectionID *uuid.UUID
	// CreativeID identifies the ad behind a paid attribution. A paid message
	// carrying a creative different from the stored one is a fresh ad click
	// and restarts the funnel; repeats of the stored creative accumulate.
	CreativeID *uuid.UUID
	// PaidAttribution marks the message as resolved through ad metadata.
	PaidAttribution bool
	IsInbound       bool
	Timestamp       time.Time
}

const dialogColumns = `
	instance_id, contact_address, first_message_at, last_message_at, display_name,
	direction_id, last_creative_id, paid_attributed, ad_message_count, total_inbound_count,
	interest_dispatched, qualified_dispatched, scheduled_dispatched,
	bot_paused, bot_resume_at, bot_last_sent_at`

// Upsert performs the atomic read-modify-write for one message:
//   - first contact creates the record with counts seeded from this message;
//   - later contacts advance last_message_at, set the display name only if
//     still null, keep the existing attribution unless a non-null one is
//     supplied, and increment counts per the inbound/paid rules;
//   - a paid message whose creative differs from the stored one is a fresh
//     ad click: the dispatched flags reset and the ad count rewinds to 1,
//     restarting the funnel for the new campaign touch. Repeated messages
//     for the stored creative accumulate instead.
//
// The statement relies on the row lock Postgres takes for the conflicting
// row, so two concurrent deliveries for one contact cannot lose updates.
// The new-click test reads dialog_states.last_creative_id, i.e. the value
// before this message's write.
func (r *Repository) Upsert(ctx context.Context, p UpsertParams) (domain.DialogState, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO dialog_states (
			instance_id, contact_address, first_message_at, last_message_at,
			display_name, direction_id, last_creative_id, paid_attributed,
			ad_message_count, total_inbound_count
		) VALUES (
			$1, $2, $3, $3, $4, $5, $6, $7,
			CASE WHEN $8 AND $7 THEN 1 ELSE 0 END,
			CASE WHEN $8 THEN 1 ELSE 0 END
		)
		ON CONFLICT (instance_id, contact_address) DO UPDATE SET
			last_message_at = GREATEST(dialog_states.last_message_at, EXCLUDED.last_message_at),
			display_name     = COALESCE(dialog_states.display_name, EXCLUDED.display_name),
			direction_id     = COALESCE(EXCLUDED.direction_id, dialog_states.direction_id),
			last_creative_id = COALESCE(EXCLUDED.last_creative_id, dialog_states.last_creative_id),
			paid_attributed  = dialog_states.paid_attributed OR EXCLUDED.paid_attributed,
			ad_message_count = CASE
				WHEN $7 AND $6::uuid IS NOT NULL AND dialog_states.last_creative_id IS DISTINCT FROM $6::uuid THEN 1
				WHEN $8 AND dialog_states.paid_attributed THEN dialog_states.ad_message_count + 1
				ELSE dialog_states.ad_message_count
			END,
			total_inbound_count = dialog_states.total_inbound_count + CASE WHEN $8 THEN 1 ELSE 0 END,
			interest_dispatched = CASE
				WHEN $7 AND $6::uuid IS NOT NULL AND dialog_states.last_creative_id IS DISTINCT FROM $6::uuid THEN FALSE
				ELSE dialog_states.interest_dispatched
			END,
			qualified_dispatched = CASE
				WHEN $7 AND $6::uuid IS NOT NULL AND dialog_states.last_creative_id IS DISTINCT FROM $6::uuid THEN FALSE
				ELSE dialog_states.qualified_dispatched
			END,
			scheduled_dispatched = CASE
				WHEN $7 AND $6::uuid IS NOT NULL AND dialog_states.last_creative_id IS DISTINCT FROM $6::uuid THEN FALSE
				ELSE dialog_states.scheduled_dispatched
			END,
			updated_at = now()
		RETURNING`+dialogColumns,
		p.InstanceID, p.Contact, p.Timestamp, p.DisplayName, p.DirectionID,
		p.CreativeID, p.PaidAttribution, p.IsInbound,
	)

	return scanState(row)
}

// Get returns the dialog state for a contact.
func (r *Repository) Get(ctx context.Context, instanceID, contact string) (domain.DialogState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+dialogColumns+`
		FROM dialog_states
		WHERE instance_id = $1 AND contact_address = $2
	`, instanceID, contact)

	state, err := scanState(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DialogState{}, ErrNotFound
	}
	return state, err
}

// LastMessageAt returns the last recorded message time for a contact, or nil
// when the contact has never been seen.
func (r *Repository) LastMessageAt(ctx context.Context, instanceID, contact string) (*time.Time, error) {
	var last time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT last_message_at FROM dialog_states
		WHERE instance_id = $1 AND contact_address = $2
	`, instanceID, contact).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

// levelColumns maps funnel levels to their dispatched-flag columns. Keeping
// the map here is what allows ClaimLevel to interpolate a column name safely.
var levelColumns = map[domain.FunnelLevel]string{
	domain.LevelInterest:  "interest_dispatched",
	domain.LevelQualified: "qualified_dispatched",
	domain.LevelScheduled: "scheduled_dispatched",
}

// ClaimLevel atomically sets the dispatched flag for a funnel level and
// reports whether this caller won the claim. A false result means another
// delivery already dispatched (or is dispatching) the level.
func (r *Repository) ClaimLevel(ctx context.Context, instanceID, contact string, level domain.FunnelLevel) (bool, error) {
	column, ok := levelColumns[level]
	if !ok {
		return false, fmt.Errorf("unknown funnel level %q", level)
	}

	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE dialog_states
		SET %s = TRUE, updated_at = now()
		WHERE instance_id = $1 AND contact_address = $2 AND %s = FALSE
	`, column, column), instanceID, contact)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// ReleaseLevel clears a previously claimed dispatched flag after a failed
// send, so the still-true count condition naturally retries later.
func (r *Repository) ReleaseLevel(ctx context.Context, instanceID, contact string, level domain.FunnelLevel) error {
	column, ok := levelColumns[level]
	if !ok {
		return fmt.Errorf("unknown funnel level %q", level)
	}

	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE dialog_states
		SET %s = FALSE, updated_at = now()
		WHERE instance_id = $1 AND contact_address = $2
	`, column), instanceID, contact)
	return err
}

// RecordBotSent stores the time the relay last delivered a bot response for
// the contact. The operator-intervention detector compares outbound message
// times against it.
func (r *Repository) RecordBotSent(ctx context.Context, instanceID, contact string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dialog_states
		SET bot_last_sent_at = $3, updated_at = now()
		WHERE instance_id = $1 AND contact_address = $2
	`, instanceID, contact, at)
	return err
}

// PauseBot sets the pause flag unless already paused. Reports whether this
// call performed the pause.
func (r *Repository) PauseBot(ctx context.Context, instanceID, contact string, resumeAt *time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE dialog_states
		SET bot_paused = TRUE, bot_resume_at = $3, updated_at = now()
		WHERE instance_id = $1 AND contact_address = $2 AND bot_paused = FALSE
	`, instanceID, contact, resumeAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ResumeBot clears the pause flag, either on explicit operator action or
// lazily once the auto-resume time has passed.
func (r *Repository) ResumeBot(ctx context.Context, instanceID, contact string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE dialog_states
		SET bot_paused = FALSE, bot_resume_at = NULL, updated_at = now()
		WHERE instance_id = $1 AND contact_address = $2
	`, instanceID, contact)
	return err
}

func scanState(row pgx.Row) (domain.DialogState, error) {
	var s domain.DialogState
	err := row.Scan(
		&s.InstanceID, &s.Contact, &s.FirstMessageAt, &s.LastMessageAt, &s.DisplayName,
		&s.DirectionID, &s.LastCreativeID, &s.PaidAttributed, &s.AdMessageCount, &s.TotalInboundCount,
		&s.InterestDispatched, &s.QualifiedDispatched, &s.ScheduledDispatched,
		&s.BotPaused, &s.BotResumeAt, &s.BotLastSentAt,
	)
	return s, err
}
