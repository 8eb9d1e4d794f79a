// Backfills the leads phone column from the contact address. Leads created
// before the pipeline started normalizing reply addresses have no phone;
// the provider contact address usually carries the number.
package main

import (
	"context"
	"strings"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type leadContact struct {
	id        uuid.UUID
	accountID uuid.UUID
	contact   string
	createdAt time.Time
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting lead phone backfill")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	const batchSize = 100

	var processed int
	var updated int

	cursorTime := time.Time{}
	cursorID := uuid.Nil

	for {
		leads, err := listLeads(ctx, pool, batchSize, cursorTime, cursorID)
		if err != nil {
			log.Error("failed to list leads", "error", err)
			break
		}
		if len(leads) == 0 {
			log.Info("no leads left to backfill", "processed", processed, "updated", updated)
			break
		}

		for _, lead := range leads {
			processed++
			cursorTime = lead.createdAt
			cursorID = lead.id

			normalized := normalizeContact(lead.contact)
			if normalized == "" {
				log.Info("skipping lead without parseable number", "leadId", lead.id, "accountId", lead.accountID)
				continue
			}

			tag, err := pool.Exec(ctx, `
				UPDATE leads SET phone = $3, updated_at = now()
				WHERE id = $1 AND account_id = $2 AND phone IS NULL
			`, lead.id, lead.accountID, normalized)
			if err != nil {
				log.Error("failed to update lead phone", "leadId", lead.id, "accountId", lead.accountID, "error", err)
				continue
			}
			if tag.RowsAffected() == 1 {
				updated++
			}
		}
	}

	log.Info("lead phone backfill completed", "processed", processed, "updated", updated)
}

func listLeads(ctx context.Context, pool *pgxpool.Pool, limit int, cursorTime time.Time, cursorID uuid.UUID) ([]leadContact, error) {
	rows, err := pool.Query(ctx, `
    SELECT id, account_id, contact_address, created_at
    FROM leads
    WHERE phone IS NULL
      AND (created_at > $1 OR (created_at = $1 AND id > $2))
    ORDER BY created_at ASC, id ASC
    LIMIT $3
  `, cursorTime, cursorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]leadContact, 0)
	for rows.Next() {
		var lead leadContact
		if err := rows.Scan(&lead.id, &lead.accountID, &lead.contact, &lead.createdAt); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return leads, nil
}

// normalizeContact extracts an E.164 number from a provider contact address
// like "79991234567@c.us". Returns "" when the address carries no valid
// number (group chats, alphanumeric ids).
func normalizeContact(contact string) string {
	local, _, _ := strings.Cut(contact, "@")
	digits := phone.Digits(local)
	if digits == "" {
		return ""
	}

	normalized := phone.NormalizeE164("+" + digits)
	if !strings.HasPrefix(normalized, "+") {
		return ""
	}
	return normalized
}
