// Package notification turns domain events into operator-facing emails.
// Deliveries go through a persistent outbox so a crash between event and
// send loses nothing.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/notification/outbox"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const kindManualMatch = "manual_match_email"

// Module delivers notifications. It is event-driven and not HTTP-facing.
type Module struct {
	mailer    *Mailer
	outbox    *outbox.Repository
	schedules scheduler.OutboxScheduler
	log       *logger.Logger
}

// New creates the notification module. mailer may be nil (mail disabled) and
// schedules may be nil (no Redis); the outbox sweep then carries deliveries.
func New(mailer *Mailer, outboxRepo *outbox.Repository, schedules scheduler.OutboxScheduler, log *logger.Logger) *Module {
	return &Module{
		mailer:    mailer,
		outbox:    outboxRepo,
		schedules: schedules,
		log:       log,
	}
}

// RegisterHandlers subscribes the module to the events it acts on.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ManualMatchRequired{}.EventName(), events.HandlerFunc(m.onManualMatchRequired))
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), events.HandlerFunc(m.onOutboxDue))
	bus.Subscribe(events.OperatorTakeover{}.EventName(), events.HandlerFunc(m.onOperatorTakeover))
}

func (m *Module) onManualMatchRequired(ctx context.Context, event events.Event) error {
	e, ok := event.(events.ManualMatchRequired)
	if !ok {
		return nil
	}
	if !m.mailer.Enabled() {
		return nil
	}

	id, err := m.outbox.Insert(ctx, outbox.InsertParams{
		AccountID: e.AccountID,
		Kind:      kindManualMatch,
		Payload: ManualMatchData{
			LeadID:      e.LeadID.String(),
			Contact:     e.Contact,
			MessageText: e.MessageText,
			Score:       e.Score,
		},
		Status: outbox.StatusEnqueued,
	})
	if err != nil {
		return err
	}

	if m.schedules != nil {
		return m.schedules.ScheduleOutboxDispatch(ctx, scheduler.NotificationOutboxDuePayload{
			OutboxID: id.String(),
		}, time.Now())
	}

	// No queue available; deliver inline.
	return m.dispatch(ctx, id)
}

func (m *Module) onOutboxDue(ctx context.Context, event events.Event) error {
	e, ok := event.(events.NotificationOutboxDue)
	if !ok {
		return nil
	}
	return m.dispatch(ctx, e.OutboxID)
}

func (m *Module) onOperatorTakeover(ctx context.Context, event events.Event) error {
	e, ok := event.(events.OperatorTakeover)
	if !ok {
		return nil
	}
	m.log.Info("operator takeover",
		"instance_id", e.InstanceID, "contact", e.Contact, "resume_at", e.ResumeAt)
	return nil
}

func (m *Module) dispatch(ctx context.Context, id uuid.UUID) error {
	rec, err := m.outbox.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded {
		return nil
	}

	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}

	if err := m.deliver(ctx, rec); err != nil {
		m.log.Error("notification delivery failed", "error", err, "outbox_id", rec.ID, "kind", rec.Kind)
		msg := err.Error()
		if rec.Attempts >= 3 {
			return m.outbox.MarkFailed(ctx, rec.ID, msg)
		}
		return m.outbox.MarkPending(ctx, rec.ID, &msg)
	}

	return m.outbox.MarkSucceeded(ctx, rec.ID)
}

func (m *Module) deliver(ctx context.Context, rec outbox.Record) error {
	switch rec.Kind {
	case kindManualMatch:
		var data ManualMatchData
		if err := json.Unmarshal(rec.Payload, &data); err != nil {
			return err
		}
		return m.mailer.SendManualMatch(ctx, data)
	default:
		m.log.Warn("unknown notification kind", "kind", rec.Kind, "outbox_id", rec.ID)
		return nil
	}
}

// SweepPending re-dispatches due pending records. Called periodically so
// deliveries that failed transiently, or were written while the queue was
// down, still go out.
func (m *Module) SweepPending(ctx context.Context) error {
	records, err := m.outbox.ClaimPending(ctx, 50)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := m.dispatch(ctx, rec.ID); err != nil {
			m.log.Error("outbox sweep dispatch failed", "error", err, "outbox_id", rec.ID)
		}
	}
	return nil
}
