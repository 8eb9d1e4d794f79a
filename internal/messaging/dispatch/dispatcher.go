package dispatch

import (
	"context"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// DialogStore is the slice of the dialog repository the dispatcher needs.
type DialogStore interface {
	ClaimLevel(ctx context.Context, instanceID, contact string, level domain.FunnelLevel) (bool, error)
	ReleaseLevel(ctx context.Context, instanceID, contact string, level domain.FunnelLevel) error
	RecordBotSent(ctx context.Context, instanceID, contact string, at time.Time) error
}

// InstanceSettings answers per-instance capability questions. Satisfied by
// the channels service.
type InstanceSettings interface {
	BotEnabled(ctx context.Context, instanceID string) (bool, error)
}

// Dispatcher coordinates outbound deliveries to the chatbot relay and the
// conversion endpoint, enforcing the pause state and the at-most-once rule
// for funnel levels.
type Dispatcher struct {
	chatbot    *ChatbotClient
	conversion *ConversionClient
	dialogs    DialogStore
	settings   InstanceSettings
	bus        events.Bus
	policy     Policy
	log        *logger.Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher. Either client may be disabled; the
// corresponding deliveries become no-ops.
func NewDispatcher(
	chatbot *ChatbotClient,
	conversion *ConversionClient,
	dialogs DialogStore,
	settings InstanceSettings,
	bus events.Bus,
	policy Policy,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		chatbot:    chatbot,
		conversion: conversion,
		dialogs:    dialogs,
		settings:   settings,
		bus:        bus,
		policy:     policy,
		log:        log,
		now:        time.Now,
	}
}

// RelayMessage forwards an inbound message to the chatbot when the instance
// has the bot enabled and the contact's bot is not paused. A successful relay
// records the send time for the operator-echo detector. Relay failures are
// reported but must not fail the caller's pipeline.
func (d *Dispatcher) RelayMessage(ctx context.Context, msg domain.InboundMessage, state domain.DialogState, replyAddress string, directionID *uuid.UUID) error {
	if !d.chatbot.Enabled() {
		return nil
	}

	enabled, err := d.settings.BotEnabled(ctx, msg.InstanceID)
	if err != nil {
		return err
	}
	if !enabled || !state.BotActive(d.now()) {
		d.log.Debug("bot inactive, skipping relay", "instance_id", msg.InstanceID, "contact", msg.Sender)
		return nil
	}

	err = d.policy.Do(ctx, func(ctx context.Context) error {
		return d.chatbot.Relay(ctx, msg, replyAddress, directionID)
	})
	if err != nil {
		d.log.DispatchFailure("chatbot", msg.InstanceID, msg.Sender, d.policy.Attempts, err)
		return err
	}

	if err := d.dialogs.RecordBotSent(ctx, msg.InstanceID, msg.Sender, d.now()); err != nil {
		d.log.DatabaseError("record bot sent", err)
	}

	return nil
}

// SendFunnelLevel dispatches one funnel crossing with at-most-once semantics.
// The dispatched flag is claimed before the send; losing the claim means a
// concurrent delivery owns the level and this call does nothing. A failed
// send releases the claim so the still-satisfied funnel condition retries on
// the contact's next message.
func (d *Dispatcher) SendFunnelLevel(ctx context.Context, accountID uuid.UUID, instanceID, contact string, level domain.FunnelLevel, clickID string) error {
	won, err := d.dialogs.ClaimLevel(ctx, instanceID, contact, level)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	if d.conversion.Enabled() {
		err = d.policy.Do(ctx, func(ctx context.Context) error {
			return d.conversion.Report(ctx, ConversionEvent{
				ClickID:    clickID,
				Level:      string(level),
				Contact:    contact,
				InstanceID: instanceID,
				OccurredAt: d.now(),
			})
		})
		if err != nil {
			d.log.DispatchFailure("conversion", instanceID, contact, d.policy.Attempts, err)
			if relErr := d.dialogs.ReleaseLevel(ctx, instanceID, contact, level); relErr != nil {
				d.log.DatabaseError("release funnel level", relErr)
			}
			return err
		}
	}

	d.bus.Publish(ctx, events.FunnelLevelReached{
		BaseEvent:  events.NewBaseEvent(),
		AccountID:  accountID,
		InstanceID: instanceID,
		Contact:    contact,
		Level:      string(level),
	})

	return nil
}
