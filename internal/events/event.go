// Package events provides the in-process event bus and the domain events
// exchanged between modules.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the base interface all domain events must implement.
type Event interface {
	// EventName returns a unique identifier for the event type.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow ordinary functions to be used as handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus is the interface for publishing and subscribing to domain events.
type Bus interface {
	// Publish sends an event to all registered handlers for that event type.
	// Handlers are executed asynchronously.
	Publish(ctx context.Context, event Event)

	// PublishSync sends an event and waits for all handlers to complete.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for a specific event type.
	// The eventName should match the value returned by Event.EventName().
	Subscribe(eventName string, handler Handler)
}

// =============================================================================
// Domain events
// =============================================================================

// LeadCreated is published when a new lead record is created.
type LeadCreated struct {
	BaseEvent
	LeadID    uuid.UUID
	AccountID uuid.UUID
	Contact   string
	Source    string
}

// EventName returns the event identifier.
func (LeadCreated) EventName() string { return "lead.created" }

// ManualMatchRequired is published when the fallback matcher attributed a
// lead by text similarity and a human needs to confirm the creative.
type ManualMatchRequired struct {
	BaseEvent
	LeadID      uuid.UUID
	AccountID   uuid.UUID
	DirectionID uuid.UUID
	Contact     string
	MessageText string
	Score       float64
}

// EventName returns the event identifier.
func (ManualMatchRequired) EventName() string { return "lead.manual_match_required" }

// FunnelLevelReached is published after a funnel crossing was successfully
// dispatched to the conversion-event collaborator.
type FunnelLevelReached struct {
	BaseEvent
	AccountID  uuid.UUID
	InstanceID string
	Contact    string
	Level      string
}

// EventName returns the event identifier.
func (FunnelLevelReached) EventName() string { return "funnel.level_reached" }

// NotificationOutboxDue is published when a deferred notification outbox
// entry is ready to be delivered.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID
}

// EventName returns the event identifier.
func (NotificationOutboxDue) EventName() string { return "notification.outbox.due" }

// OperatorTakeover is published when an outbound message was classified as
// operator-authored and the contact's bot was paused.
type OperatorTakeover struct {
	BaseEvent
	InstanceID string
	Contact    string
	ResumeAt   *time.Time
}

// EventName returns the event identifier.
func (OperatorTakeover) EventName() string { return "dialog.operator_takeover" }
