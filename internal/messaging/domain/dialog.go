package domain

import (
	"time"

	"github.com/google/uuid"
)

// DialogState is the pipeline's per-(instance, contact) conversational state.
// Created on first contact, updated on every message, never deleted.
// Concurrent updates are serialized at the storage layer; a DialogState value
// is always a snapshot taken after one atomic read-modify-write.
type DialogState struct {
	InstanceID          string
	Contact             string
	FirstMessageAt      time.Time
	LastMessageAt       time.Time
	DisplayName         *string
	DirectionID         *uuid.UUID
	LastCreativeID      *uuid.UUID
	PaidAttributed      bool
	AdMessageCount      int
	TotalInboundCount   int
	InterestDispatched  bool
	QualifiedDispatched bool
	ScheduledDispatched bool
	BotPaused           bool
	BotResumeAt         *time.Time
	BotLastSentAt       *time.Time
}

// FunnelLevel names a stage of the conversion funnel.
type FunnelLevel string

const (
	LevelInterest  FunnelLevel = "interest"
	LevelQualified FunnelLevel = "qualified"
	LevelScheduled FunnelLevel = "scheduled"
)

// FunnelLevels lists all levels in funnel order.
var FunnelLevels = []FunnelLevel{LevelInterest, LevelQualified, LevelScheduled}

// Dispatched reports whether the given level was already sent for this contact.
func (s DialogState) Dispatched(level FunnelLevel) bool {
	switch level {
	case LevelInterest:
		return s.InterestDispatched
	case LevelQualified:
		return s.QualifiedDispatched
	case LevelScheduled:
		return s.ScheduledDispatched
	}
	return false
}

// BotActive reports whether automated responses are allowed for this contact
// at the given moment. A pause with an elapsed auto-resume time no longer
// blocks the bot.
func (s DialogState) BotActive(now time.Time) bool {
	if !s.BotPaused {
		return true
	}
	return s.BotResumeAt != nil && !now.Before(*s.BotResumeAt)
}
