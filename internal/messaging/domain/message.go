// Package domain defines the core entities of the inbound-message pipeline:
// the normalized message envelope, attribution results, per-contact dialog
// state and the funnel evaluator.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind classifies the payload of an inbound message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindAudio    MessageKind = "audio"
	KindImage    MessageKind = "image"
	KindDocument MessageKind = "document"
	KindOther    MessageKind = "other"
)

// AdReferral carries the advertisement metadata attached to a message by the
// channel when the conversation started from an ad click.
type AdReferral struct {
	SourceID   string `json:"sourceId"`
	SourceType string `json:"sourceType,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`
	ClickID    string `json:"clickId,omitempty"`
}

// InboundMessage is the normalized envelope for one webhook message.
// It is immutable once constructed; its lifetime is one delivery.
type InboundMessage struct {
	InstanceID        string      `json:"instanceId"`
	Sender            string      `json:"sender"`
	SenderAlias       string      `json:"senderAlias,omitempty"`
	SenderName        string      `json:"senderName,omitempty"`
	Kind              MessageKind `json:"kind"`
	Text              string      `json:"text,omitempty"`
	ProviderMessageID string      `json:"providerMessageId,omitempty"`
	Referral          *AdReferral `json:"referral,omitempty"`
	GroupChat         bool        `json:"groupChat,omitempty"`
	MediaURL          string      `json:"mediaUrl,omitempty"`
	ReceivedAt        time.Time   `json:"receivedAt"`
}

// OutboundMessage is the normalized envelope for an operator- or bot-authored
// message observed on the same channel.
type OutboundMessage struct {
	InstanceID string    `json:"instanceId"`
	Contact    string    `json:"contact"`
	Text       string    `json:"text,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

// ResolutionMethod names how an attribution was resolved.
type ResolutionMethod string

const (
	MethodAdMetadata     ResolutionMethod = "ad_metadata"
	MethodTextSimilarity ResolutionMethod = "text_similarity"
	MethodUnresolved     ResolutionMethod = "unresolved"
)

// AttributionResult is the resolved outcome for one InboundMessage.
// Produced once per message, never mutated.
type AttributionResult struct {
	CreativeID        *uuid.UUID
	DirectionID       *uuid.UUID
	ChannelIdentityID *uuid.UUID
	Method            ResolutionMethod
	Score             float64
	ClickID           string
}

// Paid reports whether the message is attributed to a paid advertisement.
func (r AttributionResult) Paid() bool {
	return r.Method == MethodAdMetadata
}

// Resolved reports whether any attribution was found.
func (r AttributionResult) Resolved() bool {
	return r.Method != MethodUnresolved
}
