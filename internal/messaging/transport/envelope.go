// Package transport defines the wire format of the channel webhook and the
// normalization of raw provider messages into the pipeline's envelope.
package transport

import (
	"strings"
	"time"

	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/apperr"
)

// WebhookEnvelope is the body of one channel webhook delivery. A single
// delivery may batch several messages; each is admitted independently.
type WebhookEnvelope struct {
	InstanceID string       `json:"instanceId"`
	Messages   []RawMessage `json:"messages" validate:"required"`
}

// RawMessage is one provider message as delivered on the wire. Optional
// nested blocks vary with the channel-library version; see ExtractReferral
// for how the advertisement metadata is located.
type RawMessage struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	FromMe      bool             `json:"fromMe"`
	ChatID      string           `json:"chatId"`
	Sender      string           `json:"sender"`
	SenderName  string           `json:"senderName"`
	RealAddress string           `json:"realAddress,omitempty"`
	Timestamp   int64            `json:"timestamp"`
	Text        *TextBody        `json:"text,omitempty"`
	Media       *MediaBody       `json:"media,omitempty"`
	Referral    *RawReferral     `json:"referral,omitempty"`
	Context     *MessageContext  `json:"context,omitempty"`
	Extended    *ExtendedContent `json:"extendedContent,omitempty"`
}

// TextBody holds the message text.
type TextBody struct {
	Body string `json:"body"`
}

// MediaBody describes a non-text payload.
type MediaBody struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// RawReferral is the on-wire advertisement metadata block.
type RawReferral struct {
	SourceID   string `json:"sourceId"`
	SourceType string `json:"sourceType,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`
	ClickID    string `json:"clickId,omitempty"`
}

// MessageContext is the reply/quote context some library versions attach the
// referral to instead of the message root.
type MessageContext struct {
	Referral *RawReferral `json:"referral,omitempty"`
}

// ExtendedContent is the oldest payload shape, where ad metadata arrives as
// an "external ad reply" inside the context info block.
type ExtendedContent struct {
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// ContextInfo wraps the external ad reply of extended content messages.
type ContextInfo struct {
	ExternalAdReply *ExternalAdReply `json:"externalAdReply,omitempty"`
}

// ExternalAdReply is the legacy ad-metadata shape.
type ExternalAdReply struct {
	SourceID   string `json:"sourceId"`
	SourceType string `json:"sourceType,omitempty"`
	SourceURL  string `json:"sourceUrl,omitempty"`
	ClickID    string `json:"ctwaClid,omitempty"`
}

// ExtractReferral locates the advertisement metadata of a raw message. The
// same referral can appear in one of three places depending on the
// channel-library version; the lookup order is fixed and documented here
// once so call sites never branch on payload shape themselves:
//
//  1. message.referral            (current library versions)
//  2. message.context.referral    (reply-context variants)
//  3. message.extendedContent.contextInfo.externalAdReply (legacy)
//
// Returns nil when no location carries a source id.
func ExtractReferral(raw RawMessage) *domain.AdReferral {
	if raw.Referral != nil && raw.Referral.SourceID != "" {
		return &domain.AdReferral{
			SourceID:   raw.Referral.SourceID,
			SourceType: raw.Referral.SourceType,
			SourceURL:  raw.Referral.SourceURL,
			ClickID:    raw.Referral.ClickID,
		}
	}

	if raw.Context != nil && raw.Context.Referral != nil && raw.Context.Referral.SourceID != "" {
		return &domain.AdReferral{
			SourceID:   raw.Context.Referral.SourceID,
			SourceType: raw.Context.Referral.SourceType,
			SourceURL:  raw.Context.Referral.SourceURL,
			ClickID:    raw.Context.Referral.ClickID,
		}
	}

	if raw.Extended != nil && raw.Extended.ContextInfo != nil &&
		raw.Extended.ContextInfo.ExternalAdReply != nil &&
		raw.Extended.ContextInfo.ExternalAdReply.SourceID != "" {
		reply := raw.Extended.ContextInfo.ExternalAdReply
		return &domain.AdReferral{
			SourceID:   reply.SourceID,
			SourceType: reply.SourceType,
			SourceURL:  reply.SourceURL,
			ClickID:    reply.ClickID,
		}
	}

	return nil
}

// groupChatSuffix marks group/broadcast chat identifiers on this channel.
const groupChatSuffix = "@g.us"

// NormalizeInbound converts a raw provider message into the pipeline
// envelope. Malformed messages (no sender) are rejected; the caller skips
// them and continues with the rest of the delivery.
func NormalizeInbound(instanceID string, raw RawMessage, receivedAt time.Time) (domain.InboundMessage, error) {
	if raw.FromMe {
		return domain.InboundMessage{}, apperr.BadRequest("outbound message in inbound normalization")
	}
	if strings.TrimSpace(raw.Sender) == "" {
		return domain.InboundMessage{}, apperr.BadRequest("message has no sender")
	}

	msg := domain.InboundMessage{
		InstanceID:        instanceID,
		Sender:            raw.Sender,
		SenderAlias:       raw.RealAddress,
		SenderName:        strings.TrimSpace(raw.SenderName),
		Kind:              normalizeKind(raw.Type),
		ProviderMessageID: raw.ID,
		Referral:          ExtractReferral(raw),
		GroupChat:         strings.HasSuffix(raw.ChatID, groupChatSuffix),
		ReceivedAt:        messageTime(raw.Timestamp, receivedAt),
	}

	if raw.Text != nil {
		msg.Text = strings.TrimSpace(raw.Text.Body)
	}
	if raw.Media != nil {
		msg.MediaURL = raw.Media.URL
		if msg.Text == "" {
			msg.Text = strings.TrimSpace(raw.Media.Caption)
		}
	}

	return msg, nil
}

// NormalizeOutbound converts a raw operator/bot-authored message.
func NormalizeOutbound(instanceID string, raw RawMessage, receivedAt time.Time) (domain.OutboundMessage, error) {
	contact := raw.ChatID
	if contact == "" {
		contact = raw.Sender
	}
	if strings.TrimSpace(contact) == "" {
		return domain.OutboundMessage{}, apperr.BadRequest("outbound message has no contact")
	}

	msg := domain.OutboundMessage{
		InstanceID: instanceID,
		Contact:    contact,
		SentAt:     messageTime(raw.Timestamp, receivedAt),
	}
	if raw.Text != nil {
		msg.Text = strings.TrimSpace(raw.Text.Body)
	}

	return msg, nil
}

func normalizeKind(rawType string) domain.MessageKind {
	switch strings.ToLower(strings.TrimSpace(rawType)) {
	case "text", "chat":
		return domain.KindText
	case "audio", "voice", "ptt":
		return domain.KindAudio
	case "image", "sticker":
		return domain.KindImage
	case "document", "file":
		return domain.KindDocument
	default:
		return domain.KindOther
	}
}

func messageTime(unixSeconds int64, fallback time.Time) time.Time {
	if unixSeconds <= 0 {
		return fallback
	}
	return time.Unix(unixSeconds, 0).UTC()
}
