package transport

import (
	"testing"
	"time"

	"leadflow_backend/internal/messaging/domain"
)

func TestExtractReferral_RootLocationWinsOverContext(t *testing.T) {
	raw := RawMessage{
		Referral: &RawReferral{SourceID: "ad-1", ClickID: "click-1"},
		Context:  &MessageContext{Referral: &RawReferral{SourceID: "ad-2"}},
	}

	ref := ExtractReferral(raw)
	if ref == nil || ref.SourceID != "ad-1" || ref.ClickID != "click-1" {
		t.Fatalf("expected root referral ad-1, got %+v", ref)
	}
}

func TestExtractReferral_ContextFallback(t *testing.T) {
	raw := RawMessage{
		Context: &MessageContext{Referral: &RawReferral{SourceID: "ad-2", SourceType: "ad"}},
	}

	ref := ExtractReferral(raw)
	if ref == nil || ref.SourceID != "ad-2" {
		t.Fatalf("expected context referral ad-2, got %+v", ref)
	}
}

func TestExtractReferral_LegacyExternalAdReply(t *testing.T) {
	raw := RawMessage{
		Extended: &ExtendedContent{
			ContextInfo: &ContextInfo{
				ExternalAdReply: &ExternalAdReply{SourceID: "ad-3", ClickID: "clid-3"},
			},
		},
	}

	ref := ExtractReferral(raw)
	if ref == nil || ref.SourceID != "ad-3" || ref.ClickID != "clid-3" {
		t.Fatalf("expected legacy referral ad-3, got %+v", ref)
	}
}

func TestExtractReferral_EmptySourceIDIgnored(t *testing.T) {
	raw := RawMessage{
		Referral: &RawReferral{SourceID: ""},
		Context:  &MessageContext{Referral: &RawReferral{SourceID: "ad-4"}},
	}

	ref := ExtractReferral(raw)
	if ref == nil || ref.SourceID != "ad-4" {
		t.Fatalf("expected fallthrough past empty source id, got %+v", ref)
	}
}

func TestExtractReferral_NoneFound(t *testing.T) {
	if ref := ExtractReferral(RawMessage{}); ref != nil {
		t.Fatalf("expected nil referral, got %+v", ref)
	}
}

func TestNormalizeInbound_TextMessage(t *testing.T) {
	fallback := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	raw := RawMessage{
		ID:         "wamid.1",
		Type:       "chat",
		ChatID:     "79991234567@c.us",
		Sender:     "79991234567@c.us",
		SenderName: " Анна ",
		Timestamp:  1748772000,
		Text:       &TextBody{Body: "  Здравствуйте  "},
	}

	msg, err := NormalizeInbound("inst-1", raw, fallback)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != domain.KindText {
		t.Fatalf("expected text kind, got %s", msg.Kind)
	}
	if msg.Text != "Здравствуйте" {
		t.Fatalf("expected trimmed text, got %q", msg.Text)
	}
	if msg.SenderName != "Анна" {
		t.Fatalf("expected trimmed sender name, got %q", msg.SenderName)
	}
	if msg.GroupChat {
		t.Fatal("direct chat must not be flagged as group")
	}
	if msg.ReceivedAt.Unix() != 1748772000 {
		t.Fatalf("expected provider timestamp, got %v", msg.ReceivedAt)
	}
}

func TestNormalizeInbound_GroupChatFlag(t *testing.T) {
	raw := RawMessage{
		ID:     "wamid.2",
		Type:   "text",
		ChatID: "120363000000000000@g.us",
		Sender: "79991234567@c.us",
		Text:   &TextBody{Body: "привет"},
	}

	msg, err := NormalizeInbound("inst-1", raw, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.GroupChat {
		t.Fatal("group chat id must set the group flag")
	}
}

func TestNormalizeInbound_MissingSenderRejected(t *testing.T) {
	if _, err := NormalizeInbound("inst-1", RawMessage{ID: "x", Type: "text"}, time.Now()); err == nil {
		t.Fatal("expected error for message without sender")
	}
}

func TestNormalizeInbound_MediaCaptionUsedAsText(t *testing.T) {
	raw := RawMessage{
		ID:     "wamid.3",
		Type:   "image",
		Sender: "79991234567@c.us",
		Media:  &MediaBody{URL: "https://cdn.example/img.jpg", Caption: "смотрите"},
	}

	msg, err := NormalizeInbound("inst-1", raw, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != domain.KindImage {
		t.Fatalf("expected image kind, got %s", msg.Kind)
	}
	if msg.Text != "смотрите" {
		t.Fatalf("expected caption as text, got %q", msg.Text)
	}
	if msg.MediaURL == "" {
		t.Fatal("expected media url to be carried")
	}
}

func TestNormalizeOutbound(t *testing.T) {
	raw := RawMessage{
		FromMe: true,
		ChatID: "79991234567@c.us",
		Text:   &TextBody{Body: "Добрый день!"},
	}

	msg, err := NormalizeOutbound("inst-1", raw, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Contact != "79991234567@c.us" {
		t.Fatalf("unexpected contact %q", msg.Contact)
	}
	if msg.Text != "Добрый день!" {
		t.Fatalf("unexpected text %q", msg.Text)
	}
}
