package attribution

import (
	"context"
	"testing"
	"time"

	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeCreativeSource struct {
	creatives  map[string]*Creative
	directions []Direction
}

func (f *fakeCreativeSource) CreativeByPlatformID(_ context.Context, _ uuid.UUID, platformAdID string) (*Creative, error) {
	return f.creatives[platformAdID], nil
}

func (f *fakeCreativeSource) ActiveDirections(_ context.Context, _ uuid.UUID) ([]Direction, error) {
	return f.directions, nil
}

type fakeHistory struct {
	last *time.Time
}

func (f *fakeHistory) LastMessageAt(_ context.Context, _, _ string) (*time.Time, error) {
	return f.last, nil
}

func newTestResolver(creatives *fakeCreativeSource, history *fakeHistory) *Resolver {
	return NewResolver(creatives, history, 0.70, 7*24*time.Hour, logger.New("development"))
}

func TestResolve_AdMetadataWinsOverText(t *testing.T) {
	directionID := uuid.New()
	creativeID := uuid.New()
	source := &fakeCreativeSource{
		creatives: map[string]*Creative{
			"ad-77": {ID: creativeID, PlatformAdID: "ad-77", DirectionID: &directionID},
		},
		// A direction whose expected question matches the text perfectly:
		// it must never be consulted when ad metadata is present.
		directions: []Direction{{ID: uuid.New(), ExpectedFirstQuestion: "сколько стоит"}},
	}
	resolver := newTestResolver(source, &fakeHistory{})

	msg := domain.InboundMessage{
		InstanceID: "inst-1",
		Sender:     "79991234567@c.us",
		Text:       "сколько стоит",
		Referral:   &domain.AdReferral{SourceID: "ad-77", SourceType: "ad", ClickID: "clid-9"},
	}

	result, err := resolver.Resolve(context.Background(), uuid.New(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.MethodAdMetadata {
		t.Fatalf("expected ad_metadata, got %s", result.Method)
	}
	if result.CreativeID == nil || *result.CreativeID != creativeID {
		t.Fatalf("expected creative %s, got %v", creativeID, result.CreativeID)
	}
	if result.DirectionID == nil || *result.DirectionID != directionID {
		t.Fatalf("expected direction %s, got %v", directionID, result.DirectionID)
	}
	if result.ClickID != "clid-9" {
		t.Fatalf("expected click id to propagate, got %q", result.ClickID)
	}
}

func TestResolve_UnknownCreativeKeepsPaidAttribution(t *testing.T) {
	resolver := newTestResolver(&fakeCreativeSource{}, &fakeHistory{})

	msg := domain.InboundMessage{
		Sender:   "79991234567@c.us",
		Referral: &domain.AdReferral{SourceID: "ad-unknown", ClickID: "clid-1"},
	}

	result, err := resolver.Resolve(context.Background(), uuid.New(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.MethodAdMetadata {
		t.Fatalf("expected ad_metadata, got %s", result.Method)
	}
	if result.CreativeID != nil {
		t.Fatal("unknown creative must leave the creative link null")
	}
	if result.ClickID != "clid-1" {
		t.Fatalf("expected click id to survive, got %q", result.ClickID)
	}
}

func TestResolve_NonPaidSourceTypeFallsThrough(t *testing.T) {
	directionID := uuid.New()
	source := &fakeCreativeSource{
		creatives: map[string]*Creative{
			"post-1": {ID: uuid.New(), PlatformAdID: "post-1"},
		},
		directions: []Direction{{ID: directionID, ExpectedFirstQuestion: "Здравствуйте, сколько стоит?"}},
	}
	resolver := newTestResolver(source, &fakeHistory{})

	msg := domain.InboundMessage{
		Sender:   "79991234567@c.us",
		Text:     "Здравствуйте, сколько стоит?",
		Referral: &domain.AdReferral{SourceID: "post-1", SourceType: "organic_post"},
	}

	result, err := resolver.Resolve(context.Background(), uuid.New(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.MethodTextSimilarity {
		t.Fatalf("expected text_similarity for non-paid source type, got %s", result.Method)
	}
	if result.DirectionID == nil || *result.DirectionID != directionID {
		t.Fatalf("expected matched direction, got %v", result.DirectionID)
	}
}

func TestResolve_SimilarityAboveThreshold(t *testing.T) {
	directionID := uuid.New()
	source := &fakeCreativeSource{
		directions: []Direction{
			{ID: uuid.New(), ExpectedFirstQuestion: "Хочу записаться на стрижку"},
			{ID: directionID, ExpectedFirstQuestion: "Здравствуйте! Сколько это стоит?"},
		},
	}
	resolver := newTestResolver(source, &fakeHistory{})

	msg := domain.InboundMessage{
		Sender: "79991234567@c.us",
		Text:   "Здравствуйте, сколько стоит?",
	}

	result, err := resolver.Resolve(context.Background(), uuid.New(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.MethodTextSimilarity {
		t.Fatalf("expected text_similarity, got %s", result.Method)
	}
	if result.DirectionID == nil || *result.DirectionID != directionID {
		t.Fatalf("expected best-scoring direction, got %v", result.DirectionID)
	}
	if result.Score < 0.70 {
		t.Fatalf("expected score at or above threshold, got %f", result.Score)
	}
	if result.Paid() {
		t.Fatal("similarity match must not count as paid attribution")
	}
}

func TestResolve_NoMatchAboveThreshold(t *testing.T) {
	source := &fakeCreativeSource{
		directions: []Direction{{ID: uuid.New(), ExpectedFirstQuestion: "Хочу записаться на стрижку"}},
	}
	resolver := newTestResolver(source, &fakeHistory{})

	msg := domain.InboundMessage{
		Sender: "79991234567@c.us",
		Text:   "qwerty asdf zxcv",
	}

	result, err := resolver.Resolve(context.Background(), uuid.New(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.MethodUnresolved {
		t.Fatalf("expected unresolved, got %s", result.Method)
	}
}

func TestResolve_SilenceWindowGatesFallback(t *testing.T) {
	source := &fakeCreativeSource{
		directions: []Direction{{ID: uuid.New(), ExpectedFirstQuestion: "Сколько стоит?"}},
	}

	recent := time.Now().Add(-24 * time.Hour)
	resolver := newTestResolver(source, &fakeHistory{last: &recent})

	msg := domain.InboundMessage{
		Sender: "79991234567@c.us",
		Text:   "Сколько стоит?",
	}

	result, err := resolver.Resolve(context.Background(), uuid.New(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.MethodUnresolved {
		t.Fatalf("contact inside silence window must stay unresolved, got %s", result.Method)
	}

	old := time.Now().Add(-8 * 24 * time.Hour)
	resolver = newTestResolver(source, &fakeHistory{last: &old})

	result, err = resolver.Resolve(context.Background(), uuid.New(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.MethodTextSimilarity {
		t.Fatalf("contact past silence window must be eligible, got %s", result.Method)
	}
}

func TestResolve_GroupChatNeverMatched(t *testing.T) {
	source := &fakeCreativeSource{
		directions: []Direction{{ID: uuid.New(), ExpectedFirstQuestion: "Сколько стоит?"}},
	}
	resolver := newTestResolver(source, &fakeHistory{})

	msg := domain.InboundMessage{
		Sender:    "79991234567@c.us",
		Text:      "Сколько стоит?",
		GroupChat: true,
	}

	result, err := resolver.Resolve(context.Background(), uuid.New(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Method != domain.MethodUnresolved {
		t.Fatalf("group chat must stay unresolved, got %s", result.Method)
	}
}

func TestResolveReplyAddress(t *testing.T) {
	withAlias := domain.InboundMessage{
		Sender:      "1234567890123@lid",
		SenderAlias: "+7 999 123-45-67",
	}
	if got := ResolveReplyAddress(withAlias); got != "+79991234567" {
		t.Fatalf("expected alias to win and normalize, got %q", got)
	}

	plain := domain.InboundMessage{Sender: "79991234567@c.us"}
	if got := ResolveReplyAddress(plain); got != "+79991234567" {
		t.Fatalf("expected suffix stripped and normalized, got %q", got)
	}
}
