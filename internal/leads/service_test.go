package leads

import (
	"context"
	"sync"
	"testing"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	lead    Lead
	created bool
	stages  []string
}

func (f *fakeStore) UpsertFromPipeline(context.Context, UpsertParams) (Lead, bool, error) {
	return f.lead, f.created, nil
}

func (f *fakeStore) GetByContact(context.Context, string, string) (Lead, error) {
	return f.lead, nil
}

func (f *fakeStore) GetByCRMEntity(context.Context, string) (Lead, error) {
	return f.lead, nil
}

func (f *fakeStore) LinkCRMEntity(context.Context, uuid.UUID, string) error { return nil }

func (f *fakeStore) UpdateStage(_ context.Context, _ uuid.UUID, stage string) error {
	f.stages = append(f.stages, stage)
	return nil
}

func (f *fakeStore) SetAttribution(context.Context, uuid.UUID, uuid.UUID, *uuid.UUID, *uuid.UUID, string) (Lead, error) {
	return f.lead, nil
}

func (f *fakeStore) ListByAccount(context.Context, uuid.UUID, string, int, int) ([]Lead, error) {
	return nil, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, e := range b.published {
		out[i] = e.EventName()
	}
	return out
}

func similarityParams(directionID uuid.UUID) UpsertParams {
	return UpsertParams{
		AccountID:  uuid.New(),
		InstanceID: "inst-1",
		Contact:    "79991234567@c.us",
		Attribution: domain.AttributionResult{
			Method:      domain.MethodTextSimilarity,
			DirectionID: &directionID,
			Score:       0.82,
		},
	}
}

func TestRecordFromPipeline_SimilarityMatchOnExistingLeadQueuesReview(t *testing.T) {
	directionID := uuid.New()
	store := &fakeStore{
		lead:    Lead{ID: uuid.New(), AttributionMethod: "text_similarity"},
		created: false,
	}
	svc := NewService(store, &recordingBus{}, logger.New("development"))
	bus := svc.bus.(*recordingBus)

	if _, err := svc.RecordFromPipeline(context.Background(), similarityParams(directionID), "Сколько стоит?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := bus.names()
	if len(names) != 1 || names[0] != (events.ManualMatchRequired{}).EventName() {
		t.Fatalf("re-matched lead must queue a manual review, got %v", names)
	}
}

func TestRecordFromPipeline_CreatedSimilarityLeadQueuesBothEvents(t *testing.T) {
	directionID := uuid.New()
	store := &fakeStore{
		lead:    Lead{ID: uuid.New(), AttributionMethod: "text_similarity"},
		created: true,
	}
	svc := NewService(store, &recordingBus{}, logger.New("development"))
	bus := svc.bus.(*recordingBus)

	if _, err := svc.RecordFromPipeline(context.Background(), similarityParams(directionID), "Сколько стоит?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := bus.names()
	if len(names) != 2 ||
		names[0] != (events.LeadCreated{}).EventName() ||
		names[1] != (events.ManualMatchRequired{}).EventName() {
		t.Fatalf("expected lead created followed by manual review, got %v", names)
	}
}

func TestRecordFromPipeline_AdAttributedLeadNeedsNoReview(t *testing.T) {
	directionID := uuid.New()
	store := &fakeStore{
		// Stored attribution stays ad_metadata: the fallback match must not
		// downgrade it or request a review.
		lead:    Lead{ID: uuid.New(), AttributionMethod: "ad_metadata"},
		created: false,
	}
	svc := NewService(store, &recordingBus{}, logger.New("development"))
	bus := svc.bus.(*recordingBus)

	if _, err := svc.RecordFromPipeline(context.Background(), similarityParams(directionID), "Сколько стоит?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if names := bus.names(); len(names) != 0 {
		t.Fatalf("no events expected, got %v", names)
	}
}
