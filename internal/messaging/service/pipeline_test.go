package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/errtrack"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/messaging/dialog"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeAccounts struct{ id uuid.UUID }

func (f *fakeAccounts) AccountID(context.Context, string) (uuid.UUID, error) {
	return f.id, nil
}

type fakeResolver struct{ result domain.AttributionResult }

func (f *fakeResolver) Resolve(context.Context, uuid.UUID, domain.InboundMessage) (domain.AttributionResult, error) {
	return f.result, nil
}

// fakeDialogs applies the same transition rules as the dialog repository's
// conditional upsert, so multi-message tests exercise count accumulation,
// the new-click rewind and name immutability against real semantics.
type fakeDialogs struct {
	mu      sync.Mutex
	state   domain.DialogState
	exists  bool
	params  []dialog.UpsertParams
	resumed int
}

func (f *fakeDialogs) Upsert(_ context.Context, p dialog.UpsertParams) (domain.DialogState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)

	s := &f.state
	if !f.exists {
		*s = domain.DialogState{
			InstanceID:     p.InstanceID,
			Contact:        p.Contact,
			FirstMessageAt: p.Timestamp,
			LastMessageAt:  p.Timestamp,
			DisplayName:    p.DisplayName,
			DirectionID:    p.DirectionID,
			LastCreativeID: p.CreativeID,
			PaidAttributed: p.PaidAttribution,
		}
		if p.IsInbound {
			s.TotalInboundCount = 1
			if p.PaidAttribution {
				s.AdMessageCount = 1
			}
		}
		f.exists = true
		return *s, nil
	}

	wasPaid := s.PaidAttributed
	newClick := p.PaidAttribution && p.CreativeID != nil &&
		(s.LastCreativeID == nil || *s.LastCreativeID != *p.CreativeID)

	if s.LastMessageAt.Before(p.Timestamp) {
		s.LastMessageAt = p.Timestamp
	}
	if s.DisplayName == nil {
		s.DisplayName = p.DisplayName
	}
	if p.DirectionID != nil {
		s.DirectionID = p.DirectionID
	}
	if p.CreativeID != nil {
		s.LastCreativeID = p.CreativeID
	}
	s.PaidAttributed = wasPaid || p.PaidAttribution

	switch {
	case newClick:
		s.AdMessageCount = 1
		s.InterestDispatched = false
		s.QualifiedDispatched = false
		s.ScheduledDispatched = false
	case p.IsInbound && wasPaid:
		s.AdMessageCount++
	}
	if p.IsInbound {
		s.TotalInboundCount++
	}
	return *s, nil
}

func (f *fakeDialogs) claim(level domain.FunnelLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch level {
	case domain.LevelInterest:
		f.state.InterestDispatched = true
	case domain.LevelQualified:
		f.state.QualifiedDispatched = true
	case domain.LevelScheduled:
		f.state.ScheduledDispatched = true
	}
}

func (f *fakeDialogs) ResumeBot(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed++
	return nil
}

type fakeLeads struct {
	mu     sync.Mutex
	lead   leads.Lead
	params []leads.UpsertParams
	stages []string
}

func (f *fakeLeads) RecordFromPipeline(_ context.Context, p leads.UpsertParams, _ string) (leads.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	return f.lead, nil
}

func (f *fakeLeads) AdvanceStage(_ context.Context, _, _, stage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
	return nil
}

type fakeRelay struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRelay) RelayMessage(context.Context, domain.InboundMessage, domain.DialogState, string, *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

// fakeFunnel records dispatches and, like the real dispatcher, claims the
// level's flag so later messages see it as already sent.
type fakeFunnel struct {
	mu      sync.Mutex
	levels  []domain.FunnelLevel
	clickID string
	dialogs *fakeDialogs
}

func (f *fakeFunnel) SendFunnelLevel(_ context.Context, _ uuid.UUID, _, _ string, level domain.FunnelLevel, clickID string) error {
	f.mu.Lock()
	f.levels = append(f.levels, level)
	f.clickID = clickID
	f.mu.Unlock()
	if f.dialogs != nil {
		f.dialogs.claim(level)
	}
	return nil
}

type pipelineConfig struct{}

func (pipelineConfig) GetSilenceWindow() time.Duration      { return 7 * 24 * time.Hour }
func (pipelineConfig) GetSimilarityThreshold() float64      { return 0.70 }
func (pipelineConfig) GetInterestThreshold() int            { return 3 }
func (pipelineConfig) GetOperatorEchoWindow() time.Duration { return 10 * time.Second }

type fixture struct {
	pipeline *Pipeline
	resolver *fakeResolver
	dialogs  *fakeDialogs
	leads    *fakeLeads
	relay    *fakeRelay
	funnel   *fakeFunnel
}

func newFixture(result domain.AttributionResult, state domain.DialogState) *fixture {
	log := logger.New("development")
	f := &fixture{
		resolver: &fakeResolver{result: result},
		dialogs:  &fakeDialogs{state: state, exists: true},
		leads:    &fakeLeads{},
		relay:    &fakeRelay{},
	}
	f.funnel = &fakeFunnel{dialogs: f.dialogs}
	f.pipeline = NewPipeline(
		&fakeAccounts{id: uuid.New()},
		f.resolver,
		f.dialogs,
		f.leads,
		f.relay,
		f.funnel,
		nil,
		nil,
		pipelineConfig{},
		errtrack.New(16, log),
		log,
	)
	return f
}

func inbound() domain.InboundMessage {
	return domain.InboundMessage{
		InstanceID: "inst-1",
		Sender:     "79991234567@c.us",
		SenderName: "Анна",
		Kind:       domain.KindText,
		Text:       "Сколько стоит?",
		ReceivedAt: time.Now(),
	}
}

func TestProcess_PaidMessageFlowsThroughPipeline(t *testing.T) {
	directionID := uuid.New()
	result := domain.AttributionResult{
		Method:      domain.MethodAdMetadata,
		DirectionID: &directionID,
		ClickID:     "clid-1",
	}
	f := newFixture(result, domain.DialogState{
		InstanceID: "inst-1", Contact: "79991234567@c.us",
		PaidAttributed: true, AdMessageCount: 1,
	})

	if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.dialogs.params) != 1 {
		t.Fatalf("expected one dialog upsert, got %d", len(f.dialogs.params))
	}
	up := f.dialogs.params[0]
	if !up.PaidAttribution || !up.IsInbound {
		t.Fatalf("unexpected upsert params: %+v", up)
	}
	if len(f.leads.params) != 1 {
		t.Fatalf("expected one lead upsert, got %d", len(f.leads.params))
	}
	if f.leads.params[0].Phone == nil || *f.leads.params[0].Phone != "+79991234567" {
		t.Fatalf("expected normalized phone, got %v", f.leads.params[0].Phone)
	}
	if f.relay.calls != 1 {
		t.Fatalf("expected one relay call, got %d", f.relay.calls)
	}
	if len(f.funnel.levels) != 0 {
		t.Fatalf("count below threshold must not dispatch, got %v", f.funnel.levels)
	}
}

func TestProcess_InterestDispatchedAtThreshold(t *testing.T) {
	result := domain.AttributionResult{Method: domain.MethodAdMetadata, ClickID: "clid-2"}
	f := newFixture(result, domain.DialogState{
		InstanceID: "inst-1", Contact: "79991234567@c.us",
		PaidAttributed: true, AdMessageCount: 3,
	})

	if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.funnel.levels) != 1 || f.funnel.levels[0] != domain.LevelInterest {
		t.Fatalf("expected interest dispatch, got %v", f.funnel.levels)
	}
	if f.funnel.clickID != "clid-2" {
		t.Fatalf("expected click id to flow, got %q", f.funnel.clickID)
	}
	if len(f.leads.stages) != 1 || f.leads.stages[0] != "interest" {
		t.Fatalf("expected stage advance, got %v", f.leads.stages)
	}
}

func TestProcess_InterestNotRedispatched(t *testing.T) {
	result := domain.AttributionResult{Method: domain.MethodAdMetadata}
	f := newFixture(result, domain.DialogState{
		PaidAttributed: true, AdMessageCount: 5, InterestDispatched: true,
	})

	if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.funnel.levels) != 0 {
		t.Fatalf("dispatched level must not repeat, got %v", f.funnel.levels)
	}
}

func TestProcess_UnpaidContactNeverReachesInterest(t *testing.T) {
	result := domain.AttributionResult{Method: domain.MethodUnresolved}
	f := newFixture(result, domain.DialogState{
		PaidAttributed: false, AdMessageCount: 0, TotalInboundCount: 10,
	})

	if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.funnel.levels) != 0 {
		t.Fatalf("organic contact must not dispatch, got %v", f.funnel.levels)
	}
}

func TestProcess_RelayFailureDoesNotFailMessage(t *testing.T) {
	result := domain.AttributionResult{Method: domain.MethodAdMetadata}
	f := newFixture(result, domain.DialogState{PaidAttributed: true, AdMessageCount: 1})
	f.relay.err = context.DeadlineExceeded

	if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
		t.Fatalf("relay failure must not fail the pipeline: %v", err)
	}
	if len(f.leads.params) != 1 {
		t.Fatal("lead must still be recorded")
	}
}

func TestProcess_AdMessagesAccumulateToSingleInterest(t *testing.T) {
	creativeID := uuid.New()
	directionID := uuid.New()
	result := domain.AttributionResult{
		Method:      domain.MethodAdMetadata,
		CreativeID:  &creativeID,
		DirectionID: &directionID,
		ClickID:     "clid-3",
	}
	f := newFixture(result, domain.DialogState{})
	f.dialogs.exists = false

	for i := 0; i < 4; i++ {
		if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
	}

	if got := f.dialogs.state.AdMessageCount; got != 4 {
		t.Fatalf("expected ad count 4 after four messages, got %d", got)
	}
	if len(f.funnel.levels) != 1 || f.funnel.levels[0] != domain.LevelInterest {
		t.Fatalf("expected exactly one interest dispatch, got %v", f.funnel.levels)
	}
}

func TestProcess_DifferentCreativeRestartsFunnel(t *testing.T) {
	firstCreative := uuid.New()
	result := domain.AttributionResult{Method: domain.MethodAdMetadata, CreativeID: &firstCreative}
	f := newFixture(result, domain.DialogState{})
	f.dialogs.exists = false

	for i := 0; i < 3; i++ {
		if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
			t.Fatalf("message %d: %v", i+1, err)
		}
	}
	if len(f.funnel.levels) != 1 {
		t.Fatalf("expected one interest dispatch for first creative, got %v", f.funnel.levels)
	}

	secondCreative := uuid.New()
	f.resolver.result.CreativeID = &secondCreative

	if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.dialogs.state.AdMessageCount; got != 1 {
		t.Fatalf("new creative must rewind the count to 1, got %d", got)
	}
	if f.dialogs.state.InterestDispatched {
		t.Fatal("new creative must clear the dispatched flag")
	}
	if len(f.funnel.levels) != 1 {
		t.Fatalf("count below threshold must not dispatch yet, got %v", f.funnel.levels)
	}

	for i := 0; i < 2; i++ {
		if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(f.funnel.levels) != 2 || f.funnel.levels[1] != domain.LevelInterest {
		t.Fatalf("expected a second interest crossing for the new creative, got %v", f.funnel.levels)
	}
}

func TestProcess_DisplayNameIsSetOnce(t *testing.T) {
	result := domain.AttributionResult{Method: domain.MethodUnresolved}
	f := newFixture(result, domain.DialogState{})
	f.dialogs.exists = false

	if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	renamed := inbound()
	renamed.SenderName = "Аня"
	if err := f.pipeline.Process(context.Background(), renamed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if name := f.dialogs.state.DisplayName; name == nil || *name != "Анна" {
		t.Fatalf("display name must keep its first value, got %v", name)
	}
}

func TestProcess_ElapsedPauseIsLifted(t *testing.T) {
	resumeAt := time.Now().Add(-time.Minute)
	result := domain.AttributionResult{Method: domain.MethodUnresolved}
	f := newFixture(result, domain.DialogState{
		InstanceID: "inst-1", Contact: "79991234567@c.us",
		BotPaused: true, BotResumeAt: &resumeAt,
	})

	if err := f.pipeline.Process(context.Background(), inbound()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.dialogs.resumed != 1 {
		t.Fatalf("expected lazy resume, got %d", f.dialogs.resumed)
	}
}
