package crm

import (
	"context"
	"testing"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadSource struct {
	lead   leads.Lead
	exists bool
	staged string
}

func (f *fakeLeadSource) ByCRMEntity(context.Context, string) (leads.Lead, error) {
	if !f.exists {
		return leads.Lead{}, apperr.NotFound("no lead linked to CRM entity")
	}
	return f.lead, nil
}

func (f *fakeLeadSource) AdvanceStage(_ context.Context, _, _, stage string) error {
	f.staged = stage
	return nil
}

type fakeDispatcher struct {
	level   domain.FunnelLevel
	clickID string
	calls   int
}

func (f *fakeDispatcher) SendFunnelLevel(_ context.Context, _ uuid.UUID, _, _ string, level domain.FunnelLevel, clickID string) error {
	f.calls++
	f.level = level
	f.clickID = clickID
	return nil
}

type fakeRules struct {
	rule *FunnelRule
}

func newServiceWithRule(t *testing.T, src *fakeLeadSource, disp *fakeDispatcher, rule *FunnelRule) *Service {
	t.Helper()
	// The rule lookup goes through the repository in production; tests stub
	// it by seeding the one rule the case needs.
	svc := NewService(nil, src, disp, nil, logger.New("development"))
	svc.ruleLookup = func(context.Context, uuid.UUID, string, string) (*FunnelRule, error) {
		return rule, nil
	}
	return svc
}

func TestHandleStatusChange_DispatchesMappedLevel(t *testing.T) {
	clickID := "clid-5"
	src := &fakeLeadSource{
		exists: true,
		lead: leads.Lead{
			AccountID:  uuid.New(),
			InstanceID: "inst-1",
			Contact:    "79991234567@c.us",
			ClickID:    &clickID,
		},
	}
	disp := &fakeDispatcher{}
	svc := newServiceWithRule(t, src, disp, &FunnelRule{Level: "qualified"})

	err := svc.HandleStatusChange(context.Background(), StatusChange{
		EntityID: "crm-1", PipelineID: "p1", StatusID: "s2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disp.calls != 1 || disp.level != domain.LevelQualified {
		t.Fatalf("expected one qualified dispatch, got %d/%s", disp.calls, disp.level)
	}
	if disp.clickID != clickID {
		t.Fatalf("expected click id to flow through, got %q", disp.clickID)
	}
	if src.staged != "qualified" {
		t.Fatalf("expected stage advance, got %q", src.staged)
	}
}

func TestHandleStatusChange_UnmappedStatusIgnored(t *testing.T) {
	src := &fakeLeadSource{exists: true, lead: leads.Lead{InstanceID: "i", Contact: "c"}}
	disp := &fakeDispatcher{}
	svc := newServiceWithRule(t, src, disp, nil)

	err := svc.HandleStatusChange(context.Background(), StatusChange{
		EntityID: "crm-1", PipelineID: "p1", StatusID: "s99",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disp.calls != 0 {
		t.Fatal("unmapped status must not dispatch")
	}
}

func TestHandleStatusChange_UnlinkedEntityIgnored(t *testing.T) {
	disp := &fakeDispatcher{}
	svc := newServiceWithRule(t, &fakeLeadSource{exists: false}, disp, &FunnelRule{Level: "scheduled"})

	err := svc.HandleStatusChange(context.Background(), StatusChange{
		EntityID: "crm-unknown", PipelineID: "p1", StatusID: "s2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disp.calls != 0 {
		t.Fatal("entity without a lead must not dispatch")
	}
}
