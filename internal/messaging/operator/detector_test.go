package operator

import (
	"context"
	"testing"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/messaging/dialog"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"
)

type fakeDialogStore struct {
	state     domain.DialogState
	exists    bool
	paused    bool
	pauseCall int
	resumeAt  *time.Time
}

func (f *fakeDialogStore) Get(context.Context, string, string) (domain.DialogState, error) {
	if !f.exists {
		return domain.DialogState{}, dialog.ErrNotFound
	}
	return f.state, nil
}

func (f *fakeDialogStore) PauseBot(_ context.Context, _, _ string, resumeAt *time.Time) (bool, error) {
	f.pauseCall++
	if f.paused {
		return false, nil
	}
	f.paused = true
	f.resumeAt = resumeAt
	return true, nil
}

type fakePolicy struct {
	pause      bool
	autoResume time.Duration
}

func (f *fakePolicy) PauseOnOperator(context.Context, string) (bool, error) {
	return f.pause, nil
}

func (f *fakePolicy) AutoResumeAfter(context.Context, string) (time.Duration, error) {
	return f.autoResume, nil
}

func newTestDetector(store *fakeDialogStore, policy *fakePolicy) *Detector {
	log := logger.New("development")
	return NewDetector(store, policy, events.NewInMemoryBus(log), 10*time.Second, log)
}

func TestHandleOutbound_BotEchoIgnored(t *testing.T) {
	sentAt := time.Now()
	botAt := sentAt.Add(-3 * time.Second)
	store := &fakeDialogStore{exists: true, state: domain.DialogState{BotLastSentAt: &botAt}}
	d := newTestDetector(store, &fakePolicy{pause: true})

	msg := domain.OutboundMessage{InstanceID: "i", Contact: "c", SentAt: sentAt}
	if err := d.HandleOutbound(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.paused {
		t.Fatal("echo of a bot send must not pause the bot")
	}
}

func TestHandleOutbound_OperatorMessagePauses(t *testing.T) {
	sentAt := time.Now()
	botAt := sentAt.Add(-time.Minute)
	store := &fakeDialogStore{exists: true, state: domain.DialogState{BotLastSentAt: &botAt}}
	d := newTestDetector(store, &fakePolicy{pause: true, autoResume: time.Hour})

	msg := domain.OutboundMessage{InstanceID: "i", Contact: "c", SentAt: sentAt}
	if err := d.HandleOutbound(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.paused {
		t.Fatal("operator message outside the echo window must pause the bot")
	}
	if store.resumeAt == nil {
		t.Fatal("auto-resume policy must set a resume time")
	}
}

func TestHandleOutbound_NoBotHistoryPauses(t *testing.T) {
	store := &fakeDialogStore{exists: true}
	d := newTestDetector(store, &fakePolicy{pause: true})

	msg := domain.OutboundMessage{InstanceID: "i", Contact: "c", SentAt: time.Now()}
	if err := d.HandleOutbound(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.paused {
		t.Fatal("outbound with no bot history must count as operator")
	}
	if store.resumeAt != nil {
		t.Fatal("zero auto-resume must leave the resume time unset")
	}
}

func TestHandleOutbound_InstanceOptedOut(t *testing.T) {
	store := &fakeDialogStore{exists: true}
	d := newTestDetector(store, &fakePolicy{pause: false})

	msg := domain.OutboundMessage{InstanceID: "i", Contact: "c", SentAt: time.Now()}
	if err := d.HandleOutbound(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.pauseCall != 0 {
		t.Fatal("opted-out instance must never pause")
	}
}

func TestHandleOutbound_UnknownContactIgnored(t *testing.T) {
	store := &fakeDialogStore{exists: false}
	d := newTestDetector(store, &fakePolicy{pause: true})

	msg := domain.OutboundMessage{InstanceID: "i", Contact: "c", SentAt: time.Now()}
	if err := d.HandleOutbound(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.pauseCall != 0 {
		t.Fatal("unknown contact must be ignored")
	}
}
