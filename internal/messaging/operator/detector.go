// Package operator classifies outbound channel traffic. An outbound message
// that the bot did not just send is treated as a human operator stepping into
// the conversation, which pauses automated responses for the contact.
package operator

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/messaging/dialog"
	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"
)

// DialogStore is the slice of the dialog repository the detector needs.
type DialogStore interface {
	Get(ctx context.Context, instanceID, contact string) (domain.DialogState, error)
	PauseBot(ctx context.Context, instanceID, contact string, resumeAt *time.Time) (bool, error)
}

// PausePolicy answers per-instance pause questions. Satisfied by the
// channels service.
type PausePolicy interface {
	PauseOnOperator(ctx context.Context, instanceID string) (bool, error)
	AutoResumeAfter(ctx context.Context, instanceID string) (time.Duration, error)
}

// Detector decides whether an outbound message is an operator takeover.
type Detector struct {
	dialogs DialogStore
	policy  PausePolicy
	bus     events.Bus
	// echoWindow is how long after a bot send an outbound message is still
	// assumed to be the echo of that send rather than a human.
	echoWindow time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// NewDetector creates a detector with the configured echo window.
func NewDetector(dialogs DialogStore, policy PausePolicy, bus events.Bus, echoWindow time.Duration, log *logger.Logger) *Detector {
	return &Detector{
		dialogs:    dialogs,
		policy:     policy,
		bus:        bus,
		echoWindow: echoWindow,
		log:        log,
		now:        time.Now,
	}
}

// HandleOutbound inspects one outbound message. Messages inside the echo
// window of the bot's last send are ignored. Anything else pauses the bot for
// the contact, when the instance opted into operator pausing, and publishes
// an OperatorTakeover event. Only the first pause publishes; repeated
// operator messages while already paused are no-ops.
func (d *Detector) HandleOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	state, err := d.dialogs.Get(ctx, msg.InstanceID, msg.Contact)
	if errors.Is(err, dialog.ErrNotFound) {
		// Outbound to a contact the pipeline has never seen. Nothing to pause.
		return nil
	}
	if err != nil {
		return err
	}

	if d.isBotEcho(state, msg.SentAt) {
		return nil
	}

	pause, err := d.policy.PauseOnOperator(ctx, msg.InstanceID)
	if err != nil {
		return err
	}
	if !pause {
		return nil
	}

	var resumeAt *time.Time
	autoResume, err := d.policy.AutoResumeAfter(ctx, msg.InstanceID)
	if err != nil {
		return err
	}
	if autoResume > 0 {
		at := d.now().Add(autoResume)
		resumeAt = &at
	}

	paused, err := d.dialogs.PauseBot(ctx, msg.InstanceID, msg.Contact, resumeAt)
	if err != nil {
		return err
	}
	if !paused {
		return nil
	}

	d.log.Info("operator takeover detected",
		"instance_id", msg.InstanceID, "contact", msg.Contact)
	d.bus.Publish(ctx, events.OperatorTakeover{
		BaseEvent:  events.NewBaseEvent(),
		InstanceID: msg.InstanceID,
		Contact:    msg.Contact,
		ResumeAt:   resumeAt,
	})

	return nil
}

func (d *Detector) isBotEcho(state domain.DialogState, sentAt time.Time) bool {
	if state.BotLastSentAt == nil {
		return false
	}
	delta := sentAt.Sub(*state.BotLastSentAt)
	return delta >= 0 && delta <= d.echoWindow
}
