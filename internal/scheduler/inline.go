package scheduler

import (
	"context"

	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/logger"
)

// InboundProcessor runs the attribution pipeline for one inbound message.
type InboundProcessor interface {
	Process(ctx context.Context, msg domain.InboundMessage) error
}

// OutboundProcessor runs operator detection for one outbound message.
type OutboundProcessor interface {
	HandleOutbound(ctx context.Context, msg domain.OutboundMessage) error
}

// InlineEnqueuer processes messages in-process when Redis is not configured.
// The webhook still acknowledges immediately; processing happens on a
// goroutine with no durable retry, which is acceptable for single-node
// deployments.
type InlineEnqueuer struct {
	inbound  InboundProcessor
	outbound OutboundProcessor
	log      *logger.Logger
}

// NewInlineEnqueuer creates the in-process fallback enqueuer.
func NewInlineEnqueuer(inbound InboundProcessor, outbound OutboundProcessor, log *logger.Logger) *InlineEnqueuer {
	return &InlineEnqueuer{inbound: inbound, outbound: outbound, log: log}
}

func (e *InlineEnqueuer) EnqueueInbound(ctx context.Context, msg domain.InboundMessage) error {
	go func() {
		// The request context ends when the webhook is acknowledged.
		ctx := context.WithoutCancel(ctx)
		if err := e.inbound.Process(ctx, msg); err != nil {
			e.log.Error("inline inbound processing failed",
				"error", err, "instance_id", msg.InstanceID, "contact", msg.Sender)
		}
	}()
	return nil
}

func (e *InlineEnqueuer) EnqueueOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	go func() {
		ctx := context.WithoutCancel(ctx)
		if err := e.outbound.HandleOutbound(ctx, msg); err != nil {
			e.log.Error("inline outbound processing failed",
				"error", err, "instance_id", msg.InstanceID, "contact", msg.Contact)
		}
	}()
	return nil
}
