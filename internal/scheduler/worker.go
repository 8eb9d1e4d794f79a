package scheduler

import (
	"context"
	"fmt"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker consumes queued messages and runs them through the pipeline.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	inbound  InboundProcessor
	outbound OutboundProcessor
	bus      events.Bus
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, inbound InboundProcessor, outbound OutboundProcessor, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		inbound:  inbound,
		outbound: outbound,
		bus:      bus,
		log:      log,
	}

	mux.HandleFunc(TaskInboundMessage, w.handleInboundMessage)
	mux.HandleFunc(TaskOutboundMessage, w.handleOutboundMessage)
	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w, nil
}

func (w *Worker) handleInboundMessage(ctx context.Context, task *asynq.Task) error {
	msg, err := ParseInboundMessagePayload(task)
	if err != nil {
		return err
	}
	return w.inbound.Process(ctx, msg)
}

func (w *Worker) handleOutboundMessage(ctx context.Context, task *asynq.Task) error {
	msg, err := ParseOutboundMessagePayload(task)
	if err != nil {
		return err
	}
	return w.outbound.HandleOutbound(ctx, msg)
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.NotificationOutboxDue{
		BaseEvent: events.NewBaseEvent(),
		OutboxID:  outboxID,
	})
}

// Run starts the worker and blocks until the context ends.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
