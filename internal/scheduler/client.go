// Package scheduler provides the asynq-backed task queue that decouples
// webhook acknowledgement from message processing.
package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadflow_backend/internal/messaging/domain"
	"leadflow_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Enqueuer hands messages off for asynchronous processing. The webhook
// handler depends on this interface only; the implementation is the asynq
// client or, without Redis, the inline fallback.
type Enqueuer interface {
	EnqueueInbound(ctx context.Context, msg domain.InboundMessage) error
	EnqueueOutbound(ctx context.Context, msg domain.OutboundMessage) error
}

// OutboxScheduler schedules deferred notification deliveries.
type OutboxScheduler interface {
	ScheduleOutboxDispatch(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error
}

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueInbound queues one inbound message for pipeline processing.
// MaxRetry covers transient worker failures; the task payload is the full
// normalized message so the worker needs no webhook state.
func (c *Client) EnqueueInbound(ctx context.Context, msg domain.InboundMessage) error {
	task, err := NewInboundMessageTask(msg)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(5))
	return err
}

// EnqueueOutbound queues one outbound message for operator detection.
func (c *Client) EnqueueOutbound(ctx context.Context, msg domain.OutboundMessage) error {
	task, err := NewOutboundMessageTask(msg)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.MaxRetry(5))
	return err
}

// ScheduleOutboxDispatch schedules a notification outbox entry.
func (c *Client) ScheduleOutboxDispatch(ctx context.Context, payload NotificationOutboxDuePayload, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewNotificationOutboxDueTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(runAt), asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
