package scheduler

import (
	"encoding/json"

	"leadflow_backend/internal/messaging/domain"

	"github.com/hibiken/asynq"
)

const TaskInboundMessage = "message.inbound"

const TaskOutboundMessage = "message.outbound"

const TaskNotificationOutboxDue = "notification.outbox.due"

// NotificationOutboxDuePayload identifies a queued notification ready to send.
type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
}

func NewInboundMessageTask(msg domain.InboundMessage) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInboundMessage, data), nil
}

func ParseInboundMessagePayload(task *asynq.Task) (domain.InboundMessage, error) {
	var msg domain.InboundMessage
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return domain.InboundMessage{}, err
	}
	return msg, nil
}

func NewOutboundMessageTask(msg domain.OutboundMessage) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboundMessage, data), nil
}

func ParseOutboundMessagePayload(task *asynq.Task) (domain.OutboundMessage, error) {
	var msg domain.OutboundMessage
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		return domain.OutboundMessage{}, err
	}
	return msg, nil
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}
