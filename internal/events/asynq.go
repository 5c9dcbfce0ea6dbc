package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// AsynqPublisher enqueues events onto the events queue for the worker.
type AsynqPublisher struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewAsynqPublisher constructs an AsynqPublisher.
func NewAsynqPublisher(client *asynq.Client, logger *slog.Logger) *AsynqPublisher {
	return &AsynqPublisher{client: client, logger: logger}
}

// Publish enqueues the event. Failures are logged and returned; callers treat
// publication as best-effort.
func (p *AsynqPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil {
		return errors.New("events: publisher not configured")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeDispatch, payload)
	if _, err := p.client.EnqueueContext(ctx, task, asynq.Queue(QueueEvents), asynq.MaxRetry(5)); err != nil {
		if p.logger != nil {
			p.logger.Warn("publish event", slog.String("type", string(event.Type)), slog.Int64("entity_id", event.EntityID), slog.Any("error", err))
		}
		return err
	}
	return nil
}
