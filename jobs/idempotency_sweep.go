package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/amanah-kas/amanah-kas/internal/jobs"
)

const (
	// TaskIdempotencySweep prunes request keys past their retention window.
	TaskIdempotencySweep = "maintenance:idempotency_sweep"

	defaultIdempotencyRetention = 30 * 24 * time.Hour
)

// IdempotencyCleaner removes processed request keys older than a cutoff.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencySweepPayload carries the retention window for one sweep run.
type IdempotencySweepPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// IdempotencySweepJob prunes expired idempotency keys so retried initiate
// requests stay cheap to check.
type IdempotencySweepJob struct {
	Store   IdempotencyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencySweepJob constructs the sweep handler.
func NewIdempotencySweepJob(store IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencySweepJob {
	return &IdempotencySweepJob{Store: store, Logger: logger, Metrics: metrics}
}

// NewIdempotencySweepTask creates the Asynq task for the nightly sweep.
func NewIdempotencySweepTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		retention = defaultIdempotencyRetention
	}
	body, err := json.Marshal(IdempotencySweepPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencySweep, body, asynq.Queue(QueueDefault)), nil
}

// Handle prunes keys older than the retention window.
func (j *IdempotencySweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency sweep: dependencies not configured")
	}
	var payload IdempotencySweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = defaultIdempotencyRetention
	}

	tracker := j.metrics().Track(TaskIdempotencySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Store.Cleanup(ctx, retention); err != nil {
		resultErr = err
		j.log().Error("sweep failed", slog.Any("error", err))
		return resultErr
	}
	j.log().Info("pruned idempotency keys", slog.Duration("retention", retention))
	return nil
}

func (j *IdempotencySweepJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IdempotencySweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIdempotencySweep))
	}
	return slog.Default().With(slog.String("job", TaskIdempotencySweep))
}
