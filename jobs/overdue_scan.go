package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/amanah-kas/amanah-kas/internal/jobs"
)

const (
	// TaskCustodyOverdueScan schedules the idle-balance sweep.
	TaskCustodyOverdueScan = "custody:overdue_scan"
)

// OverdueScanPayload configures the idle threshold for the sweep.
type OverdueScanPayload struct {
	ThresholdDays int `json:"threshold_days"`
}

// OverdueScanJob reminds holders whose cash sat untouched past the threshold.
type OverdueScanJob struct {
	Pool     *pgxpool.Pool
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewOverdueScanJob initialises the sweep handler.
func NewOverdueScanJob(pool *pgxpool.Pool, notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{
		Pool:     pool,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewOverdueScanTask creates an Asynq task for the overdue custody sweep.
func NewOverdueScanTask(thresholdDays int) (*asynq.Task, error) {
	if thresholdDays <= 0 {
		thresholdDays = 3
	}
	payload := OverdueScanPayload{ThresholdDays: thresholdDays}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCustodyOverdueScan, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the sweep.
func (j *OverdueScanJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ThresholdDays <= 0 {
		payload.ThresholdDays = 3
	}

	tracker := j.metrics().Track(TaskCustodyOverdueScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	holders, err := j.scan(ctx, now.AddDate(0, 0, -payload.ThresholdDays))
	if err != nil {
		resultErr = err
		j.log().Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	logger := j.log().With(slog.Int("threshold_days", payload.ThresholdDays))
	notified := 0
	for _, holder := range holders {
		idleDays := int(now.Sub(holder.LastActivity).Hours() / 24)
		logger.Warn("custody overdue",
			slog.Int64("user_id", holder.UserID),
			slog.String("role", holder.Role),
			slog.Float64("balance", holder.Balance),
			slog.Int("idle_days", idleDays),
		)
		if j.Notifier == nil {
			continue
		}
		reminder := NotifyPayload{
			UserID:  holder.UserID,
			Kind:    "custody_overdue",
			Message: overdueMessage(holder.Balance, idleDays),
		}
		if _, err := j.Notifier.EnqueueNotify(ctx, reminder); err != nil {
			resultErr = err
			logger.Error("enqueue reminder", slog.Int64("user_id", holder.UserID), slog.Any("error", err))
			return resultErr
		}
		notified++
	}

	logger.Info("completed overdue scan",
		slog.Int("holders", len(holders)),
		slog.Int("notified", notified),
		slog.Duration("duration", time.Since(now)),
	)
	return resultErr
}

// overdueMessage words the reminder sent to an idle holder.
func overdueMessage(balance float64, idleDays int) string {
	return fmt.Sprintf("Saldo kas Anda sebesar %s belum disetor selama %d hari. Segera lakukan serah terima.", formatRupiah(balance), idleDays)
}

func (j *OverdueScanJob) scan(ctx context.Context, before time.Time) ([]overdueHolder, error) {
	if j.Pool == nil {
		return nil, errors.New("overdue scan: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT user_id, role, current_balance::double precision, COALESCE(last_transaction_at, created_at) FROM cash_custodies WHERE status = 'ACTIVE' AND current_balance > 0 AND COALESCE(last_transaction_at, created_at) < $1 ORDER BY COALESCE(last_transaction_at, created_at)`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holders := make([]overdueHolder, 0)
	for rows.Next() {
		var h overdueHolder
		if err := rows.Scan(&h.UserID, &h.Role, &h.Balance, &h.LastActivity); err != nil {
			return nil, err
		}
		holders = append(holders, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holders, nil
}

func (j *OverdueScanJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCustodyOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskCustodyOverdueScan))
}

func (j *OverdueScanJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueScanJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *OverdueScanJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}

type overdueHolder struct {
	UserID       int64
	Role         string
	Balance      float64
	LastActivity time.Time
}
