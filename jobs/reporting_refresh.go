package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amanah-kas/amanah-kas/internal/custody"
	jobmetrics "github.com/amanah-kas/amanah-kas/internal/jobs"
	"github.com/amanah-kas/amanah-kas/internal/reporting"
)

const (
	// TaskReportingRefresh schedules the report cache warmup routine.
	TaskReportingRefresh = "reporting:refresh"
)

// ReportingRefreshPayload configures the warmup scope.
type ReportingRefreshPayload struct {
	ThresholdDays int `json:"threshold_days"`
}

// ReportBuilder describes the read side the refresh job warms.
type ReportBuilder interface {
	Position(ctx context.Context, scope custody.RoleScope) (reporting.PositionReport, error)
	OverdueCustodies(ctx context.Context, thresholdDays int) (reporting.OverdueReport, error)
	Reconcile(ctx context.Context) (reporting.ReconciliationReport, error)
}

// ReportingRefreshJob rebuilds the cached reports so the first dashboard hit
// after an invalidation does not pay the full aggregation cost.
type ReportingRefreshJob struct {
	Reports ReportBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportingRefreshJob constructs the warmup handler.
func NewReportingRefreshJob(reports ReportBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportingRefreshJob {
	return &ReportingRefreshJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewReportingRefreshTask creates an Asynq task for refreshing cached reports.
func NewReportingRefreshTask(thresholdDays int) (*asynq.Task, error) {
	if thresholdDays <= 0 {
		thresholdDays = 3
	}
	payload := ReportingRefreshPayload{ThresholdDays: thresholdDays}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportingRefresh, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the warmup. Each report loads through the versioned cache,
// so a rebuild here is what the next dashboard request reads.
func (j *ReportingRefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("reporting refresh: dependencies not configured")
	}
	var payload ReportingRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ThresholdDays <= 0 {
		payload.ThresholdDays = 3
	}

	tracker := j.metrics().Track(TaskReportingRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	position, err := j.Reports.Position(ctx, custody.RoleScope{})
	if err != nil {
		resultErr = err
		j.log().Error("warm position report", slog.Any("error", err))
		return resultErr
	}
	overdue, err := j.Reports.OverdueCustodies(ctx, payload.ThresholdDays)
	if err != nil {
		resultErr = err
		j.log().Error("warm overdue report", slog.Int("threshold_days", payload.ThresholdDays), slog.Any("error", err))
		return resultErr
	}
	reconciliation, err := j.Reports.Reconcile(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("warm reconciliation report", slog.Any("error", err))
		return resultErr
	}

	j.log().Info("refreshed cached reports",
		slog.Float64("total_in_custody", position.TotalInCustody),
		slog.Int("in_transit", position.InTransitCount),
		slog.Int("overdue", len(overdue.Entries)),
		slog.Bool("balanced", reconciliation.Balanced),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ReportingRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportingRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportingRefresh))
	}
	return slog.Default().With(slog.String("job", TaskReportingRefresh))
}

func (j *ReportingRefreshJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
