package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	jobmetrics "github.com/amanah-kas/amanah-kas/internal/jobs"
	"github.com/amanah-kas/amanah-kas/internal/reporting"
)

const (
	// TaskReconcileCheck schedules the custody-versus-ledger comparison.
	TaskReconcileCheck = "reconciliation:check"
)

// Reconciler reproduces the custody-versus-ledger comparison.
type Reconciler interface {
	Reconcile(ctx context.Context) (reporting.ReconciliationReport, error)
}

// accountRoles names the hierarchy level behind each cash account for the
// mismatch metric labels.
var accountRoles = map[string]string{
	custody.AccountAgentCash:      string(hierarchy.RoleAgent),
	custody.AccountUnitAdminCash:  string(hierarchy.RoleUnitAdmin),
	custody.AccountAreaAdminCash:  string(hierarchy.RoleAreaAdmin),
	custody.AccountForumAdminCash: string(hierarchy.RoleForumAdmin),
}

// ReconcileCheckJob compares custody balances against their ledger accounts
// and surfaces drift as log warnings and metrics.
type ReconcileCheckJob struct {
	Reports Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReconcileCheckJob constructs the comparison handler.
func NewReconcileCheckJob(reports Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileCheckJob {
	return &ReconcileCheckJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewReconcileCheckTask creates an Asynq task for the nightly comparison. The
// check takes no parameters, so the task carries no payload.
func NewReconcileCheckTask() *asynq.Task {
	return asynq.NewTask(TaskReconcileCheck, nil, asynq.Queue(QueueDefault))
}

// Handle executes the comparison.
func (j *ReconcileCheckJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("reconcile check: dependencies not configured")
	}

	tracker := j.metrics().Track(TaskReconcileCheck)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	report, err := j.Reports.Reconcile(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("reconcile failed", slog.Any("error", err))
		return resultErr
	}

	mismatches := 0
	for _, line := range report.Lines {
		if line.Match {
			continue
		}
		mismatches++
		j.log().Warn("custody drifted from ledger",
			slog.String("account_code", line.AccountCode),
			slog.Float64("custody_total", line.CustodyTotal),
			slog.Float64("ledger_balance", line.LedgerBalance),
			slog.Float64("difference", line.Difference),
		)
		j.metrics().AddMismatches(line.AccountCode, accountRoles[line.AccountCode], 1)
	}

	j.log().Info("completed reconciliation check",
		slog.Bool("balanced", report.Balanced),
		slog.Int("mismatches", mismatches),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *ReconcileCheckJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconcileCheckJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconcileCheck))
	}
	return slog.Default().With(slog.String("job", TaskReconcileCheck))
}

func (j *ReconcileCheckJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
