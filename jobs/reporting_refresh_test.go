package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/reporting"
)

type stubReportBuilder struct {
	positionCalls  int
	overdueCalls   int
	reconcileCalls int
	lastThreshold  int
	reconciliation reporting.ReconciliationReport
}

func (s *stubReportBuilder) Position(ctx context.Context, scope custody.RoleScope) (reporting.PositionReport, error) {
	s.positionCalls++
	return reporting.PositionReport{TotalInCustody: 425, InTransitCount: 2}, nil
}

func (s *stubReportBuilder) OverdueCustodies(ctx context.Context, thresholdDays int) (reporting.OverdueReport, error) {
	s.overdueCalls++
	s.lastThreshold = thresholdDays
	return reporting.OverdueReport{ThresholdDays: thresholdDays}, nil
}

func (s *stubReportBuilder) Reconcile(ctx context.Context) (reporting.ReconciliationReport, error) {
	s.reconcileCalls++
	return s.reconciliation, nil
}

func TestReportingRefreshWarmsEveryReport(t *testing.T) {
	builder := &stubReportBuilder{reconciliation: reporting.ReconciliationReport{Balanced: true}}
	job := NewReportingRefreshJob(builder, discardLogger(), nil)

	task, err := NewReportingRefreshTask(7)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, 1, builder.positionCalls)
	require.Equal(t, 1, builder.overdueCalls)
	require.Equal(t, 1, builder.reconcileCalls)
	require.Equal(t, 7, builder.lastThreshold)
}

func TestReportingRefreshDefaultsThreshold(t *testing.T) {
	builder := &stubReportBuilder{}
	job := NewReportingRefreshJob(builder, discardLogger(), nil)

	task, err := NewReportingRefreshTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, 3, builder.lastThreshold)
}
