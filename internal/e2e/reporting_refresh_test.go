package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/amanah-kas/amanah-kas/internal/custody"
	jobmetrics "github.com/amanah-kas/amanah-kas/internal/jobs"
	"github.com/amanah-kas/amanah-kas/internal/reporting"
	"github.com/amanah-kas/amanah-kas/jobs"
)

// stubReportBuilder stands in for the reporting service and records which
// reports the refresh job warmed.
type stubReportBuilder struct {
	positionCalls  int
	overdueCalls   []int
	reconcileCalls int
	err            error
}

func (s *stubReportBuilder) Position(_ context.Context, _ custody.RoleScope) (reporting.PositionReport, error) {
	s.positionCalls++
	if s.err != nil {
		return reporting.PositionReport{}, s.err
	}
	return reporting.PositionReport{
		AsOf:           time.Date(2025, 7, 14, 3, 0, 0, 0, time.UTC),
		TotalInCustody: 9300000,
		InTransitCount: 2,
	}, nil
}

func (s *stubReportBuilder) OverdueCustodies(_ context.Context, thresholdDays int) (reporting.OverdueReport, error) {
	s.overdueCalls = append(s.overdueCalls, thresholdDays)
	if s.err != nil {
		return reporting.OverdueReport{}, s.err
	}
	return reporting.OverdueReport{ThresholdDays: thresholdDays}, nil
}

func (s *stubReportBuilder) Reconcile(_ context.Context) (reporting.ReconciliationReport, error) {
	s.reconcileCalls++
	if s.err != nil {
		return reporting.ReconciliationReport{}, s.err
	}
	return reporting.ReconciliationReport{Balanced: true}, nil
}

func TestReportingRefreshJobEndToEnd(t *testing.T) {
	builder := &stubReportBuilder{}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	job := jobs.NewReportingRefreshJob(builder, nil, metrics)
	task, err := jobs.NewReportingRefreshTask(5)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("job handle: %v", err)
	}
	if builder.positionCalls != 1 {
		t.Fatalf("expected 1 position warmup, got %d", builder.positionCalls)
	}
	if len(builder.overdueCalls) != 1 || builder.overdueCalls[0] != 5 {
		t.Fatalf("expected overdue warmup with threshold 5, got %v", builder.overdueCalls)
	}
	if builder.reconcileCalls != 1 {
		t.Fatalf("expected 1 reconciliation warmup, got %d", builder.reconcileCalls)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "amanah_jobs_total", map[string]string{"job": jobs.TaskReportingRefresh, "status": "success"}, 1) {
		t.Fatalf("expected amanah_jobs_total increment for reporting refresh")
	}
	if !metricExists(families, "amanah_job_duration_seconds") {
		t.Fatalf("expected amanah_job_duration_seconds to be recorded")
	}
}

func assertCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				if metric.GetCounter() == nil {
					return false
				}
				if metric.GetCounter().GetValue() == expected {
					return true
				}
			}
		}
	}
	return false
}

func metricExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}
