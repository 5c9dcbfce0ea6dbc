package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/amanah-kas/amanah-kas/internal/custody"
	jobmetrics "github.com/amanah-kas/amanah-kas/internal/jobs"
	"github.com/amanah-kas/amanah-kas/internal/reporting"
)

type stubReconciler struct {
	report reporting.ReconciliationReport
}

func (s *stubReconciler) Reconcile(ctx context.Context) (reporting.ReconciliationReport, error) {
	return s.report, nil
}

func TestReconcileCheckCountsDriftedAccounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	reconciler := &stubReconciler{report: reporting.ReconciliationReport{
		Lines: []reporting.ReconciliationLine{
			{AccountCode: custody.AccountAgentCash, CustodyTotal: 100, LedgerBalance: 100, Match: true},
			{AccountCode: custody.AccountUnitAdminCash, CustodyTotal: 250, LedgerBalance: 200, Difference: 50},
			{AccountCode: custody.AccountAreaAdminCash, Match: true},
			{AccountCode: custody.AccountForumAdminCash, Match: true},
		},
		Balanced: false,
	}}

	job := NewReconcileCheckJob(reconciler, discardLogger(), metrics)
	require.NoError(t, job.Handle(context.Background(), NewReconcileCheckTask()))

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	require.Contains(t, body, `amanah_reconciliation_mismatches_total{account="1102",role="UNIT_ADMIN"} 1`)
	require.NotContains(t, body, `account="1101"`)
	require.Contains(t, body, `amanah_jobs_total{job="reconciliation:check",status="success"} 1`)
}

func TestReconcileCheckBalancedReportStaysQuiet(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	reconciler := &stubReconciler{report: reporting.ReconciliationReport{
		Lines: []reporting.ReconciliationLine{
			{AccountCode: custody.AccountAgentCash, Match: true},
			{AccountCode: custody.AccountUnitAdminCash, Match: true},
			{AccountCode: custody.AccountAreaAdminCash, Match: true},
			{AccountCode: custody.AccountForumAdminCash, Match: true},
		},
		Balanced: true,
	}}

	job := NewReconcileCheckJob(reconciler, discardLogger(), metrics)
	require.NoError(t, job.Handle(context.Background(), NewReconcileCheckTask()))

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.NotContains(t, rr.Body.String(), "amanah_reconciliation_mismatches_total{")
}
