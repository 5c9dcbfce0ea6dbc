package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/amanah-kas/amanah-kas/internal/reporting"
)

// Reconciler runs the custody-versus-ledger comparison.
type Reconciler interface {
	Reconcile(ctx context.Context) (reporting.ReconciliationReport, error)
}

// OpsCLI bundles day-close helpers for finance operators.
type OpsCLI struct {
	reports Reconciler
}

// NewOpsCLI constructs the helper around a reporting service.
func NewOpsCLI(reports Reconciler) (*OpsCLI, error) {
	if reports == nil {
		return nil, errors.New("ops cli: reconciler is required")
	}
	return &OpsCLI{reports: reports}, nil
}

// ReconcileOptions defines available flags for the reconcile command.
type ReconcileOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ReconcileSummary describes the JSON response for reconcile.
type ReconcileSummary struct {
	OK                bool               `json:"ok"`
	AsOf              string             `json:"as_of"`
	Drifts            []ReconcileDrift   `json:"drifts"`
	Accounts          []ReconcileAccount `json:"accounts"`
	BankLedgerBalance float64            `json:"bank_ledger_balance"`
}

// ReconcileDrift captures one account where custody and ledger disagree.
type ReconcileDrift struct {
	Account    string  `json:"account"`
	Custody    float64 `json:"custody"`
	Ledger     float64 `json:"ledger"`
	Difference float64 `json:"difference"`
}

// ReconcileAccount reports one compared cash account.
type ReconcileAccount struct {
	Account string  `json:"account"`
	Custody float64 `json:"custody"`
	Ledger  float64 `json:"ledger"`
	Match   bool    `json:"match"`
}

// ReconcileCommand executes the reconcile workflow and prints the outcome.
// The exit code is 0 when all accounts match, 10 when at least one account
// drifted and 1 on failure.
func (c *OpsCLI) ReconcileCommand(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if c == nil || c.reports == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "reconcile: reporting service not configured")
		return 1
	}
	report, err := c.reports.Reconcile(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return 1
	}
	summary := buildReconcileSummary(report)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "reconcile: encode json: %v\n", err)
			return 1
		}
	} else {
		renderReconcileHuman(opts.Stdout, summary)
	}
	if len(summary.Drifts) > 0 {
		return 10
	}
	return 0
}

func buildReconcileSummary(report reporting.ReconciliationReport) ReconcileSummary {
	summary := ReconcileSummary{
		OK:                report.Balanced,
		AsOf:              report.AsOf.Format("2006-01-02"),
		Drifts:            make([]ReconcileDrift, 0, len(report.Lines)),
		Accounts:          make([]ReconcileAccount, 0, len(report.Lines)),
		BankLedgerBalance: report.BankLedgerBalance,
	}
	for _, line := range report.Lines {
		summary.Accounts = append(summary.Accounts, ReconcileAccount{
			Account: line.AccountCode,
			Custody: line.CustodyTotal,
			Ledger:  line.LedgerBalance,
			Match:   line.Match,
		})
		if !line.Match {
			summary.Drifts = append(summary.Drifts, ReconcileDrift{
				Account:    line.AccountCode,
				Custody:    line.CustodyTotal,
				Ledger:     line.LedgerBalance,
				Difference: line.Difference,
			})
		}
	}
	return summary
}

func renderReconcileHuman(out io.Writer, summary ReconcileSummary) {
	_, _ = fmt.Fprintf(out, "Custody reconciliation as of %s\n", summary.AsOf)
	if len(summary.Drifts) == 0 {
		_, _ = fmt.Fprintln(out, "All cash accounts match the posted ledger.")
	} else {
		_, _ = fmt.Fprintf(out, "%d account(s) drifted:\n", len(summary.Drifts))
		for _, drift := range summary.Drifts {
			_, _ = fmt.Fprintf(out, " - %s custody %.2f vs ledger %.2f (diff %.2f)\n", drift.Account, drift.Custody, drift.Ledger, drift.Difference)
		}
	}
	_, _ = fmt.Fprintln(out, "Checked accounts:")
	for _, account := range summary.Accounts {
		state := "ok"
		if !account.Match {
			state = "drift"
		}
		_, _ = fmt.Fprintf(out, " - %s custody %.2f ledger %.2f (%s)\n", account.Account, account.Custody, account.Ledger, state)
	}
	_, _ = fmt.Fprintf(out, "Bank ledger balance: %.2f\n", summary.BankLedgerBalance)
}
