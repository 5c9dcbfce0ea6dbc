// Package reporting builds the read-side views over the custody ledger: the
// cash position rollup, the overdue custody list and the GL-versus-custody
// reconciliation. Reports are cached under a shared version that balance
// changes bump.
package reporting

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/handover"
	"github.com/amanah-kas/amanah-kas/internal/journal"
)

// reconciliationEpsilon absorbs cent-level rounding between the custody rows
// and the posted journal lines.
const reconciliationEpsilon = 0.01

// cashAccountCodes are the custody-backed accounts reconciled line by line.
var cashAccountCodes = []string{
	custody.AccountAgentCash,
	custody.AccountUnitAdminCash,
	custody.AccountAreaAdminCash,
	custody.AccountForumAdminCash,
}

// CustodyReports is the slice of the custody service the reports read.
type CustodyReports interface {
	Totals(ctx context.Context) ([]custody.AccountTotal, error)
	Overdue(ctx context.Context, thresholdDays int) ([]custody.Custody, error)
	BalancesByRole(ctx context.Context, scope custody.RoleScope) ([]custody.RoleBalance, error)
}

// LedgerBalances reads posted balances per account from the journal.
type LedgerBalances interface {
	AccountBalances(ctx context.Context, asOf time.Time, accountCodes []string) ([]journal.AccountBalance, error)
}

// PendingOverview lists in-flight handovers for the position report.
type PendingOverview interface {
	OrgPending(ctx context.Context) ([]handover.PendingOverviewItem, error)
}

// Service coordinates report assembly with the cache layer.
type Service struct {
	custody CustodyReports
	ledger  LedgerBalances
	pending PendingOverview
	cache   *Cache
	now     func() time.Time
}

// NewService wires the report sources with a Cache helper.
func NewService(custodyReports CustodyReports, ledger LedgerBalances, pending PendingOverview, cache *Cache) *Service {
	return &Service{
		custody: custodyReports,
		ledger:  ledger,
		pending: pending,
		cache:   cache,
		now:     time.Now,
	}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// PositionReport is the org- or scope-level cash rollup. Accounts are only
// populated on the unscoped report; the account totals aggregate the whole
// organisation.
type PositionReport struct {
	AsOf           time.Time              `json:"as_of"`
	Roles          []custody.RoleBalance  `json:"roles"`
	Accounts       []custody.AccountTotal `json:"accounts,omitempty"`
	TotalInCustody float64                `json:"total_in_custody"`
	InTransitTotal float64                `json:"in_transit_total"`
	InTransitCount int                    `json:"in_transit_count"`
	OverduePending int                    `json:"overdue_pending"`
}

// OverdueEntry is one custody position idle past the threshold.
type OverdueEntry struct {
	custody.Custody
	IdleDays int `json:"idle_days"`
}

// OverdueReport lists custodies holding cash without recent movement.
type OverdueReport struct {
	AsOf          time.Time      `json:"as_of"`
	ThresholdDays int            `json:"threshold_days"`
	Entries       []OverdueEntry `json:"entries"`
	TotalHeld     float64        `json:"total_held"`
}

// ReconciliationLine compares one cash account between the custody rows and
// the posted general ledger.
type ReconciliationLine struct {
	AccountCode   string  `json:"account_code"`
	CustodyTotal  float64 `json:"custody_total"`
	LedgerBalance float64 `json:"ledger_balance"`
	Difference    float64 `json:"difference"`
	Match         bool    `json:"match"`
}

// ReconciliationReport is the drift check between the operational custody
// balances and the journal. The bank account has no custody rows, so its
// ledger balance is reported on its own.
type ReconciliationReport struct {
	AsOf              time.Time            `json:"as_of"`
	Lines             []ReconciliationLine `json:"lines"`
	BankLedgerBalance float64              `json:"bank_ledger_balance"`
	Balanced          bool                 `json:"balanced"`
}

// Position assembles the cash rollup for the given scope.
func (s *Service) Position(ctx context.Context, scope custody.RoleScope) (PositionReport, error) {
	key, err := s.cache.BuildKey(ctx, keyPosition(scope))
	if err != nil {
		return PositionReport{}, err
	}
	var report PositionReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.buildPosition(ctx, scope)
	})
	return report, err
}

func (s *Service) buildPosition(ctx context.Context, scope custody.RoleScope) (PositionReport, error) {
	report := PositionReport{AsOf: s.now()}
	scoped := scope.ForumID != nil || scope.AreaID != nil

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		roles, err := s.custody.BalancesByRole(ctx, scope)
		if err != nil {
			return err
		}
		report.Roles = roles
		return nil
	})

	if !scoped {
		g.Go(func() error {
			accounts, err := s.custody.Totals(ctx)
			if err != nil {
				return err
			}
			report.Accounts = accounts
			return nil
		})
	}

	if s.pending != nil {
		g.Go(func() error {
			items, err := s.pending.OrgPending(ctx)
			if err != nil {
				return err
			}
			for _, item := range items {
				report.InTransitTotal = round(report.InTransitTotal + item.Amount)
				report.InTransitCount++
				if item.Overdue {
					report.OverduePending++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return PositionReport{}, err
	}
	for _, rb := range report.Roles {
		report.TotalInCustody = round(report.TotalInCustody + rb.Total)
	}
	return report, nil
}

// OverdueCustodies lists positions untouched for at least thresholdDays.
func (s *Service) OverdueCustodies(ctx context.Context, thresholdDays int) (OverdueReport, error) {
	key, err := s.cache.BuildKey(ctx, keyOverdue(thresholdDays))
	if err != nil {
		return OverdueReport{}, err
	}
	var report OverdueReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.buildOverdue(ctx, thresholdDays)
	})
	return report, err
}

func (s *Service) buildOverdue(ctx context.Context, thresholdDays int) (OverdueReport, error) {
	rows, err := s.custody.Overdue(ctx, thresholdDays)
	if err != nil {
		return OverdueReport{}, err
	}
	now := s.now()
	report := OverdueReport{AsOf: now, ThresholdDays: thresholdDays, Entries: make([]OverdueEntry, 0, len(rows))}
	for _, c := range rows {
		last := c.CreatedAt
		if c.LastTransactionAt != nil {
			last = *c.LastTransactionAt
		}
		report.Entries = append(report.Entries, OverdueEntry{
			Custody:  c,
			IdleDays: int(now.Sub(last).Hours() / 24),
		})
		report.TotalHeld = round(report.TotalHeld + c.CurrentBalance)
	}
	return report, nil
}

// Reconcile compares custody balances with posted journal balances per cash
// account.
func (s *Service) Reconcile(ctx context.Context) (ReconciliationReport, error) {
	key, err := s.cache.BuildKey(ctx, keyReconciliation(s.now()))
	if err != nil {
		return ReconciliationReport{}, err
	}
	var report ReconciliationReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
		return s.buildReconciliation(ctx)
	})
	return report, err
}

func (s *Service) buildReconciliation(ctx context.Context) (ReconciliationReport, error) {
	now := s.now()
	var (
		totals   []custody.AccountTotal
		balances []journal.AccountBalance
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.custody.Totals(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		codes := append(append([]string{}, cashAccountCodes...), custody.AccountBank)
		balances, err = s.ledger.AccountBalances(ctx, now, codes)
		return err
	})
	if err := g.Wait(); err != nil {
		return ReconciliationReport{}, err
	}

	custodyByCode := make(map[string]float64, len(totals))
	for _, t := range totals {
		custodyByCode[t.AccountCode] = t.Total
	}
	ledgerByCode := make(map[string]float64, len(balances))
	for _, b := range balances {
		ledgerByCode[b.AccountCode] = b.Balance
	}

	report := ReconciliationReport{AsOf: now, Balanced: true, Lines: make([]ReconciliationLine, 0, len(cashAccountCodes))}
	for _, code := range cashAccountCodes {
		line := ReconciliationLine{
			AccountCode:   code,
			CustodyTotal:  round(custodyByCode[code]),
			LedgerBalance: round(ledgerByCode[code]),
		}
		line.Difference = round(line.CustodyTotal - line.LedgerBalance)
		line.Match = line.Difference >= -reconciliationEpsilon && line.Difference <= reconciliationEpsilon
		if !line.Match {
			report.Balanced = false
		}
		report.Lines = append(report.Lines, line)
	}
	report.BankLedgerBalance = round(ledgerByCode[custody.AccountBank])
	return report, nil
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
