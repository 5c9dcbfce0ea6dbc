package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/amanah-kas/amanah-kas/internal/shared"
)

// AuditPort records journal activity in the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts balanced journal entries on behalf of source modules.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns recent journal entries.
func (s *Service) List(ctx context.Context, limit int) ([]Entry, error) {
	return s.repo.List(ctx, limit)
}

// Get loads a journal entry with its lines.
func (s *Service) Get(ctx context.Context, entryID int64) (Entry, error) {
	return s.repo.GetEntry(ctx, entryID)
}

// CreateEntry validates and persists a journal entry. With AutoPost the entry
// is posted immediately; otherwise it is stored as a draft. The source link
// guarantees a source transaction produces at most one entry.
func (s *Service) CreateEntry(ctx context.Context, input CreateEntryInput) (Entry, error) {
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	status := EntryStatusDraft
	if input.AutoPost {
		status = EntryStatusPosted
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertEntry(ctx, input, status)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceEntityID, input.SourceTxnType, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toLines(inserted.ID, input.Lines, s.now())
		entry = inserted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.CreatedBy,
			Action:   "journal.create",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":          entry.Number,
				"source_module":   input.SourceModule,
				"source_entity":   input.SourceEntityID.String(),
				"source_txn_type": input.SourceTxnType,
				"status":          string(status),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// AccountBalances returns net posted balances for the requested accounts.
func (s *Service) AccountBalances(ctx context.Context, asOf time.Time, accountCodes []string) ([]AccountBalance, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.repo.AccountBalances(ctx, asOf, accountCodes)
}

func toLines(entryID int64, lines []LineInput, ts time.Time) []Line {
	out := make([]Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, Line{
			EntryID:     entryID,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
			CreatedAt:   ts,
		})
	}
	return out
}
