package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountCode string
	Debit       float64
	Credit      float64
	Description string
}

// CreateEntryInput groups fields required to create a journal entry.
type CreateEntryInput struct {
	EntryDate      time.Time
	Description    string
	Reference      string
	SourceModule   string
	SourceEntityID uuid.UUID
	SourceTxnType  string
	CreatedBy      int64
	AutoPost       bool
	Lines          []LineInput
}

// Validate ensures posting input meets minimum criteria.
func (in CreateEntryInput) Validate() error {
	if in.EntryDate.IsZero() {
		return errors.New("journal: entry date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("journal: line %d missing account code", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("journal: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("journal: line %d cannot be both debit and credit", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if fmt.Sprintf("%.2f", debit) != fmt.Sprintf("%.2f", credit) {
		return ErrUnbalanced
	}
	if in.SourceModule == "" {
		return errors.New("journal: source module required")
	}
	if in.SourceEntityID == uuid.Nil {
		return errors.New("journal: source entity id required")
	}
	if in.SourceTxnType == "" {
		return errors.New("journal: source transaction type required")
	}
	return nil
}
