package journal

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoid   EntryStatus = "VOID"
)

// Entry captures posting metadata.
type Entry struct {
	ID             int64
	Number         int64
	EntryDate      time.Time
	Description    string
	Reference      string
	SourceModule   string
	SourceEntityID uuid.UUID
	SourceTxnType  string
	CreatedBy      int64
	Status         EntryStatus
	PostedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []Line
}

// Line stores a debit or credit amount against an account code.
type Line struct {
	ID          int64
	EntryID     int64
	AccountCode string
	Debit       float64
	Credit      float64
	Description string
	CreatedAt   time.Time
}

// AccountBalance is the net posted position of one account.
type AccountBalance struct {
	AccountCode string
	Balance     float64
}

var (
	// ErrNotFound indicates a missing journal entry.
	ErrNotFound = errors.New("journal: entry not found")
	// ErrTooFewLines indicates fewer than two posting lines.
	ErrTooFewLines = errors.New("journal: posting requires at least two lines")
	// ErrUnbalanced indicates debits do not equal credits.
	ErrUnbalanced = errors.New("journal: debits and credits do not balance")
	// ErrSourceAlreadyLinked indicates the source transaction already produced an entry.
	ErrSourceAlreadyLinked = errors.New("journal: source already linked")
	// ErrInvalidStatus occurs when action violates status workflow.
	ErrInvalidStatus = errors.New("journal: invalid entry status")
)
