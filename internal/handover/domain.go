// Package handover runs the transfer state machine between custodies: a
// sender initiates, the named receiver acknowledges, rejects, or the sender
// cancels. Acknowledgement posts the ledger entry and moves the balances in
// one transaction; bank deposits additionally wait for approval.
package handover

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
)

// Status enumerates handover states. INITIATED is the only non-terminal
// state; the other three are final.
type Status string

const (
	StatusInitiated    Status = "INITIATED"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusRejected     Status = "REJECTED"
	StatusCancelled    Status = "CANCELLED"
)

// Type distinguishes routine transfers from the closing transfer of an
// outgoing administrator.
type Type string

const (
	TypeNormal          Type = "NORMAL"
	TypeAdminTransition Type = "ADMIN_TRANSITION"
)

// Handover is one transfer attempt. Rows are append-only; a terminal status
// never changes again.
type Handover struct {
	ID                int64          `json:"id"`
	PublicID          uuid.UUID      `json:"public_id"`
	Number            string         `json:"number"`
	FromUserID        int64          `json:"from_user_id"`
	FromRole          hierarchy.Role `json:"from_role"`
	FromCustodyID     int64          `json:"from_custody_id"`
	FromAccountCode   string         `json:"from_account_code"`
	ToUserID          int64          `json:"to_user_id"`
	ToRole            hierarchy.Role `json:"to_role"`
	ToCustodyID       *int64         `json:"to_custody_id,omitempty"`
	ToAccountCode     string         `json:"to_account_code"`
	Amount            float64        `json:"amount"`
	Type              Type           `json:"type"`
	Status            Status         `json:"status"`
	RequiresApproval  bool           `json:"requires_approval"`
	ApprovalRequestID *int64         `json:"approval_request_id,omitempty"`
	JournalEntryID    *int64         `json:"journal_entry_id,omitempty"`
	Notes             string         `json:"notes,omitempty"`
	ReceiverNotes     string         `json:"receiver_notes,omitempty"`
	RejectionReason   string         `json:"rejection_reason,omitempty"`
	SourceHandoverID  *int64         `json:"source_handover_id,omitempty"`
	UnitID            *int64         `json:"unit_id,omitempty"`
	AreaID            *int64         `json:"area_id,omitempty"`
	ForumID           *int64         `json:"forum_id,omitempty"`
	InitiatedAt       time.Time      `json:"initiated_at"`
	AcknowledgedAt    *time.Time     `json:"acknowledged_at,omitempty"`
	RejectedAt        *time.Time     `json:"rejected_at,omitempty"`
	CancelledAt       *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusAcknowledged || s == StatusRejected || s == StatusCancelled
}

// allowedTargets maps each sender role to the roles it may hand cash to.
// Cash only flows upward through the hierarchy.
var allowedTargets = map[hierarchy.Role][]hierarchy.Role{
	hierarchy.RoleAgent:      {hierarchy.RoleUnitAdmin, hierarchy.RoleAreaAdmin, hierarchy.RoleForumAdmin, hierarchy.RoleBank},
	hierarchy.RoleUnitAdmin:  {hierarchy.RoleAreaAdmin, hierarchy.RoleForumAdmin, hierarchy.RoleBank},
	hierarchy.RoleAreaAdmin:  {hierarchy.RoleForumAdmin, hierarchy.RoleBank},
	hierarchy.RoleForumAdmin: {hierarchy.RoleBank},
}

// PathAllowed reports whether a sender role may transfer to a receiver role.
func PathAllowed(from, to hierarchy.Role) bool {
	for _, allowed := range allowedTargets[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// FormatNumber renders the human-readable handover number, e.g.
// CHO-2025-00042. Sequences reset each calendar year.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("CHO-%04d-%05d", year, seq)
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

var (
	ErrNotFound               = errors.New("handover: not found")
	ErrValidation             = errors.New("handover: invalid input")
	ErrInvalidTransferPath    = errors.New("handover: transfer path not permitted")
	ErrInvalidRecipient       = errors.New("handover: recipient is not the assigned admin")
	ErrInsufficientBalance    = errors.New("handover: insufficient balance")
	ErrForbidden              = errors.New("handover: actor not authorised")
	ErrInvalidStateTransition = errors.New("handover: invalid state transition")
	ErrApprovalPending        = errors.New("handover: approval not granted yet")
)
