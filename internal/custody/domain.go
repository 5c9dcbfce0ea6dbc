// Package custody owns the cash-in-hand ledger: one balance-bearing record
// per cash-handling person, credited on collection and debited when a
// handover completes. Balances never go negative and only one ACTIVE record
// may exist per user at a time.
package custody

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
)

// Status enumerates custody lifecycle states.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Ledger account codes for cash positions, one per hierarchy level plus the
// central bank account deposits settle into.
const (
	AccountAgentCash      = "1101"
	AccountUnitAdminCash  = "1102"
	AccountAreaAdminCash  = "1103"
	AccountForumAdminCash = "1104"
	AccountBank           = "1010"
)

// AccountCodeForRole maps a role to the ledger account its cash is booked
// under. The mapping is closed; an unknown role is an error rather than a
// silent default.
func AccountCodeForRole(role hierarchy.Role) (string, error) {
	switch role {
	case hierarchy.RoleAgent:
		return AccountAgentCash, nil
	case hierarchy.RoleUnitAdmin:
		return AccountUnitAdminCash, nil
	case hierarchy.RoleAreaAdmin:
		return AccountAreaAdminCash, nil
	case hierarchy.RoleForumAdmin:
		return AccountForumAdminCash, nil
	case hierarchy.RoleBank:
		return AccountBank, nil
	default:
		return "", fmt.Errorf("custody: no account code for role %q", role)
	}
}

// Custody is one user's cash position. Records are never deleted;
// deactivation closes them out once the balance reaches zero.
type Custody struct {
	ID                 int64           `json:"id"`
	UserID             int64           `json:"user_id"`
	Role               hierarchy.Role  `json:"role"`
	AccountCode        string          `json:"account_code"`
	Status             Status          `json:"status"`
	CurrentBalance     float64         `json:"current_balance"`
	TotalReceived      float64         `json:"total_received"`
	TotalTransferred   float64         `json:"total_transferred"`
	LastTransactionAt  *time.Time      `json:"last_transaction_at,omitempty"`
	UnitID             *int64          `json:"unit_id,omitempty"`
	AreaID             *int64          `json:"area_id,omitempty"`
	ForumID            *int64          `json:"forum_id,omitempty"`
	DeactivatedAt      *time.Time      `json:"deactivated_at,omitempty"`
	DeactivatedBy      *int64          `json:"deactivated_by,omitempty"`
	DeactivationReason string          `json:"deactivation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// AccountTotal aggregates ACTIVE custody balances per ledger account.
type AccountTotal struct {
	AccountCode string  `json:"account_code"`
	Total       float64 `json:"total"`
	ActiveCount int     `json:"active_count"`
}

// RoleBalance aggregates ACTIVE custody balances per hierarchy level.
type RoleBalance struct {
	Role  hierarchy.Role `json:"role"`
	Total float64        `json:"total"`
	Count int            `json:"count"`
}

// RoleScope narrows role-balance aggregation to one forum or area.
type RoleScope struct {
	ForumID *int64
	AreaID  *int64
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

var (
	ErrNotFound       = errors.New("custody: not found")
	ErrNotActive      = errors.New("custody: not active")
	ErrValidation     = errors.New("custody: invalid input")
	ErrAlreadyActive  = errors.New("custody: active record already exists")
	ErrBalanceNotZero = errors.New("custody: balance not zero")
)
