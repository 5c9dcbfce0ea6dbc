package approval

import (
	"errors"
	"time"
)

// WorkflowCashDeposit gates handovers into the central bank account.
const WorkflowCashDeposit = "CASH_DEPOSIT"

// RequestStatus enumerates approval request lifecycle values.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// Request is a single-stage approval gate for one entity.
type Request struct {
	ID           int64         `json:"id"`
	WorkflowCode string        `json:"workflow_code"`
	EntityType   string        `json:"entity_type"`
	EntityID     int64         `json:"entity_id"`
	ForumID      *int64        `json:"forum_id,omitempty"`
	AreaID       *int64        `json:"area_id,omitempty"`
	UnitID       *int64        `json:"unit_id,omitempty"`
	RequestedBy  int64         `json:"requested_by"`
	Status       RequestStatus `json:"status"`
	DecidedBy    *int64        `json:"decided_by,omitempty"`
	DecidedAt    *time.Time    `json:"decided_at,omitempty"`
	DecisionNote string        `json:"decision_note,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

var (
	// ErrNotFound indicates the request is missing.
	ErrNotFound = errors.New("approval: request not found")
	// ErrAlreadyDecided indicates the request left PENDING before this decision.
	ErrAlreadyDecided = errors.New("approval: request already decided")
	// ErrForbidden indicates the actor may not decide this request.
	ErrForbidden = errors.New("approval: actor not authorised")
)
