package events

import (
	"context"
	"time"
)

// Type identifies a domain event.
type Type string

// Events published by the custody and handover modules. Names are part of the
// external contract; consumers subscribe by these values.
const (
	CashCustodyCreated       Type = "CashCustodyCreated"
	CashCustodyIncreased     Type = "CashCustodyIncreased"
	CashCustodyDeactivated   Type = "CashCustodyDeactivated"
	CashHandoverInitiated    Type = "CashHandoverInitiated"
	CashHandoverAcknowledged Type = "CashHandoverAcknowledged"
	CashHandoverRejected     Type = "CashHandoverRejected"
	CashHandoverCancelled    Type = "CashHandoverCancelled"
	CashDepositedToBank      Type = "CashDepositedToBank"
)

const (
	// QueueEvents is the asynq queue carrying domain events.
	QueueEvents = "events"
	// TaskTypeDispatch is the asynq task type wrapping one event.
	TaskTypeDispatch = "events:dispatch"
)

// Event is the envelope published after a custody or handover state change.
// Delivery is at-least-once; consumers must be idempotent.
type Event struct {
	Type        Type           `json:"type"`
	EntityID    int64          `json:"entity_id"`
	Number      string         `json:"number,omitempty"`
	Amount      float64        `json:"amount,omitempty"`
	ActorUserID int64          `json:"actor_user_id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Publisher delivers domain events to interested consumers. Publication
// happens after the source transaction commits and never aborts it.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
