package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/amanah-kas/amanah-kas/internal/shared"
)

// BankDirectory answers whether an actor may act for the central bank account.
type BankDirectory interface {
	IsBankAdmin(ctx context.Context, userID int64) (bool, error)
}

// AuditPort records approval decisions in the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service decides approval requests. Routing and multi-stage workflows stay
// outside this engine; a request is a single PENDING gate.
type Service struct {
	repo  Repository
	bank  BankDirectory
	audit AuditPort
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, bank BankDirectory, audit AuditPort) *Service {
	return &Service{repo: repo, bank: bank, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get loads a request.
func (s *Service) Get(ctx context.Context, requestID int64) (Request, error) {
	return s.repo.Get(ctx, requestID)
}

// ListPending returns undecided requests for a workflow, oldest first.
func (s *Service) ListPending(ctx context.Context, workflowCode string, limit int) ([]Request, error) {
	if workflowCode == "" {
		workflowCode = WorkflowCashDeposit
	}
	return s.repo.ListPending(ctx, workflowCode, limit)
}

// Approve marks a pending request APPROVED.
func (s *Service) Approve(ctx context.Context, requestID, actorID int64, note string) (Request, error) {
	return s.decide(ctx, requestID, actorID, StatusApproved, note)
}

// Reject marks a pending request REJECTED.
func (s *Service) Reject(ctx context.Context, requestID, actorID int64, note string) (Request, error) {
	return s.decide(ctx, requestID, actorID, StatusRejected, note)
}

func (s *Service) decide(ctx context.Context, requestID, actorID int64, status RequestStatus, note string) (Request, error) {
	current, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if err := s.authoriseDecider(ctx, current, actorID); err != nil {
		return Request{}, err
	}
	decided, err := s.repo.UpdateDecision(ctx, requestID, status, actorID, note)
	if err != nil {
		return Request{}, err
	}
	s.recordAudit(ctx, actorID, "approval."+actionName(status), decided, note)
	return decided, nil
}

func (s *Service) authoriseDecider(ctx context.Context, req Request, actorID int64) error {
	if req.WorkflowCode != WorkflowCashDeposit {
		return fmt.Errorf("approval: unknown workflow %q", req.WorkflowCode)
	}
	if s.bank == nil {
		return ErrForbidden
	}
	isBank, err := s.bank.IsBankAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !isBank {
		return ErrForbidden
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, req Request, note string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "approval_request",
		EntityID: fmt.Sprintf("%d", req.ID),
		Meta: map[string]any{
			"workflow":    req.WorkflowCode,
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
			"note":        note,
		},
		At: s.now(),
	})
}

func actionName(status RequestStatus) string {
	switch status {
	case StatusApproved:
		return "approve"
	case StatusRejected:
		return "reject"
	case StatusCancelled:
		return "cancel"
	default:
		return "decide"
	}
}
