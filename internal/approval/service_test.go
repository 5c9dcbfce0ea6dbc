package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryApprovalRepo struct {
	requests map[int64]Request
	nextID   int64
}

func newMemoryApprovalRepo() *memoryApprovalRepo {
	return &memoryApprovalRepo{requests: make(map[int64]Request)}
}

func (r *memoryApprovalRepo) add(workflow string, entityID int64) Request {
	r.nextID++
	req := Request{
		ID:           r.nextID,
		WorkflowCode: workflow,
		EntityType:   "cash_handover",
		EntityID:     entityID,
		RequestedBy:  101,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}
	r.requests[req.ID] = req
	return req
}

func (r *memoryApprovalRepo) Get(ctx context.Context, requestID int64) (Request, error) {
	req, ok := r.requests[requestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (r *memoryApprovalRepo) ListPending(ctx context.Context, workflowCode string, limit int) ([]Request, error) {
	var out []Request
	for _, req := range r.requests {
		if req.Status == StatusPending && req.WorkflowCode == workflowCode {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memoryApprovalRepo) UpdateDecision(ctx context.Context, requestID int64, status RequestStatus, decidedBy int64, note string) (Request, error) {
	req, ok := r.requests[requestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	if req.Status != StatusPending {
		return Request{}, ErrAlreadyDecided
	}
	now := time.Now()
	req.Status = status
	req.DecidedBy = &decidedBy
	req.DecidedAt = &now
	req.DecisionNote = note
	r.requests[requestID] = req
	return req, nil
}

type stubBankDirectory struct {
	admins map[int64]bool
}

func (s *stubBankDirectory) IsBankAdmin(ctx context.Context, userID int64) (bool, error) {
	return s.admins[userID], nil
}

func TestApproveDeposit(t *testing.T) {
	repo := newMemoryApprovalRepo()
	req := repo.add(WorkflowCashDeposit, 42)
	svc := NewService(repo, &stubBankDirectory{admins: map[int64]bool{500: true}}, nil)

	decided, err := svc.Approve(context.Background(), req.ID, 500, "verified against teller slip")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	require.EqualValues(t, 500, *decided.DecidedBy)
	require.NotNil(t, decided.DecidedAt)
}

func TestRejectDeposit(t *testing.T) {
	repo := newMemoryApprovalRepo()
	req := repo.add(WorkflowCashDeposit, 42)
	svc := NewService(repo, &stubBankDirectory{admins: map[int64]bool{500: true}}, nil)

	decided, err := svc.Reject(context.Background(), req.ID, 500, "amount mismatch")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, decided.Status)
	require.Equal(t, "amount mismatch", decided.DecisionNote)
}

func TestDecisionRequiresBankAdmin(t *testing.T) {
	repo := newMemoryApprovalRepo()
	req := repo.add(WorkflowCashDeposit, 42)
	svc := NewService(repo, &stubBankDirectory{admins: map[int64]bool{500: true}}, nil)

	_, err := svc.Approve(context.Background(), req.ID, 400, "")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestDecisionIsTerminal(t *testing.T) {
	repo := newMemoryApprovalRepo()
	req := repo.add(WorkflowCashDeposit, 42)
	svc := NewService(repo, &stubBankDirectory{admins: map[int64]bool{500: true}}, nil)
	ctx := context.Background()

	_, err := svc.Approve(ctx, req.ID, 500, "")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, req.ID, 500, "too late")
	require.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestListPendingDefaultsWorkflow(t *testing.T) {
	repo := newMemoryApprovalRepo()
	repo.add(WorkflowCashDeposit, 42)
	repo.add(WorkflowCashDeposit, 43)
	svc := NewService(repo, &stubBankDirectory{}, nil)

	pending, err := svc.ListPending(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}
