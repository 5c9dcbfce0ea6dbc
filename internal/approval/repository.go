package approval

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides persistence for approval requests. Creation happens
// inside the owning module's transaction; this surface covers decisions and
// queries.
type Repository interface {
	Get(ctx context.Context, requestID int64) (Request, error)
	ListPending(ctx context.Context, workflowCode string, limit int) ([]Request, error)
	UpdateDecision(ctx context.Context, requestID int64, status RequestStatus, decidedBy int64, note string) (Request, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const requestColumns = `id, workflow_code, entity_type, entity_id, forum_id, area_id, unit_id, requested_by, status, decided_by, decided_at, COALESCE(decision_note, ''), created_at, updated_at`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.WorkflowCode, &req.EntityType, &req.EntityID, &req.ForumID, &req.AreaID, &req.UnitID, &req.RequestedBy, &req.Status, &req.DecidedBy, &req.DecidedAt, &req.DecisionNote, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	return req, nil
}

func (r *repository) Get(ctx context.Context, requestID int64) (Request, error) {
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, requestID)
	return scanRequest(row)
}

func (r *repository) ListPending(ctx context.Context, workflowCode string, limit int) ([]Request, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE status = 'PENDING' AND workflow_code = $1 ORDER BY created_at ASC LIMIT $2`, workflowCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateDecision transitions a PENDING request. The status guard in the WHERE
// clause makes concurrent decisions race-safe: the loser sees zero rows.
func (r *repository) UpdateDecision(ctx context.Context, requestID int64, status RequestStatus, decidedBy int64, note string) (Request, error) {
	row := r.db.QueryRow(ctx, `UPDATE approval_requests
SET status = $2, decided_by = $3, decided_at = NOW(), decision_note = $4, updated_at = NOW()
WHERE id = $1 AND status = 'PENDING'
RETURNING `+requestColumns, requestID, status, decidedBy, note)
	req, err := scanRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Request{}, err
	}
	// Zero rows: either missing or already decided.
	if _, getErr := r.Get(ctx, requestID); getErr != nil {
		return Request{}, getErr
	}
	return Request{}, ErrAlreadyDecided
}
