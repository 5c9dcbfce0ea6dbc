package audit

import (
	"context"
	"errors"

	"github.com/amanah-kas/amanah-kas/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository menyediakan akses baca ke tabel audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, q TimelineQuery) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, q TimelineQuery) ([]TimelineRow, error)
	CountTimeline(ctx context.Context, q TimelineQuery) (int, error)
}

// Result membungkus hasil timeline dengan metadata paging.
type Result struct {
	Rows   []TimelineRow
	Paging shared.Pagination
}

// Service mengoordinasikan pengambilan jejak audit untuk timeline dan ekspor.
type Service struct {
	repo Repository
}

// NewService membuat service audit baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil jejak audit terbaru dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}

	q := filters.query()
	total, err := s.repo.CountTimeline(ctx, q)
	if err != nil {
		return Result{}, err
	}

	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize
	rows, err := s.repo.TimelineWindow(ctx, q)
	if err != nil {
		return Result{}, err
	}

	return Result{Rows: rows, Paging: shared.NewPagination(page, pageSize, total)}, nil
}

// Export mengambil seluruh jejak audit dalam rentang filter tanpa paging,
// terurut kronologis untuk diunduh sebagai CSV.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, filters.query())
}
