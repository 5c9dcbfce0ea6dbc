package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// repository membaca audit_logs memakai pgx.
type repository struct {
	db *pgxpool.Pool
}

// NewRepository membuat Repository berbasis pgx.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const timelineColumns = `occurred_at, actor_id, action, entity, entity_id, meta`

func (r *repository) TimelineWindow(ctx context.Context, q TimelineQuery) ([]TimelineRow, error) {
	where, args := buildFilter(q)
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		timelineColumns, where, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit timeline: %w", err)
	}
	defer rows.Close()
	return scanTimeline(rows)
}

func (r *repository) TimelineAll(ctx context.Context, q TimelineQuery) ([]TimelineRow, error) {
	where, args := buildFilter(q)
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY occurred_at ASC, id ASC`, timelineColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit export: %w", err)
	}
	defer rows.Close()
	return scanTimeline(rows)
}

func (r *repository) CountTimeline(ctx context.Context, q TimelineQuery) (int, error) {
	where, args := buildFilter(q)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM audit_logs%s`, where)

	var total int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count audit timeline: %w", err)
	}
	return total, nil
}

// buildFilter menyusun klausa WHERE dinamis dari filter yang terisi.
func buildFilter(q TimelineQuery) (string, []any) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 5)
	add := func(expr string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}

	if !q.From.IsZero() {
		add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at < $%d", q.To)
	}
	if q.ActorID > 0 {
		add("actor_id = $%d", q.ActorID)
	}
	if q.Entity != "" {
		add("entity = $%d", q.Entity)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type timelineRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTimeline(rows timelineRows) ([]TimelineRow, error) {
	result := make([]TimelineRow, 0)
	for rows.Next() {
		var (
			row     TimelineRow
			rawMeta []byte
		)
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &rawMeta); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &row.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
