package custody

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists custody records. Every mutation is a single guarded
// statement so the balance check and the write can never be observed apart.
type Repository interface {
	GetActiveByUser(ctx context.Context, userID int64) (Custody, error)
	LatestByUser(ctx context.Context, userID int64) (Custody, error)
	GetByID(ctx context.Context, id int64) (Custody, error)
	Insert(ctx context.Context, c Custody) (Custody, error)
	Credit(ctx context.Context, custodyID int64, amount float64, at time.Time) (Custody, error)
	Deactivate(ctx context.Context, userID, actorID int64, reason string, at time.Time) (Custody, error)
	TotalsByAccountCode(ctx context.Context) ([]AccountTotal, error)
	Overdue(ctx context.Context, before time.Time) ([]Custody, error)
	BalancesByRole(ctx context.Context, scope RoleScope) ([]RoleBalance, error)
}

// NewRepository creates a PostgreSQL-backed custody repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

const custodyColumns = `id, user_id, role, account_code, status,
	current_balance, total_received, total_transferred, last_transaction_at,
	unit_id, area_id, forum_id,
	deactivated_at, deactivated_by, COALESCE(deactivation_reason, ''),
	created_at, updated_at`

func scanCustody(row pgx.Row) (Custody, error) {
	var c Custody
	err := row.Scan(
		&c.ID, &c.UserID, &c.Role, &c.AccountCode, &c.Status,
		&c.CurrentBalance, &c.TotalReceived, &c.TotalTransferred, &c.LastTransactionAt,
		&c.UnitID, &c.AreaID, &c.ForumID,
		&c.DeactivatedAt, &c.DeactivatedBy, &c.DeactivationReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Custody{}, ErrNotFound
	}
	if err != nil {
		return Custody{}, err
	}
	return c, nil
}

func (r *pgxRepository) GetActiveByUser(ctx context.Context, userID int64) (Custody, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+custodyColumns+`
		FROM cash_custodies
		WHERE user_id = $1 AND status = 'ACTIVE'`, userID)
	return scanCustody(row)
}

// LatestByUser returns the user's most recent custody regardless of status.
// Used to distinguish a suspended holder from a first-time collector.
func (r *pgxRepository) LatestByUser(ctx context.Context, userID int64) (Custody, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+custodyColumns+`
		FROM cash_custodies
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	return scanCustody(row)
}

func (r *pgxRepository) GetByID(ctx context.Context, id int64) (Custody, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+custodyColumns+`
		FROM cash_custodies
		WHERE id = $1`, id)
	return scanCustody(row)
}

// Insert creates a fresh ACTIVE custody with a zero balance. The partial
// unique index on (user_id) WHERE status = 'ACTIVE' turns a concurrent
// duplicate into ErrAlreadyActive; the caller re-reads the winner.
func (r *pgxRepository) Insert(ctx context.Context, c Custody) (Custody, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO cash_custodies (user_id, role, account_code, status, current_balance, total_received, total_transferred, unit_id, area_id, forum_id)
		VALUES ($1, $2, $3, 'ACTIVE', 0, 0, 0, $4, $5, $6)
		RETURNING `+custodyColumns,
		c.UserID, string(c.Role), c.AccountCode, c.UnitID, c.AreaID, c.ForumID)
	created, err := scanCustody(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Custody{}, ErrAlreadyActive
		}
		return Custody{}, err
	}
	return created, nil
}

func (r *pgxRepository) Credit(ctx context.Context, custodyID int64, amount float64, at time.Time) (Custody, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cash_custodies
		SET current_balance = current_balance + $2,
		    total_received = total_received + $2,
		    last_transaction_at = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'ACTIVE'`, custodyID, amount, at)
	if err != nil {
		return Custody{}, err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, custodyID); err != nil {
			return Custody{}, err
		}
		return Custody{}, ErrNotActive
	}
	return r.GetByID(ctx, custodyID)
}

// Deactivate closes the user's ACTIVE custody. The balance guard lives in
// the WHERE clause so a concurrent credit cannot slip money into a record
// that is being closed.
func (r *pgxRepository) Deactivate(ctx context.Context, userID, actorID int64, reason string, at time.Time) (Custody, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		UPDATE cash_custodies
		SET status = 'INACTIVE',
		    deactivated_at = $3,
		    deactivated_by = $2,
		    deactivation_reason = $4,
		    updated_at = NOW()
		WHERE user_id = $1 AND status = 'ACTIVE' AND current_balance = 0
		RETURNING id`, userID, actorID, at, reason).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := r.GetActiveByUser(ctx, userID); err != nil {
			return Custody{}, err
		}
		return Custody{}, ErrBalanceNotZero
	}
	if err != nil {
		return Custody{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *pgxRepository) TotalsByAccountCode(ctx context.Context) ([]AccountTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account_code, COALESCE(SUM(current_balance), 0)::double precision, COUNT(*)
		FROM cash_custodies
		WHERE status = 'ACTIVE'
		GROUP BY account_code
		ORDER BY account_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []AccountTotal
	for rows.Next() {
		var t AccountTotal
		if err := rows.Scan(&t.AccountCode, &t.Total, &t.ActiveCount); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *pgxRepository) Overdue(ctx context.Context, before time.Time) ([]Custody, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+custodyColumns+`
		FROM cash_custodies
		WHERE status = 'ACTIVE'
		  AND current_balance > 0
		  AND COALESCE(last_transaction_at, created_at) < $1
		ORDER BY COALESCE(last_transaction_at, created_at)`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overdue []Custody
	for rows.Next() {
		c, err := scanCustody(rows)
		if err != nil {
			return nil, err
		}
		overdue = append(overdue, c)
	}
	return overdue, rows.Err()
}

func (r *pgxRepository) BalancesByRole(ctx context.Context, scope RoleScope) ([]RoleBalance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role, COALESCE(SUM(current_balance), 0)::double precision, COUNT(*)
		FROM cash_custodies
		WHERE status = 'ACTIVE'
		  AND ($1::bigint IS NULL OR forum_id = $1)
		  AND ($2::bigint IS NULL OR area_id = $2)
		GROUP BY role
		ORDER BY role`, scope.ForumID, scope.AreaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []RoleBalance
	for rows.Next() {
		var b RoleBalance
		if err := rows.Scan(&b.Role, &b.Total, &b.Count); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
