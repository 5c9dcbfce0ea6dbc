package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context, limit int) ([]Entry, error)
	GetEntry(ctx context.Context, entryID int64) (Entry, error)
	AccountBalances(ctx context.Context, asOf time.Time, accountCodes []string) ([]AccountBalance, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, in CreateEntryInput, status EntryStatus) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) error
	LinkSource(ctx context.Context, module string, entityID uuid.UUID, txnType string, entryID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT id, number, entry_date, description, reference, source_module, source_entity_id, source_txn_type, created_by, status, posted_at, created_at, updated_at
FROM journal_entries ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Number, &e.EntryDate, &e.Description, &e.Reference, &e.SourceModule, &e.SourceEntityID, &e.SourceTxnType, &e.CreatedBy, &e.Status, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetEntry(ctx context.Context, entryID int64) (Entry, error) {
	var e Entry
	err := r.db.QueryRow(ctx, `SELECT id, number, entry_date, description, reference, source_module, source_entity_id, source_txn_type, created_by, status, posted_at, created_at, updated_at
FROM journal_entries WHERE id = $1`, entryID).
		Scan(&e.ID, &e.Number, &e.EntryDate, &e.Description, &e.Reference, &e.SourceModule, &e.SourceEntityID, &e.SourceTxnType, &e.CreatedBy, &e.Status, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, entry_id, account_code, debit, credit, description, created_at FROM journal_lines WHERE entry_id = $1 ORDER BY id ASC`, entryID)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountCode, &line.Debit, &line.Credit, &line.Description, &line.CreatedAt); err != nil {
			return Entry{}, err
		}
		e.Lines = append(e.Lines, line)
	}
	return e, rows.Err()
}

func (r *repository) AccountBalances(ctx context.Context, asOf time.Time, accountCodes []string) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT l.account_code, COALESCE(SUM(l.debit - l.credit), 0)::double precision
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.status = 'POSTED' AND e.entry_date <= $1 AND l.account_code = ANY($2)
GROUP BY l.account_code
ORDER BY l.account_code`, asOf, accountCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountCode, &b.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, in CreateEntryInput, status EntryStatus) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, description, reference, source_module, source_entity_id, source_txn_type, created_by, status, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8, CASE WHEN $8 = 'POSTED' THEN NOW() ELSE NULL END)
RETURNING id, number, posted_at, created_at, updated_at`,
		in.EntryDate, in.Description, in.Reference, in.SourceModule, in.SourceEntityID, in.SourceTxnType, in.CreatedBy, status)
	var entry Entry
	entry.EntryDate = in.EntryDate
	entry.Description = in.Description
	entry.Reference = in.Reference
	entry.SourceModule = in.SourceModule
	entry.SourceEntityID = in.SourceEntityID
	entry.SourceTxnType = in.SourceTxnType
	entry.CreatedBy = in.CreatedBy
	entry.Status = status
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_code, debit, credit, description)
VALUES ($1,$2,$3,$4,$5)`, entryID, line.AccountCode, toNumeric(line.Debit), toNumeric(line.Credit), line.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, entityID uuid.UUID, txnType string, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_source_links (source_module, source_entity_id, source_txn_type, entry_id) VALUES ($1,$2,$3,$4)`, module, entityID, txnType, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_source_links" {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
