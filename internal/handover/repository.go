package handover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amanah-kas/amanah-kas/internal/approval"
	"github.com/amanah-kas/amanah-kas/internal/custody"
)

// Repository encapsulates DB operations for handovers.
type Repository interface {
	GetByID(ctx context.Context, id int64) (Handover, error)
	PendingIncoming(ctx context.Context, userID int64) ([]Handover, error)
	PendingOutgoing(ctx context.Context, userID int64) ([]Handover, error)
	PendingForBank(ctx context.Context) ([]Handover, error)
	PendingAll(ctx context.Context) ([]Handover, error)
	History(ctx context.Context, userID int64, limit int) ([]Handover, error)
	HistoryTotals(ctx context.Context, userID int64) (HistoryTotals, error)
	SumInitiatedOutgoing(ctx context.Context, custodyID int64) (float64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. Besides the
// handover rows themselves it carries the custody, journal and approval
// statements the state machine must run atomically with a transition.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Handover, error)
	NextSequence(ctx context.Context, year int) (int, error)
	Insert(ctx context.Context, h Handover) (Handover, error)
	SetApprovalRequest(ctx context.Context, handoverID, requestID int64) error
	MarkAcknowledged(ctx context.Context, id, journalEntryID int64, notes string, at time.Time) (Handover, error)
	MarkRejected(ctx context.Context, id int64, reason string, at time.Time) (Handover, error)
	MarkCancelled(ctx context.Context, id int64, at time.Time) (Handover, error)

	// Custody statements duplicated from the custody repository; needed here
	// for transaction context.
	CustodyForUpdate(ctx context.Context, custodyID int64) (float64, custody.Status, error)
	DebitCustody(ctx context.Context, custodyID int64, amount float64, at time.Time) error
	CreditCustody(ctx context.Context, custodyID int64, amount float64, at time.Time) error

	// Journal posting recorded at acknowledgement.
	InsertJournalEntry(ctx context.Context, in JournalPosting) (int64, error)

	// Approval request lifecycle for bank deposits.
	InsertApprovalRequest(ctx context.Context, in ApprovalSubmission) (int64, error)
	ApprovalRequestStatus(ctx context.Context, requestID int64) (approval.RequestStatus, error)
	CancelApprovalRequest(ctx context.Context, requestID int64, at time.Time) error
}

// JournalPosting is the balanced two-line entry booked when a handover
// completes: debit the receiver's account, credit the sender's.
type JournalPosting struct {
	EntryDate     time.Time
	Description   string
	Reference     string
	SourceID      uuid.UUID
	TxnType       string
	DebitAccount  string
	CreditAccount string
	Amount        float64
	CreatedBy     int64
}

// ApprovalSubmission opens the approval gate for one bank deposit.
type ApprovalSubmission struct {
	EntityID    int64
	ForumID     *int64
	AreaID      *int64
	UnitID      *int64
	RequestedBy int64
}

// HistoryTotals aggregates a user's completed transfers.
type HistoryTotals struct {
	TotalSent     float64 `json:"total_sent"`
	TotalReceived float64 `json:"total_received"`
	CountSent     int     `json:"count_sent"`
	CountReceived int     `json:"count_received"`
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const handoverColumns = `id, public_id, number,
	from_user_id, from_role, from_custody_id, from_account_code,
	to_user_id, to_role, to_custody_id, to_account_code,
	amount, type, status, requires_approval, approval_request_id, journal_entry_id,
	COALESCE(notes, ''), COALESCE(receiver_notes, ''), COALESCE(rejection_reason, ''),
	source_handover_id, unit_id, area_id, forum_id,
	initiated_at, acknowledged_at, rejected_at, cancelled_at, created_at, updated_at`

func scanHandover(row pgx.Row) (Handover, error) {
	var h Handover
	err := row.Scan(
		&h.ID, &h.PublicID, &h.Number,
		&h.FromUserID, &h.FromRole, &h.FromCustodyID, &h.FromAccountCode,
		&h.ToUserID, &h.ToRole, &h.ToCustodyID, &h.ToAccountCode,
		&h.Amount, &h.Type, &h.Status, &h.RequiresApproval, &h.ApprovalRequestID, &h.JournalEntryID,
		&h.Notes, &h.ReceiverNotes, &h.RejectionReason,
		&h.SourceHandoverID, &h.UnitID, &h.AreaID, &h.ForumID,
		&h.InitiatedAt, &h.AcknowledgedAt, &h.RejectedAt, &h.CancelledAt, &h.CreatedAt, &h.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Handover{}, ErrNotFound
	}
	if err != nil {
		return Handover{}, err
	}
	return h, nil
}

func collectHandovers(rows pgx.Rows) ([]Handover, error) {
	defer rows.Close()
	var out []Handover
	for rows.Next() {
		h, err := scanHandover(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, id int64) (Handover, error) {
	row := r.db.QueryRow(ctx, `SELECT `+handoverColumns+` FROM cash_handovers WHERE id = $1`, id)
	return scanHandover(row)
}

func (r *repository) PendingIncoming(ctx context.Context, userID int64) ([]Handover, error) {
	rows, err := r.db.Query(ctx, `SELECT `+handoverColumns+`
FROM cash_handovers
WHERE to_user_id = $1 AND status = 'INITIATED' AND to_role <> 'BANK'
ORDER BY initiated_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	return collectHandovers(rows)
}

func (r *repository) PendingOutgoing(ctx context.Context, userID int64) ([]Handover, error) {
	rows, err := r.db.Query(ctx, `SELECT `+handoverColumns+`
FROM cash_handovers
WHERE from_user_id = $1 AND status = 'INITIATED'
ORDER BY initiated_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	return collectHandovers(rows)
}

// PendingForBank lists the deposit queue. Any bank admin may work it, so the
// filter is on the target role rather than the stored receiver.
func (r *repository) PendingForBank(ctx context.Context) ([]Handover, error) {
	rows, err := r.db.Query(ctx, `SELECT `+handoverColumns+`
FROM cash_handovers
WHERE to_role = 'BANK' AND status = 'INITIATED'
ORDER BY initiated_at ASC`)
	if err != nil {
		return nil, err
	}
	return collectHandovers(rows)
}

func (r *repository) PendingAll(ctx context.Context) ([]Handover, error) {
	rows, err := r.db.Query(ctx, `SELECT `+handoverColumns+`
FROM cash_handovers
WHERE status = 'INITIATED'
ORDER BY initiated_at ASC`)
	if err != nil {
		return nil, err
	}
	return collectHandovers(rows)
}

func (r *repository) History(ctx context.Context, userID int64, limit int) ([]Handover, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+handoverColumns+`
FROM cash_handovers
WHERE from_user_id = $1 OR to_user_id = $1
ORDER BY created_at DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectHandovers(rows)
}

func (r *repository) HistoryTotals(ctx context.Context, userID int64) (HistoryTotals, error) {
	var t HistoryTotals
	err := r.db.QueryRow(ctx, `SELECT
	COALESCE(SUM(amount) FILTER (WHERE from_user_id = $1 AND status = 'ACKNOWLEDGED'), 0)::double precision,
	COALESCE(SUM(amount) FILTER (WHERE to_user_id = $1 AND status = 'ACKNOWLEDGED'), 0)::double precision,
	COUNT(*) FILTER (WHERE from_user_id = $1 AND status = 'ACKNOWLEDGED'),
	COUNT(*) FILTER (WHERE to_user_id = $1 AND status = 'ACKNOWLEDGED')
FROM cash_handovers
WHERE from_user_id = $1 OR to_user_id = $1`, userID).
		Scan(&t.TotalSent, &t.TotalReceived, &t.CountSent, &t.CountReceived)
	if err != nil {
		return HistoryTotals{}, err
	}
	return t, nil
}

// SumInitiatedOutgoing totals the custody's still-pending outgoing amounts.
// This backs the advisory available-balance check: no lock is taken, and
// acknowledgement re-validates against the real balance.
func (r *repository) SumInitiatedOutgoing(ctx context.Context, custodyID int64) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::double precision
FROM cash_handovers
WHERE from_custody_id = $1 AND status = 'INITIATED'`, custodyID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
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

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Handover, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+handoverColumns+` FROM cash_handovers WHERE id = $1 FOR UPDATE`, id)
	return scanHandover(row)
}

// NextSequence allocates the next per-year handover number atomically. The
// upsert leaves no read-then-insert window, so concurrent initiations can
// never draw the same number.
func (r *txRepository) NextSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO handover_sequences (year, seq) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET seq = handover_sequences.seq + 1
RETURNING seq`, year).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *txRepository) Insert(ctx context.Context, h Handover) (Handover, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO cash_handovers (
	number, from_user_id, from_role, from_custody_id, from_account_code,
	to_user_id, to_role, to_custody_id, to_account_code,
	amount, type, status, requires_approval, notes, source_handover_id,
	unit_id, area_id, forum_id, initiated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'INITIATED',$12,$13,$14,$15,$16,$17,$18)
RETURNING id, public_id, created_at, updated_at`,
		h.Number, h.FromUserID, string(h.FromRole), h.FromCustodyID, h.FromAccountCode,
		h.ToUserID, string(h.ToRole), h.ToCustodyID, h.ToAccountCode,
		toNumeric(h.Amount), string(h.Type), h.RequiresApproval, h.Notes, h.SourceHandoverID,
		h.UnitID, h.AreaID, h.ForumID, h.InitiatedAt)
	h.Status = StatusInitiated
	if err := row.Scan(&h.ID, &h.PublicID, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return Handover{}, err
	}
	return h, nil
}

func (r *txRepository) SetApprovalRequest(ctx context.Context, handoverID, requestID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cash_handovers SET approval_request_id = $2, updated_at = NOW() WHERE id = $1`, handoverID, requestID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkAcknowledged(ctx context.Context, id, journalEntryID int64, notes string, at time.Time) (Handover, error) {
	row := r.tx.QueryRow(ctx, `UPDATE cash_handovers
SET status = 'ACKNOWLEDGED', acknowledged_at = $2, journal_entry_id = $3, receiver_notes = $4, updated_at = NOW()
WHERE id = $1 AND status = 'INITIATED'
RETURNING `+handoverColumns, id, at, journalEntryID, notes)
	h, err := scanHandover(row)
	if errors.Is(err, ErrNotFound) {
		return Handover{}, ErrInvalidStateTransition
	}
	return h, err
}

func (r *txRepository) MarkRejected(ctx context.Context, id int64, reason string, at time.Time) (Handover, error) {
	row := r.tx.QueryRow(ctx, `UPDATE cash_handovers
SET status = 'REJECTED', rejected_at = $2, rejection_reason = $3, updated_at = NOW()
WHERE id = $1 AND status = 'INITIATED'
RETURNING `+handoverColumns, id, at, reason)
	h, err := scanHandover(row)
	if errors.Is(err, ErrNotFound) {
		return Handover{}, ErrInvalidStateTransition
	}
	return h, err
}

func (r *txRepository) MarkCancelled(ctx context.Context, id int64, at time.Time) (Handover, error) {
	row := r.tx.QueryRow(ctx, `UPDATE cash_handovers
SET status = 'CANCELLED', cancelled_at = $2, updated_at = NOW()
WHERE id = $1 AND status = 'INITIATED'
RETURNING `+handoverColumns, id, at)
	h, err := scanHandover(row)
	if errors.Is(err, ErrNotFound) {
		return Handover{}, ErrInvalidStateTransition
	}
	return h, err
}

func (r *txRepository) CustodyForUpdate(ctx context.Context, custodyID int64) (float64, custody.Status, error) {
	var balance float64
	var status custody.Status
	err := r.tx.QueryRow(ctx, `SELECT current_balance, status FROM cash_custodies WHERE id = $1 FOR UPDATE`, custodyID).
		Scan(&balance, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", custody.ErrNotFound
	}
	if err != nil {
		return 0, "", err
	}
	return balance, status, nil
}

// DebitCustody moves cash out of the sender. The balance guard in the WHERE
// clause is the invariant: a debit that would go negative matches no row.
func (r *txRepository) DebitCustody(ctx context.Context, custodyID int64, amount float64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cash_custodies
SET current_balance = current_balance - $2,
    total_transferred = total_transferred + $2,
    last_transaction_at = $3,
    updated_at = NOW()
WHERE id = $1 AND status = 'ACTIVE' AND current_balance >= $2`, custodyID, toNumeric(amount), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (r *txRepository) CreditCustody(ctx context.Context, custodyID int64, amount float64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE cash_custodies
SET current_balance = current_balance + $2,
    total_received = total_received + $2,
    last_transaction_at = $3,
    updated_at = NOW()
WHERE id = $1 AND status = 'ACTIVE'`, custodyID, toNumeric(amount), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return custody.ErrNotActive
	}
	return nil
}

// InsertJournalEntry books the balanced entry and links it back to the
// handover. Statements duplicated from the journal repository; needed here
// for transaction context.
func (r *txRepository) InsertJournalEntry(ctx context.Context, in JournalPosting) (int64, error) {
	var entryID int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, description, reference, source_module, source_entity_id, source_txn_type, created_by, status, posted_at)
VALUES ($1,$2,$3,'cash_handover',$4,$5,$6,'POSTED',NOW())
RETURNING id`,
		in.EntryDate, in.Description, in.Reference, in.SourceID, in.TxnType, in.CreatedBy).Scan(&entryID)
	if err != nil {
		return 0, err
	}
	lines := []struct {
		account string
		debit   float64
		credit  float64
	}{
		{account: in.DebitAccount, debit: in.Amount},
		{account: in.CreditAccount, credit: in.Amount},
	}
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_code, debit, credit, description)
VALUES ($1,$2,$3,$4,$5)`, entryID, line.account, toNumeric(line.debit), toNumeric(line.credit), in.Description); err != nil {
			return 0, err
		}
	}
	if _, err := r.tx.Exec(ctx, `INSERT INTO journal_source_links (source_module, source_entity_id, source_txn_type, entry_id)
VALUES ('cash_handover',$1,$2,$3)`, in.SourceID, in.TxnType, entryID); err != nil {
		return 0, err
	}
	return entryID, nil
}

func (r *txRepository) InsertApprovalRequest(ctx context.Context, in ApprovalSubmission) (int64, error) {
	var requestID int64
	err := r.tx.QueryRow(ctx, `INSERT INTO approval_requests (workflow_code, entity_type, entity_id, forum_id, area_id, unit_id, requested_by, status)
VALUES ($1,'cash_handover',$2,$3,$4,$5,$6,'PENDING')
RETURNING id`,
		approval.WorkflowCashDeposit, in.EntityID, in.ForumID, in.AreaID, in.UnitID, in.RequestedBy).Scan(&requestID)
	if err != nil {
		return 0, err
	}
	return requestID, nil
}

func (r *txRepository) ApprovalRequestStatus(ctx context.Context, requestID int64) (approval.RequestStatus, error) {
	var status approval.RequestStatus
	err := r.tx.QueryRow(ctx, `SELECT status FROM approval_requests WHERE id = $1`, requestID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", approval.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// CancelApprovalRequest withdraws a still-pending gate. A request that has
// already been decided is left untouched.
func (r *txRepository) CancelApprovalRequest(ctx context.Context, requestID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE approval_requests
SET status = 'CANCELLED', decided_at = $2, updated_at = NOW()
WHERE id = $1 AND status = 'PENDING'`, requestID, at)
	return err
}

func toNumeric(v float64) any {
	return fmt.Sprintf("%.2f", v)
}
