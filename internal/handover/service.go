package handover

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amanah-kas/amanah-kas/internal/approval"
	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/events"
	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/shared"
)

const txnHandoverAck = "HANDOVER_ACK"

// CustodyLedger is the slice of the custody service the state machine needs
// outside its own transactions.
type CustodyLedger interface {
	ByUser(ctx context.Context, userID int64) (custody.Custody, error)
	GetOrCreate(ctx context.Context, p hierarchy.Placement) (custody.Custody, error)
}

// Directory answers assignment questions for receiver validation and
// valid-receiver discovery.
type Directory interface {
	Placement(ctx context.Context, userID int64) (hierarchy.Placement, error)
	UnitAdmin(ctx context.Context, unitID int64) (int64, error)
	AreaAdmin(ctx context.Context, areaID int64) (int64, error)
	ForumAdmin(ctx context.Context, forumID int64) (int64, error)
	IsBankAdmin(ctx context.Context, userID int64) (bool, error)
	BankAdmins(ctx context.Context) ([]int64, error)
}

// AuditPort captures audit log writes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the handover state machine.
type Service struct {
	repo       Repository
	ledger     CustodyLedger
	dir        Directory
	audit      AuditPort
	events     events.Publisher
	staleAfter time.Duration
	now        func() time.Time
}

// NewService wires the handover service.
func NewService(repo Repository, ledger CustodyLedger, dir Directory, audit AuditPort, publisher events.Publisher) *Service {
	return &Service{
		repo:       repo,
		ledger:     ledger,
		dir:        dir,
		audit:      audit,
		events:     publisher,
		staleAfter: 48 * time.Hour,
		now:        time.Now,
	}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithStaleAfter overrides the age at which a pending handover is flagged
// overdue.
func (s *Service) WithStaleAfter(d time.Duration) *Service {
	if d > 0 {
		s.staleAfter = d
	}
	return s
}

// InitiateInput starts a transfer from the sender's custody.
type InitiateInput struct {
	FromUserID       int64
	ToUserID         int64
	ToRole           hierarchy.Role
	Amount           float64
	Notes            string
	Type             Type
	SourceHandoverID *int64
}

// AcknowledgeInput confirms receipt of the cash.
type AcknowledgeInput struct {
	HandoverID int64
	ActorID    int64
	Notes      string
}

// RejectInput refuses a pending handover.
type RejectInput struct {
	HandoverID int64
	ActorID    int64
	Reason     string
}

// CancelInput withdraws a pending handover.
type CancelInput struct {
	HandoverID int64
	ActorID    int64
}

// Initiate validates the transfer and records it as INITIATED. The
// available-balance check is advisory: funds stay unlocked until
// acknowledgement re-validates and moves them.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (Handover, error) {
	if in.FromUserID <= 0 || in.ToUserID <= 0 {
		return Handover{}, fmt.Errorf("%w: sender and receiver required", ErrValidation)
	}
	if in.Amount <= 0 {
		return Handover{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.FromUserID == in.ToUserID {
		return Handover{}, fmt.Errorf("%w: sender cannot receive their own handover", ErrValidation)
	}
	if in.Type == "" {
		in.Type = TypeNormal
	}
	if in.Type != TypeNormal && in.Type != TypeAdminTransition {
		return Handover{}, fmt.Errorf("%w: unknown handover type %q", ErrValidation, in.Type)
	}
	amount := round(in.Amount)

	sender, err := s.ledger.ByUser(ctx, in.FromUserID)
	if err != nil {
		if errors.Is(err, custody.ErrNotFound) {
			return Handover{}, ErrNotFound
		}
		return Handover{}, err
	}

	reserved, err := s.repo.SumInitiatedOutgoing(ctx, sender.ID)
	if err != nil {
		return Handover{}, err
	}
	available := round(sender.CurrentBalance - reserved)
	if amount > available {
		return Handover{}, ErrInsufficientBalance
	}

	if !PathAllowed(sender.Role, in.ToRole) {
		return Handover{}, ErrInvalidTransferPath
	}
	if err := s.validateRecipient(ctx, sender, in.ToUserID, in.ToRole); err != nil {
		return Handover{}, err
	}

	requiresApproval := in.ToRole == hierarchy.RoleBank

	var toCustodyID *int64
	toAccount := custody.AccountBank
	if in.ToRole != hierarchy.RoleBank {
		receiver, err := s.ledger.GetOrCreate(ctx, receiverPlacement(sender, in.ToUserID, in.ToRole))
		if err != nil {
			return Handover{}, err
		}
		toCustodyID = &receiver.ID
		toAccount = receiver.AccountCode
	}

	now := s.now()
	var out Handover
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, now.Year())
		if err != nil {
			return err
		}

		inserted, err := tx.Insert(ctx, Handover{
			Number:           FormatNumber(now.Year(), seq),
			FromUserID:       in.FromUserID,
			FromRole:         sender.Role,
			FromCustodyID:    sender.ID,
			FromAccountCode:  sender.AccountCode,
			ToUserID:         in.ToUserID,
			ToRole:           in.ToRole,
			ToCustodyID:      toCustodyID,
			ToAccountCode:    toAccount,
			Amount:           amount,
			Type:             in.Type,
			RequiresApproval: requiresApproval,
			Notes:            in.Notes,
			SourceHandoverID: in.SourceHandoverID,
			UnitID:           sender.UnitID,
			AreaID:           sender.AreaID,
			ForumID:          sender.ForumID,
			InitiatedAt:      now,
		})
		if err != nil {
			return err
		}

		if requiresApproval {
			requestID, err := tx.InsertApprovalRequest(ctx, ApprovalSubmission{
				EntityID:    inserted.ID,
				ForumID:     sender.ForumID,
				AreaID:      sender.AreaID,
				UnitID:      sender.UnitID,
				RequestedBy: in.FromUserID,
			})
			if err != nil {
				return err
			}
			if err := tx.SetApprovalRequest(ctx, inserted.ID, requestID); err != nil {
				return err
			}
			inserted.ApprovalRequestID = &requestID
		}
		out = inserted
		return nil
	})
	if err != nil {
		return Handover{}, err
	}

	s.publish(ctx, events.Event{
		Type:        events.CashHandoverInitiated,
		EntityID:    out.ID,
		Number:      out.Number,
		Amount:      out.Amount,
		ActorUserID: in.FromUserID,
		Meta: map[string]any{
			"to_user_id":        in.ToUserID,
			"to_role":           string(in.ToRole),
			"requires_approval": requiresApproval,
		},
	})
	s.recordAudit(ctx, in.FromUserID, "handover.initiate", out.ID, map[string]any{
		"number":     out.Number,
		"amount":     out.Amount,
		"to_user_id": in.ToUserID,
		"to_role":    string(in.ToRole),
	})
	return out, nil
}

// Acknowledge completes the transfer: approval gate, balance re-check,
// journal posting, balance moves and the status transition all commit
// together or not at all.
func (s *Service) Acknowledge(ctx context.Context, in AcknowledgeInput) (Handover, error) {
	current, err := s.repo.GetByID(ctx, in.HandoverID)
	if err != nil {
		return Handover{}, err
	}
	if current.Status != StatusInitiated {
		return Handover{}, ErrInvalidStateTransition
	}
	if err := s.authoriseReceiver(ctx, current, in.ActorID); err != nil {
		return Handover{}, err
	}

	now := s.now()
	var out Handover
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.GetForUpdate(ctx, in.HandoverID)
		if err != nil {
			return err
		}
		if h.Status != StatusInitiated {
			return ErrInvalidStateTransition
		}

		if h.RequiresApproval {
			if h.ApprovalRequestID == nil {
				return ErrApprovalPending
			}
			status, err := tx.ApprovalRequestStatus(ctx, *h.ApprovalRequestID)
			if err != nil {
				return err
			}
			if status != approval.StatusApproved {
				return ErrApprovalPending
			}
		}

		balance, status, err := tx.CustodyForUpdate(ctx, h.FromCustodyID)
		if err != nil {
			return err
		}
		if status != custody.StatusActive {
			return custody.ErrNotActive
		}
		if round(balance) < h.Amount {
			return ErrInsufficientBalance
		}

		entryID, err := tx.InsertJournalEntry(ctx, JournalPosting{
			EntryDate:     now,
			Description:   postingDescription(h),
			Reference:     h.Number,
			SourceID:      h.PublicID,
			TxnType:       txnHandoverAck,
			DebitAccount:  h.ToAccountCode,
			CreditAccount: h.FromAccountCode,
			Amount:        h.Amount,
			CreatedBy:     in.ActorID,
		})
		if err != nil {
			return err
		}

		if err := tx.DebitCustody(ctx, h.FromCustodyID, h.Amount, now); err != nil {
			return err
		}
		if h.ToCustodyID != nil {
			if err := tx.CreditCustody(ctx, *h.ToCustodyID, h.Amount, now); err != nil {
				return err
			}
		}

		out, err = tx.MarkAcknowledged(ctx, h.ID, entryID, in.Notes, now)
		return err
	})
	if err != nil {
		return Handover{}, err
	}

	eventType := events.CashHandoverAcknowledged
	if out.ToRole == hierarchy.RoleBank {
		eventType = events.CashDepositedToBank
	}
	s.publish(ctx, events.Event{
		Type:        eventType,
		EntityID:    out.ID,
		Number:      out.Number,
		Amount:      out.Amount,
		ActorUserID: in.ActorID,
		Meta: map[string]any{
			"from_user_id": out.FromUserID,
			"to_user_id":   out.ToUserID,
			"to_role":      string(out.ToRole),
		},
	})
	s.recordAudit(ctx, in.ActorID, "handover.acknowledge", out.ID, map[string]any{
		"number": out.Number,
		"amount": out.Amount,
	})
	return out, nil
}

// Reject refuses a pending handover. No ledger or balance effect; a pending
// approval gate is withdrawn alongside.
func (s *Service) Reject(ctx context.Context, in RejectInput) (Handover, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return Handover{}, fmt.Errorf("%w: rejection reason required", ErrValidation)
	}
	current, err := s.repo.GetByID(ctx, in.HandoverID)
	if err != nil {
		return Handover{}, err
	}
	if current.Status != StatusInitiated {
		return Handover{}, ErrInvalidStateTransition
	}
	if err := s.authoriseReceiver(ctx, current, in.ActorID); err != nil {
		return Handover{}, err
	}

	now := s.now()
	var out Handover
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.GetForUpdate(ctx, in.HandoverID)
		if err != nil {
			return err
		}
		if h.Status != StatusInitiated {
			return ErrInvalidStateTransition
		}
		if h.ApprovalRequestID != nil {
			if err := tx.CancelApprovalRequest(ctx, *h.ApprovalRequestID, now); err != nil {
				return err
			}
		}
		out, err = tx.MarkRejected(ctx, h.ID, in.Reason, now)
		return err
	})
	if err != nil {
		return Handover{}, err
	}

	s.publish(ctx, events.Event{
		Type:        events.CashHandoverRejected,
		EntityID:    out.ID,
		Number:      out.Number,
		Amount:      out.Amount,
		ActorUserID: in.ActorID,
		Meta:        map[string]any{"reason": in.Reason, "from_user_id": out.FromUserID},
	})
	s.recordAudit(ctx, in.ActorID, "handover.reject", out.ID, map[string]any{
		"number": out.Number,
		"reason": in.Reason,
	})
	return out, nil
}

// Cancel withdraws a pending handover. Only the original sender may cancel.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (Handover, error) {
	current, err := s.repo.GetByID(ctx, in.HandoverID)
	if err != nil {
		return Handover{}, err
	}
	if current.Status != StatusInitiated {
		return Handover{}, ErrInvalidStateTransition
	}
	if current.FromUserID != in.ActorID {
		return Handover{}, ErrForbidden
	}

	now := s.now()
	var out Handover
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		h, err := tx.GetForUpdate(ctx, in.HandoverID)
		if err != nil {
			return err
		}
		if h.Status != StatusInitiated {
			return ErrInvalidStateTransition
		}
		if h.ApprovalRequestID != nil {
			if err := tx.CancelApprovalRequest(ctx, *h.ApprovalRequestID, now); err != nil {
				return err
			}
		}
		out, err = tx.MarkCancelled(ctx, h.ID, now)
		return err
	})
	if err != nil {
		return Handover{}, err
	}

	s.publish(ctx, events.Event{
		Type:        events.CashHandoverCancelled,
		EntityID:    out.ID,
		Number:      out.Number,
		Amount:      out.Amount,
		ActorUserID: in.ActorID,
		Meta:        map[string]any{"to_user_id": out.ToUserID},
	})
	s.recordAudit(ctx, in.ActorID, "handover.cancel", out.ID, map[string]any{
		"number": out.Number,
	})
	return out, nil
}

// validateRecipient checks that the receiver is the actually assigned
// administrator for the sender's scope, not merely any holder of the role.
func (s *Service) validateRecipient(ctx context.Context, sender custody.Custody, toUserID int64, toRole hierarchy.Role) error {
	switch toRole {
	case hierarchy.RoleUnitAdmin:
		if sender.UnitID == nil {
			return ErrInvalidRecipient
		}
		assigned, err := s.dir.UnitAdmin(ctx, *sender.UnitID)
		if err != nil {
			return recipientErr(err)
		}
		if assigned != toUserID {
			return ErrInvalidRecipient
		}
	case hierarchy.RoleAreaAdmin:
		if sender.AreaID == nil {
			return ErrInvalidRecipient
		}
		assigned, err := s.dir.AreaAdmin(ctx, *sender.AreaID)
		if err != nil {
			return recipientErr(err)
		}
		if assigned != toUserID {
			return ErrInvalidRecipient
		}
	case hierarchy.RoleForumAdmin:
		if sender.ForumID == nil {
			return ErrInvalidRecipient
		}
		assigned, err := s.dir.ForumAdmin(ctx, *sender.ForumID)
		if err != nil {
			return recipientErr(err)
		}
		if assigned != toUserID {
			return ErrInvalidRecipient
		}
	case hierarchy.RoleBank:
		ok, err := s.dir.IsBankAdmin(ctx, toUserID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidRecipient
		}
	default:
		return ErrInvalidTransferPath
	}
	return nil
}

func recipientErr(err error) error {
	if errors.Is(err, hierarchy.ErrNotFound) || errors.Is(err, hierarchy.ErrNoAdmin) {
		return ErrInvalidRecipient
	}
	return err
}

// authoriseReceiver applies the acknowledge/reject rule: bank deposits may
// be worked by any bank admin, everything else only by the named receiver.
func (s *Service) authoriseReceiver(ctx context.Context, h Handover, actorID int64) error {
	if h.ToRole == hierarchy.RoleBank {
		ok, err := s.dir.IsBankAdmin(ctx, actorID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}
		return nil
	}
	if h.ToUserID != actorID {
		return ErrForbidden
	}
	return nil
}

// receiverPlacement derives the receiver's custody placement from the
// sender's scope: the receiving admin sits above the sender in the same
// branch of the tree.
func receiverPlacement(sender custody.Custody, toUserID int64, toRole hierarchy.Role) hierarchy.Placement {
	p := hierarchy.Placement{UserID: toUserID, Role: toRole}
	switch toRole {
	case hierarchy.RoleUnitAdmin:
		p.UnitID = sender.UnitID
		p.AreaID = sender.AreaID
		p.ForumID = sender.ForumID
	case hierarchy.RoleAreaAdmin:
		p.AreaID = sender.AreaID
		p.ForumID = sender.ForumID
	case hierarchy.RoleForumAdmin:
		p.ForumID = sender.ForumID
	}
	return p
}

func postingDescription(h Handover) string {
	if h.ToRole == hierarchy.RoleBank {
		return fmt.Sprintf("Setoran kas ke bank %s", h.Number)
	}
	return fmt.Sprintf("Serah terima kas %s", h.Number)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	_ = s.events.Publish(ctx, event)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "cash_handover",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
