package custody

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amanah-kas/amanah-kas/internal/events"
	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/shared"
)

const defaultOverdueDays = 3

// HierarchyPort resolves a user's placement for implicit onboarding.
type HierarchyPort interface {
	Placement(ctx context.Context, userID int64) (hierarchy.Placement, error)
}

// AuditPort captures audit log writes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates custody lifecycle and balance operations.
type Service struct {
	repo   Repository
	dir    HierarchyPort
	audit  AuditPort
	events events.Publisher
	now    func() time.Time
}

// NewService wires the custody service.
func NewService(repo Repository, dir HierarchyPort, audit AuditPort, publisher events.Publisher) *Service {
	return &Service{repo: repo, dir: dir, audit: audit, events: publisher, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CollectInput describes a cash collection credit.
type CollectInput struct {
	UserID  int64
	Amount  float64
	Notes   string
	ActorID int64
}

// DeactivateInput closes out a custody record.
type DeactivateInput struct {
	UserID  int64
	Reason  string
	ActorID int64
}

// GetOrCreate returns the user's ACTIVE custody, creating a zero-balance one
// when none exists. Concurrent callers for the same user converge on a
// single record; the loser of the insert race re-reads the winner's row.
func (s *Service) GetOrCreate(ctx context.Context, p hierarchy.Placement) (Custody, error) {
	if p.UserID <= 0 {
		return Custody{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if !p.Role.Custodial() {
		return Custody{}, fmt.Errorf("%w: role %s holds no custody", ErrValidation, p.Role)
	}

	existing, err := s.repo.GetActiveByUser(ctx, p.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Custody{}, err
	}
	if err := s.guardSuspended(ctx, p.UserID); err != nil {
		return Custody{}, err
	}

	code, err := AccountCodeForRole(p.Role)
	if err != nil {
		return Custody{}, err
	}
	created, err := s.repo.Insert(ctx, Custody{
		UserID:      p.UserID,
		Role:        p.Role,
		AccountCode: code,
		Status:      StatusActive,
		UnitID:      p.UnitID,
		AreaID:      p.AreaID,
		ForumID:     p.ForumID,
	})
	if errors.Is(err, ErrAlreadyActive) {
		return s.repo.GetActiveByUser(ctx, p.UserID)
	}
	if err != nil {
		return Custody{}, err
	}

	s.publish(ctx, events.Event{
		Type:        events.CashCustodyCreated,
		EntityID:    created.ID,
		ActorUserID: p.UserID,
		Meta:        map[string]any{"user_id": p.UserID, "role": string(p.Role), "account_code": code},
	})
	s.recordAudit(ctx, p.UserID, "custody.create", created.ID, map[string]any{
		"user_id":      p.UserID,
		"role":         string(p.Role),
		"account_code": code,
	})
	return created, nil
}

// Collect credits a cash collection into the user's custody. First-time
// collectors are onboarded implicitly from their hierarchy placement.
func (s *Service) Collect(ctx context.Context, in CollectInput) (Custody, error) {
	if in.UserID <= 0 {
		return Custody{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if in.Amount <= 0 {
		return Custody{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	amount := round(in.Amount)

	target, err := s.repo.GetActiveByUser(ctx, in.UserID)
	if errors.Is(err, ErrNotFound) {
		if err := s.guardSuspended(ctx, in.UserID); err != nil {
			return Custody{}, err
		}
		placement, perr := s.dir.Placement(ctx, in.UserID)
		if perr != nil {
			if errors.Is(perr, hierarchy.ErrNotFound) {
				return Custody{}, ErrNotFound
			}
			return Custody{}, perr
		}
		target, err = s.GetOrCreate(ctx, placement)
	}
	if err != nil {
		return Custody{}, err
	}

	updated, err := s.repo.Credit(ctx, target.ID, amount, s.now())
	if err != nil {
		return Custody{}, err
	}

	s.publish(ctx, events.Event{
		Type:        events.CashCustodyIncreased,
		EntityID:    updated.ID,
		Amount:      amount,
		ActorUserID: in.ActorID,
		Meta:        map[string]any{"user_id": in.UserID, "notes": in.Notes},
	})
	s.recordAudit(ctx, in.ActorID, "custody.collect", updated.ID, map[string]any{
		"user_id": in.UserID,
		"amount":  amount,
		"notes":   in.Notes,
	})
	return updated, nil
}

// Deactivate transitions the user's ACTIVE custody to INACTIVE. The balance
// must already be zero; remaining cash has to be handed over first.
func (s *Service) Deactivate(ctx context.Context, in DeactivateInput) (Custody, error) {
	if in.UserID <= 0 {
		return Custody{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return Custody{}, fmt.Errorf("%w: reason required", ErrValidation)
	}

	updated, err := s.repo.Deactivate(ctx, in.UserID, in.ActorID, in.Reason, s.now())
	if err != nil {
		return Custody{}, err
	}

	s.publish(ctx, events.Event{
		Type:        events.CashCustodyDeactivated,
		EntityID:    updated.ID,
		ActorUserID: in.ActorID,
		Meta:        map[string]any{"user_id": in.UserID, "reason": in.Reason},
	})
	s.recordAudit(ctx, in.ActorID, "custody.deactivate", updated.ID, map[string]any{
		"user_id": in.UserID,
		"reason":  in.Reason,
	})
	return updated, nil
}

// ByUser returns the user's ACTIVE custody.
func (s *Service) ByUser(ctx context.Context, userID int64) (Custody, error) {
	return s.repo.GetActiveByUser(ctx, userID)
}

// ByID returns a custody record regardless of status.
func (s *Service) ByID(ctx context.Context, id int64) (Custody, error) {
	return s.repo.GetByID(ctx, id)
}

// Totals aggregates ACTIVE balances per ledger account code.
func (s *Service) Totals(ctx context.Context) ([]AccountTotal, error) {
	return s.repo.TotalsByAccountCode(ctx)
}

// Overdue lists ACTIVE custodies holding cash with no movement within the
// threshold.
func (s *Service) Overdue(ctx context.Context, thresholdDays int) ([]Custody, error) {
	if thresholdDays <= 0 {
		thresholdDays = defaultOverdueDays
	}
	before := s.now().AddDate(0, 0, -thresholdDays)
	return s.repo.Overdue(ctx, before)
}

// BalancesByRole aggregates ACTIVE balances per hierarchy level, optionally
// scoped to one forum or area.
func (s *Service) BalancesByRole(ctx context.Context, scope RoleScope) ([]RoleBalance, error) {
	return s.repo.BalancesByRole(ctx, scope)
}

// guardSuspended blocks implicit onboarding while a suspended custody
// exists: suspension pauses the holder, it does not start a new period.
func (s *Service) guardSuspended(ctx context.Context, userID int64) error {
	latest, err := s.repo.LatestByUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if latest.Status == StatusSuspended {
		return ErrNotActive
	}
	return nil
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
		Entity:   "cash_custody",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
