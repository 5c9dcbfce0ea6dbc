package handover

import (
	"context"
	"errors"

	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
)

// PendingOverviewItem is a pending handover decorated with its age for the
// org-wide monitoring view.
type PendingOverviewItem struct {
	Handover
	AgeHours float64 `json:"age_hours"`
	Overdue  bool    `json:"overdue"`
}

// HistoryItem tags each completed handover with the direction relative to
// the requesting user.
type HistoryItem struct {
	Handover
	Direction string `json:"direction"`
}

// HistoryResult bundles a user's transfer history with its totals.
type HistoryResult struct {
	Items  []HistoryItem `json:"items"`
	Totals HistoryTotals `json:"totals"`
}

// ReceiverOption is one valid transfer target for a sender.
type ReceiverOption struct {
	UserID           int64          `json:"user_id"`
	Role             hierarchy.Role `json:"role"`
	RequiresApproval bool           `json:"requires_approval"`
}

// Get returns one handover by id.
func (s *Service) Get(ctx context.Context, id int64) (Handover, error) {
	return s.repo.GetByID(ctx, id)
}

// PendingIncoming lists handovers waiting on the user to acknowledge or
// reject. Bank deposits are excluded; those sit in the shared bank queue.
func (s *Service) PendingIncoming(ctx context.Context, userID int64) ([]Handover, error) {
	return s.repo.PendingIncoming(ctx, userID)
}

// PendingOutgoing lists the user's own handovers still awaiting a response.
func (s *Service) PendingOutgoing(ctx context.Context, userID int64) ([]Handover, error) {
	return s.repo.PendingOutgoing(ctx, userID)
}

// PendingForBank lists pending bank deposits. Any bank admin may work this
// queue.
func (s *Service) PendingForBank(ctx context.Context) ([]Handover, error) {
	return s.repo.PendingForBank(ctx)
}

// OrgPending lists every pending handover with its age, flagging the ones
// sitting past the overdue threshold.
func (s *Service) OrgPending(ctx context.Context) ([]PendingOverviewItem, error) {
	rows, err := s.repo.PendingAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]PendingOverviewItem, 0, len(rows))
	for _, h := range rows {
		age := now.Sub(h.InitiatedAt)
		out = append(out, PendingOverviewItem{
			Handover: h,
			AgeHours: round(age.Hours()),
			Overdue:  age > s.staleAfter,
		})
	}
	return out, nil
}

// History returns the user's handovers in either direction, newest first,
// alongside sent/received totals over acknowledged transfers.
func (s *Service) History(ctx context.Context, userID int64, limit int) (HistoryResult, error) {
	rows, err := s.repo.History(ctx, userID, limit)
	if err != nil {
		return HistoryResult{}, err
	}
	totals, err := s.repo.HistoryTotals(ctx, userID)
	if err != nil {
		return HistoryResult{}, err
	}
	items := make([]HistoryItem, 0, len(rows))
	for _, h := range rows {
		direction := "received"
		if h.FromUserID == userID {
			direction = "sent"
		}
		items = append(items, HistoryItem{Handover: h, Direction: direction})
	}
	return HistoryResult{Items: items, Totals: totals}, nil
}

// ValidReceivers resolves who the user may currently hand cash to: the
// assigned admins up their branch of the tree plus the bank admins. Roles
// with no assigned admin are omitted rather than reported as errors.
func (s *Service) ValidReceivers(ctx context.Context, userID int64) ([]ReceiverOption, error) {
	p, err := s.dir.Placement(ctx, userID)
	if err != nil {
		if errors.Is(err, hierarchy.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	out := []ReceiverOption{}
	for _, target := range allowedTargets[p.Role] {
		if target == hierarchy.RoleBank {
			admins, err := s.dir.BankAdmins(ctx)
			if err != nil {
				return nil, err
			}
			for _, adminID := range admins {
				if adminID == userID {
					continue
				}
				out = append(out, ReceiverOption{UserID: adminID, Role: hierarchy.RoleBank, RequiresApproval: true})
			}
			continue
		}

		adminID, err := s.assignedAdmin(ctx, p, target)
		if err != nil {
			if errors.Is(err, hierarchy.ErrNoAdmin) || errors.Is(err, hierarchy.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if adminID == userID {
			continue
		}
		out = append(out, ReceiverOption{UserID: adminID, Role: target})
	}
	return out, nil
}

func (s *Service) assignedAdmin(ctx context.Context, p hierarchy.Placement, target hierarchy.Role) (int64, error) {
	switch target {
	case hierarchy.RoleUnitAdmin:
		if p.UnitID == nil {
			return 0, hierarchy.ErrNoAdmin
		}
		return s.dir.UnitAdmin(ctx, *p.UnitID)
	case hierarchy.RoleAreaAdmin:
		if p.AreaID == nil {
			return 0, hierarchy.ErrNoAdmin
		}
		return s.dir.AreaAdmin(ctx, *p.AreaID)
	case hierarchy.RoleForumAdmin:
		if p.ForumID == nil {
			return 0, hierarchy.ErrNoAdmin
		}
		return s.dir.ForumAdmin(ctx, *p.ForumID)
	default:
		return 0, hierarchy.ErrNoAdmin
	}
}
