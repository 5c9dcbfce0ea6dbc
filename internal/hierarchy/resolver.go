package hierarchy

import (
	"context"
	"errors"
)

// Resolver answers placement and admin-assignment questions against the
// organisational directory.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Placement determines the custody role and scope for a user. Admin
// assignments win over agent membership, and the most senior assignment wins.
func (r *Resolver) Placement(ctx context.Context, userID int64) (Placement, error) {
	forum, err := r.repo.ForumByAdmin(ctx, userID)
	switch {
	case err == nil:
		return Placement{UserID: userID, Role: RoleForumAdmin, ForumID: &forum.ID}, nil
	case !errors.Is(err, ErrNotFound):
		return Placement{}, err
	}

	area, err := r.repo.AreaByAdmin(ctx, userID)
	switch {
	case err == nil:
		return Placement{UserID: userID, Role: RoleAreaAdmin, AreaID: &area.ID, ForumID: &area.ForumID}, nil
	case !errors.Is(err, ErrNotFound):
		return Placement{}, err
	}

	unit, err := r.repo.UnitByAdmin(ctx, userID)
	switch {
	case err == nil:
		return Placement{UserID: userID, Role: RoleUnitAdmin, UnitID: &unit.ID, AreaID: &unit.AreaID, ForumID: &unit.ForumID}, nil
	case !errors.Is(err, ErrNotFound):
		return Placement{}, err
	}

	agent, err := r.repo.AgentByUser(ctx, userID)
	if err != nil {
		return Placement{}, err
	}
	return Placement{UserID: userID, Role: RoleAgent, UnitID: &agent.UnitID, AreaID: &agent.AreaID, ForumID: &agent.ForumID}, nil
}

// UnitAdmin returns the user assigned to administer the unit.
func (r *Resolver) UnitAdmin(ctx context.Context, unitID int64) (int64, error) {
	unit, err := r.repo.UnitByID(ctx, unitID)
	if err != nil {
		return 0, err
	}
	if unit.AdminUserID == 0 {
		return 0, ErrNoAdmin
	}
	return unit.AdminUserID, nil
}

// AreaAdmin returns the user assigned to administer the area.
func (r *Resolver) AreaAdmin(ctx context.Context, areaID int64) (int64, error) {
	area, err := r.repo.AreaByID(ctx, areaID)
	if err != nil {
		return 0, err
	}
	if area.AdminUserID == 0 {
		return 0, ErrNoAdmin
	}
	return area.AdminUserID, nil
}

// ForumAdmin returns the user assigned to administer the forum.
func (r *Resolver) ForumAdmin(ctx context.Context, forumID int64) (int64, error) {
	forum, err := r.repo.ForumByID(ctx, forumID)
	if err != nil {
		return 0, err
	}
	if forum.AdminUserID == 0 {
		return 0, ErrNoAdmin
	}
	return forum.AdminUserID, nil
}

// IsBankAdmin reports whether the user may act for the central bank account.
func (r *Resolver) IsBankAdmin(ctx context.Context, userID int64) (bool, error) {
	return r.repo.IsBankAdmin(ctx, userID)
}

// BankAdmins lists the users who may receive deposits for the bank.
func (r *Resolver) BankAdmins(ctx context.Context) ([]int64, error) {
	return r.repo.BankAdmins(ctx)
}
