package hierarchy

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides directory lookups backed by the organisational tables.
type Repository interface {
	ForumByAdmin(ctx context.Context, userID int64) (Forum, error)
	AreaByAdmin(ctx context.Context, userID int64) (Area, error)
	UnitByAdmin(ctx context.Context, userID int64) (Unit, error)
	AgentByUser(ctx context.Context, userID int64) (Agent, error)
	ForumByID(ctx context.Context, forumID int64) (Forum, error)
	AreaByID(ctx context.Context, areaID int64) (Area, error)
	UnitByID(ctx context.Context, unitID int64) (Unit, error)
	IsBankAdmin(ctx context.Context, userID int64) (bool, error)
	BankAdmins(ctx context.Context) ([]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed directory.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ForumByAdmin(ctx context.Context, userID int64) (Forum, error) {
	var f Forum
	err := r.db.QueryRow(ctx, `SELECT id, name, COALESCE(admin_user_id, 0) FROM org_forums WHERE admin_user_id = $1 ORDER BY id LIMIT 1`, userID).
		Scan(&f.ID, &f.Name, &f.AdminUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Forum{}, ErrNotFound
		}
		return Forum{}, err
	}
	return f, nil
}

func (r *repository) AreaByAdmin(ctx context.Context, userID int64) (Area, error) {
	var a Area
	err := r.db.QueryRow(ctx, `SELECT id, forum_id, name, COALESCE(admin_user_id, 0) FROM org_areas WHERE admin_user_id = $1 ORDER BY id LIMIT 1`, userID).
		Scan(&a.ID, &a.ForumID, &a.Name, &a.AdminUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Area{}, ErrNotFound
		}
		return Area{}, err
	}
	return a, nil
}

func (r *repository) UnitByAdmin(ctx context.Context, userID int64) (Unit, error) {
	var u Unit
	err := r.db.QueryRow(ctx, `SELECT id, area_id, forum_id, name, COALESCE(admin_user_id, 0) FROM org_units WHERE admin_user_id = $1 ORDER BY id LIMIT 1`, userID).
		Scan(&u.ID, &u.AreaID, &u.ForumID, &u.Name, &u.AdminUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrNotFound
		}
		return Unit{}, err
	}
	return u, nil
}

func (r *repository) AgentByUser(ctx context.Context, userID int64) (Agent, error) {
	var a Agent
	err := r.db.QueryRow(ctx, `SELECT user_id, unit_id, area_id, forum_id FROM org_agents WHERE user_id = $1`, userID).
		Scan(&a.UserID, &a.UnitID, &a.AreaID, &a.ForumID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, err
	}
	return a, nil
}

func (r *repository) ForumByID(ctx context.Context, forumID int64) (Forum, error) {
	var f Forum
	err := r.db.QueryRow(ctx, `SELECT id, name, COALESCE(admin_user_id, 0) FROM org_forums WHERE id = $1`, forumID).
		Scan(&f.ID, &f.Name, &f.AdminUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Forum{}, ErrNotFound
		}
		return Forum{}, err
	}
	return f, nil
}

func (r *repository) AreaByID(ctx context.Context, areaID int64) (Area, error) {
	var a Area
	err := r.db.QueryRow(ctx, `SELECT id, forum_id, name, COALESCE(admin_user_id, 0) FROM org_areas WHERE id = $1`, areaID).
		Scan(&a.ID, &a.ForumID, &a.Name, &a.AdminUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Area{}, ErrNotFound
		}
		return Area{}, err
	}
	return a, nil
}

func (r *repository) UnitByID(ctx context.Context, unitID int64) (Unit, error) {
	var u Unit
	err := r.db.QueryRow(ctx, `SELECT id, area_id, forum_id, name, COALESCE(admin_user_id, 0) FROM org_units WHERE id = $1`, unitID).
		Scan(&u.ID, &u.AreaID, &u.ForumID, &u.Name, &u.AdminUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, ErrNotFound
		}
		return Unit{}, err
	}
	return u, nil
}

func (r *repository) IsBankAdmin(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM org_bank_admins WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) BankAdmins(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM org_bank_admins ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		admins = append(admins, userID)
	}
	return admins, rows.Err()
}
