package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amanah-kas/amanah-kas/internal/shared"
)

// Repository defines persistence operations for API clients.
type Repository interface {
	FindByKey(ctx context.Context, key string) (Client, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) FindByKey(ctx context.Context, key string) (Client, error) {
	var c Client
	err := r.db.QueryRow(ctx, `SELECT id, key, name, token_hash, is_active, created_at, last_used_at
FROM auth_clients
WHERE key = $1`, key).Scan(&c.ID, &c.Key, &c.Name, &c.TokenHash, &c.IsActive, &c.CreatedAt, &c.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, shared.ErrNotFound
		}
		return Client{}, err
	}
	return c, nil
}

func (r *repository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE auth_clients SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}
