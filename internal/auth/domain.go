package auth

import "time"

// Client is a registered API caller: the agent mobile backend, the
// operations console or another internal service. Tokens take the form
// <key>.<secret>; only the bcrypt hash of the secret is stored.
type Client struct {
	ID         int64      `json:"id"`
	Key        string     `json:"key"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}
