package auth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/amanah-kas/amanah-kas/internal/shared"
)

// Service wraps client token authentication.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Authenticate validates a bearer token. Every failure collapses to invalid
// credentials; callers learn nothing about which part was wrong.
func (s *Service) Authenticate(ctx context.Context, token string) (Client, error) {
	key, secret, ok := strings.Cut(token, ".")
	if !ok || key == "" || secret == "" {
		return Client{}, shared.ErrInvalidCredentials
	}
	client, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		return Client{}, shared.ErrInvalidCredentials
	}
	if !client.IsActive {
		return Client{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.TokenHash), []byte(secret)); err != nil {
		return Client{}, shared.ErrInvalidCredentials
	}
	_ = s.repo.TouchLastUsed(ctx, client.ID, s.now())
	return client, nil
}

// HashSecret produces the stored hash for a client secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
