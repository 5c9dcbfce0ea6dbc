package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/platform/httpx"
	"github.com/amanah-kas/amanah-kas/internal/shared"
)

const actorHeader = "X-Actor-ID"

// ActorDirectory resolves the acting user's hierarchy placement.
type ActorDirectory interface {
	Placement(ctx context.Context, userID int64) (hierarchy.Placement, error)
}

// Authenticator guards the JSON API. The bearer token identifies the calling
// system; the X-Actor-ID header names the person acting through it.
type Authenticator struct {
	logger   *slog.Logger
	service  *Service
	dir      ActorDirectory
	disabled bool
}

// NewAuthenticator wires the middleware. With disabled set, token checks are
// skipped and the actor header is trusted as-is (development and tests).
func NewAuthenticator(logger *slog.Logger, service *Service, dir ActorDirectory, disabled bool) *Authenticator {
	return &Authenticator{logger: logger, service: service, dir: dir, disabled: disabled}
}

// Middleware authenticates the request and stores the actor in context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !a.disabled {
			token, ok := bearerToken(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
				return
			}
			if _, err := a.service.Authenticate(ctx, token); err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid client token")
				return
			}
		}

		if raw := r.Header.Get(actorHeader); raw != "" {
			actorID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || actorID <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Header", "X-Actor-ID must be a positive integer")
				return
			}
			actor := &shared.Actor{UserID: actorID}
			// Bank admins sit outside the org tree; a missing placement
			// leaves the role blank rather than failing the request.
			if a.dir != nil {
				if p, err := a.dir.Placement(ctx, actorID); err == nil {
					actor.Role = string(p.Role)
				}
			}
			ctx = shared.ContextWithActor(ctx, actor)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
