package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/shared"
)

type memoryClientRepo struct {
	clients map[string]Client
	touched []int64
}

func (m *memoryClientRepo) FindByKey(_ context.Context, key string) (Client, error) {
	c, ok := m.clients[key]
	if !ok {
		return Client{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryClientRepo) TouchLastUsed(_ context.Context, id int64, _ time.Time) error {
	m.touched = append(m.touched, id)
	return nil
}

func newClientRepo(t *testing.T, key, secret string, active bool) *memoryClientRepo {
	t.Helper()
	hash, err := HashSecret(secret)
	require.NoError(t, err)
	return &memoryClientRepo{clients: map[string]Client{
		key: {ID: 1, Key: key, Name: "mobile-backend", TokenHash: hash, IsActive: active},
	}}
}

func TestAuthenticateValidToken(t *testing.T) {
	repo := newClientRepo(t, "mobile", "s3cret", true)
	svc := NewService(repo)

	client, err := svc.Authenticate(context.Background(), "mobile.s3cret")
	require.NoError(t, err)
	require.Equal(t, "mobile-backend", client.Name)
	require.Equal(t, []int64{1}, repo.touched)
}

func TestAuthenticateFailures(t *testing.T) {
	repo := newClientRepo(t, "mobile", "s3cret", true)
	svc := NewService(repo)
	ctx := context.Background()

	cases := []string{
		"",
		"mobile",
		"mobile.",
		".s3cret",
		"mobile.wrong",
		"unknown.s3cret",
	}
	for _, token := range cases {
		_, err := svc.Authenticate(ctx, token)
		require.ErrorIs(t, err, shared.ErrInvalidCredentials, "token %q", token)
	}
	require.Empty(t, repo.touched)
}

func TestAuthenticateInactiveClient(t *testing.T) {
	repo := newClientRepo(t, "mobile", "s3cret", false)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "mobile.s3cret")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

type stubActorDirectory map[int64]hierarchy.Placement

func (d stubActorDirectory) Placement(_ context.Context, userID int64) (hierarchy.Placement, error) {
	p, ok := d[userID]
	if !ok {
		return hierarchy.Placement{}, hierarchy.ErrNotFound
	}
	return p, nil
}

func echoActor(t *testing.T) (http.Handler, *[]*shared.Actor) {
	t.Helper()
	var seen []*shared.Actor
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, shared.ActorFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	return handler, &seen
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	svc := NewService(newClientRepo(t, "mobile", "s3cret", true))
	authn := NewAuthenticator(nil, svc, nil, false)
	next, seen := echoActor(t)

	req := httptest.NewRequest(http.MethodGet, "/custody/me", nil)
	rec := httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, *seen)
}

func TestMiddlewarePassesActorWithRole(t *testing.T) {
	svc := NewService(newClientRepo(t, "mobile", "s3cret", true))
	dir := stubActorDirectory{42: {UserID: 42, Role: hierarchy.RoleAgent}}
	authn := NewAuthenticator(nil, svc, dir, false)
	next, seen := echoActor(t)

	req := httptest.NewRequest(http.MethodGet, "/custody/me", nil)
	req.Header.Set("Authorization", "Bearer mobile.s3cret")
	req.Header.Set("X-Actor-ID", "42")
	rec := httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *seen, 1)
	actor := (*seen)[0]
	require.NotNil(t, actor)
	require.Equal(t, int64(42), actor.UserID)
	require.Equal(t, string(hierarchy.RoleAgent), actor.Role)
}

func TestMiddlewareAllowsActorOutsideOrgTree(t *testing.T) {
	svc := NewService(newClientRepo(t, "mobile", "s3cret", true))
	authn := NewAuthenticator(nil, svc, stubActorDirectory{}, false)
	next, seen := echoActor(t)

	req := httptest.NewRequest(http.MethodGet, "/handovers/pending/bank", nil)
	req.Header.Set("Authorization", "Bearer mobile.s3cret")
	req.Header.Set("X-Actor-ID", "900")
	rec := httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	actor := (*seen)[0]
	require.NotNil(t, actor)
	require.Equal(t, int64(900), actor.UserID)
	require.Empty(t, actor.Role)
}

func TestMiddlewareRejectsBadActorHeader(t *testing.T) {
	svc := NewService(newClientRepo(t, "mobile", "s3cret", true))
	authn := NewAuthenticator(nil, svc, nil, false)
	next, seen := echoActor(t)

	req := httptest.NewRequest(http.MethodGet, "/custody/me", nil)
	req.Header.Set("Authorization", "Bearer mobile.s3cret")
	req.Header.Set("X-Actor-ID", "abc")
	rec := httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, *seen)
}

func TestMiddlewareDisabledSkipsTokenCheck(t *testing.T) {
	authn := NewAuthenticator(nil, nil, nil, true)
	next, seen := echoActor(t)

	req := httptest.NewRequest(http.MethodGet, "/custody/me", nil)
	req.Header.Set("X-Actor-ID", "7")
	rec := httptest.NewRecorder()
	authn.Middleware(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *seen, 1)
	require.Equal(t, int64(7), (*seen)[0].UserID)
}
