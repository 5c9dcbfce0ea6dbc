package handover

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/amanah-kas/amanah-kas/internal/shared"
)

type stubGuard struct {
	keys      map[string]bool
	insertErr error
	deleted   []string
}

func newStubGuard() *stubGuard {
	return &stubGuard{keys: map[string]bool{}}
}

func (g *stubGuard) CheckAndInsert(_ context.Context, key, _ string) error {
	if g.insertErr != nil {
		return g.insertErr
	}
	if g.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	g.keys[key] = true
	return nil
}

func (g *stubGuard) Delete(_ context.Context, key string) error {
	delete(g.keys, key)
	g.deleted = append(g.deleted, key)
	return nil
}

func newHandlerFixture(guard IdempotencyGuard) (*handoverFixture, http.Handler) {
	f := newHandoverFixture()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.svc)
	if guard != nil {
		h = h.WithIdempotency(guard)
	}
	r := chi.NewRouter()
	r.Route("/handovers", h.MountRoutes)
	return f, r
}

func postInitiate(t *testing.T, router http.Handler, actorID int64, body, idemKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/handovers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	req = req.WithContext(shared.ContextWithActor(req.Context(), &shared.Actor{UserID: actorID, Role: "AGENT"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestInitiateIdempotencyKeyDeduplicates(t *testing.T) {
	guard := newStubGuard()
	f, router := newHandlerFixture(guard)
	f.seedAgent(101, 500000)

	body := `{"to_user_id":200,"to_role":"UNIT_ADMIN","amount":100000}`
	first := postInitiate(t, router, 101, body, "mobile-req-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := postInitiate(t, router, 101, body, "mobile-req-1")
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "already processed")
}

func TestInitiateReleasesKeyWhenServiceFails(t *testing.T) {
	guard := newStubGuard()
	f, router := newHandlerFixture(guard)
	f.seedAgent(101, 500000)

	// Amount above the available balance fails inside the service, so the
	// key must be released for the corrected retry.
	body := `{"to_user_id":200,"to_role":"UNIT_ADMIN","amount":600000}`
	rr := postInitiate(t, router, 101, body, "mobile-req-2")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, guard.deleted, "mobile-req-2")

	retry := postInitiate(t, router, 101, `{"to_user_id":200,"to_role":"UNIT_ADMIN","amount":400000}`, "mobile-req-2")
	require.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())
}

func TestInitiateWithoutKeySkipsGuard(t *testing.T) {
	guard := newStubGuard()
	f, router := newHandlerFixture(guard)
	f.seedAgent(101, 500000)

	rr := postInitiate(t, router, 101, `{"to_user_id":200,"to_role":"UNIT_ADMIN","amount":100000}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Empty(t, guard.keys)
}
