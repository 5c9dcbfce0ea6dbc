package report

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/amanah-kas/amanah-kas/internal/handover"
	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/view"
)

type stubReceiptSource struct {
	handovers map[int64]handover.Handover
}

func (s *stubReceiptSource) Get(_ context.Context, id int64) (handover.Handover, error) {
	found, ok := s.handovers[id]
	if !ok {
		return handover.Handover{}, handover.ErrNotFound
	}
	return found, nil
}

// fakeGotenberg stands in for the renderer sidecar and captures the HTML it
// was asked to convert.
type fakeGotenberg struct {
	server   *httptest.Server
	lastHTML string
	fail     bool
}

func newFakeGotenberg(t *testing.T) *fakeGotenberg {
	t.Helper()
	fake := &fakeGotenberg{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/forms/chromium/convert/html", func(w http.ResponseWriter, r *http.Request) {
		if fake.fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		file, header, err := r.FormFile("files")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer func() {
			_ = file.Close()
		}()
		if header.Filename != "document.html" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		content, err := io.ReadAll(file)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fake.lastHTML = string(content)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 fake receipt"))
	})
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func acknowledgedHandover() handover.Handover {
	acknowledged := time.Date(2025, 7, 14, 16, 30, 0, 0, time.UTC)
	return handover.Handover{
		ID:             7,
		Number:         "CHO-2025-00007",
		FromUserID:     101,
		FromRole:       hierarchy.RoleAgent,
		ToUserID:       301,
		ToRole:         hierarchy.RoleUnitAdmin,
		Amount:         250000,
		Type:           handover.TypeNormal,
		Status:         handover.StatusAcknowledged,
		Notes:          "Setoran mingguan",
		InitiatedAt:    time.Date(2025, 7, 14, 9, 0, 0, 0, time.UTC),
		AcknowledgedAt: &acknowledged,
	}
}

func newReceiptFixture(t *testing.T, source ReceiptSource) (*fakeGotenberg, chi.Router) {
	t.Helper()
	fake := newFakeGotenberg(t)
	engine, err := view.NewEngine()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewClient(fake.server.URL), engine, source)
	h.now = func() time.Time {
		return time.Date(2025, 7, 15, 8, 0, 0, 0, time.UTC)
	}

	router := chi.NewRouter()
	router.Route("/receipts", h.MountRoutes)
	return fake, router
}

func TestReceiptRendersAcknowledgedHandover(t *testing.T) {
	source := &stubReceiptSource{handovers: map[int64]handover.Handover{7: acknowledgedHandover()}}
	fake, router := newReceiptFixture(t, source)

	req := httptest.NewRequest(http.MethodGet, "/receipts/handovers/7", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "application/pdf", recorder.Header().Get("Content-Type"))
	require.Contains(t, recorder.Header().Get("Content-Disposition"), "CHO-2025-00007.pdf")
	require.Contains(t, recorder.Body.String(), "%PDF")

	require.Contains(t, fake.lastHTML, "CHO-2025-00007")
	require.Contains(t, fake.lastHTML, "Pengguna 101 (Petugas Lapangan)")
	require.Contains(t, fake.lastHTML, "Pengguna 301 (Pengurus Unit)")
	require.Contains(t, fake.lastHTML, "Rp 250.000")
	require.Contains(t, fake.lastHTML, "Setoran mingguan")
}

func TestReceiptMarksBankDeposits(t *testing.T) {
	deposit := acknowledgedHandover()
	deposit.ID = 9
	deposit.Number = "CHO-2025-00009"
	deposit.FromUserID = 501
	deposit.FromRole = hierarchy.RoleForumAdmin
	deposit.ToUserID = 900
	deposit.ToRole = hierarchy.RoleBank
	source := &stubReceiptSource{handovers: map[int64]handover.Handover{9: deposit}}
	fake, router := newReceiptFixture(t, source)

	req := httptest.NewRequest(http.MethodGet, "/receipts/handovers/9", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, fake.lastHTML, "Setoran ke bank")
	require.Contains(t, fake.lastHTML, "Pengurus Forum")
}

func TestReceiptRejectsPendingHandover(t *testing.T) {
	pending := acknowledgedHandover()
	pending.Status = handover.StatusInitiated
	pending.AcknowledgedAt = nil
	source := &stubReceiptSource{handovers: map[int64]handover.Handover{7: pending}}
	_, router := newReceiptFixture(t, source)

	req := httptest.NewRequest(http.MethodGet, "/receipts/handovers/7", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Contains(t, recorder.Body.String(), "acknowledged")
}

func TestReceiptNotFound(t *testing.T) {
	source := &stubReceiptSource{handovers: map[int64]handover.Handover{}}
	_, router := newReceiptFixture(t, source)

	req := httptest.NewRequest(http.MethodGet, "/receipts/handovers/404", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestReceiptRejectsBadID(t *testing.T) {
	source := &stubReceiptSource{handovers: map[int64]handover.Handover{}}
	_, router := newReceiptFixture(t, source)

	req := httptest.NewRequest(http.MethodGet, "/receipts/handovers/abc", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestReceiptRendererFailureReturnsBadGateway(t *testing.T) {
	source := &stubReceiptSource{handovers: map[int64]handover.Handover{7: acknowledgedHandover()}}
	fake, router := newReceiptFixture(t, source)
	fake.fail = true

	req := httptest.NewRequest(http.MethodGet, "/receipts/handovers/7", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusBadGateway, recorder.Code)
}

func TestPingReportsRendererHealth(t *testing.T) {
	source := &stubReceiptSource{handovers: map[int64]handover.Handover{}}
	_, router := newReceiptFixture(t, source)

	req := httptest.NewRequest(http.MethodGet, "/receipts/ping", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), `"status":"ok"`)
}
