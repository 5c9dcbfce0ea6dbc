package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/platform/httpx"
	"github.com/amanah-kas/amanah-kas/internal/shared"
)

const (
	defaultRangeDays = 7
	maxRangeDays     = 90
)

// Handler melayani endpoint audit timeline untuk pengurus.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes mendaftarkan route audit.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
	r.Get("/export", h.export)
}

type timelineResponse struct {
	Rows   []TimelineRow     `json:"rows"`
	Paging shared.Pagination `json:"paging"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	filters, ok := h.parseFilters(w, r)
	if !ok {
		return
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to load audit timeline")
		return
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Rows: result.Rows, Paging: result.Paging})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	filters, ok := h.parseFilters(w, r)
	if !ok {
		return
	}

	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to export audit timeline")
		return
	}
	payload, err := WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode audit csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to encode audit export")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// authorize menolak agen; jejak audit hanya untuk pengurus.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return false
	}
	if actor.Role == string(hierarchy.RoleAgent) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "audit trail is restricted to administrators")
		return false
	}
	return true
}

// parseFilters membaca filter query. Tanpa parameter, rentang default adalah
// tujuh hari terakhir; rentang maksimum 90 hari.
func (h *Handler) parseFilters(w http.ResponseWriter, r *http.Request) (TimelineFilters, bool) {
	query := r.URL.Query()
	today := h.now().UTC().Truncate(24 * time.Hour)

	toDate := today
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "to must be formatted as YYYY-MM-DD")
			return TimelineFilters{}, false
		}
		toDate = parsed
	}

	fromDate := toDate.AddDate(0, 0, -defaultRangeDays)
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "from must be formatted as YYYY-MM-DD")
			return TimelineFilters{}, false
		}
		fromDate = parsed
	}

	if fromDate.After(toDate) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "from must not be after to")
		return TimelineFilters{}, false
	}
	if toDate.Sub(fromDate) > maxRangeDays*24*time.Hour {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "date range must not exceed 90 days")
		return TimelineFilters{}, false
	}

	// Batas atas eksklusif: sertakan seluruh hari pada tanggal "to".
	filters := TimelineFilters{From: fromDate, To: toDate.AddDate(0, 0, 1)}

	if raw := strings.TrimSpace(query.Get("actor")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "actor must be a positive integer")
			return TimelineFilters{}, false
		}
		filters.ActorID = parsed
	}
	filters.Entity = strings.TrimSpace(query.Get("entity"))
	filters.Action = strings.TrimSpace(query.Get("action"))

	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "page must be a positive integer")
			return TimelineFilters{}, false
		}
		filters.Page = parsed
	}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "page_size must be a positive integer")
			return TimelineFilters{}, false
		}
		filters.PageSize = parsed
	}

	return filters, true
}
