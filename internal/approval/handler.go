package approval

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/amanah-kas/amanah-kas/internal/platform/httpx"
	"github.com/amanah-kas/amanah-kas/internal/shared"
)

// Handler wires HTTP endpoints for approval decisions.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers approval routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pending", h.pending)
	r.Get("/{requestID}", h.get)
	r.Post("/{requestID}/approve", h.approve)
	r.Post("/{requestID}/reject", h.reject)
}

type approveRequest struct {
	Note string `json:"note" validate:"omitempty,max=500"`
}

type rejectDecisionRequest struct {
	Note string `json:"note" validate:"required,max=500"`
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	workflow := r.URL.Query().Get("workflow")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	rows, err := h.service.ListPending(r.Context(), workflow, limit)
	if err != nil {
		h.respondError(w, "list pending approvals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get approval request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, found)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	decided, err := h.service.Approve(r.Context(), id, actor.UserID, req.Note)
	if err != nil {
		h.respondError(w, "approve request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decided)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}

	var req rejectDecisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	decided, err := h.service.Reject(r.Context(), id, actor.UserID, req.Note)
	if err != nil {
		h.respondError(w, "reject request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decided)
}

func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "request id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrAlreadyDecided):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
