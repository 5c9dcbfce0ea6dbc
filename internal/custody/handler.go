package custody

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

// Handler wires HTTP endpoints for the custody ledger.
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

// MountRoutes registers custody routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/collections", h.collect)
	r.Get("/me", h.myCustody)
	r.Get("/users/{userID}", h.custodyByUser)
	r.Post("/users/{userID}/deactivate", h.deactivate)
}

type collectRequest struct {
	UserID int64   `json:"user_id" validate:"omitempty,gt=0"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Notes  string  `json:"notes" validate:"omitempty,max=500"`
}

type deactivateRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}

	var req collectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.UserID == 0 {
		req.UserID = actor.UserID
	}

	updated, err := h.service.Collect(r.Context(), CollectInput{
		UserID:  req.UserID,
		Amount:  req.Amount,
		Notes:   req.Notes,
		ActorID: actor.UserID,
	})
	if err != nil {
		h.respondError(w, "collect cash", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) myCustody(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}

	c, err := h.service.ByUser(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, "get own custody", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) custodyByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "user id must be a positive integer")
		return
	}

	c, err := h.service.ByUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, "get custody by user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "user id must be a positive integer")
		return
	}

	var req deactivateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	updated, err := h.service.Deactivate(r.Context(), DeactivateInput{
		UserID:  userID,
		Reason:  req.Reason,
		ActorID: actor.UserID,
	})
	if err != nil {
		h.respondError(w, "deactivate custody", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotActive), errors.Is(err, ErrBalanceNotZero), errors.Is(err, ErrAlreadyActive):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
