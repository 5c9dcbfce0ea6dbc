package handover

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/platform/httpx"
	"github.com/amanah-kas/amanah-kas/internal/shared"
)

// IdempotencyGuard deduplicates retried initiate requests by client key.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler wires HTTP endpoints for the handover state machine.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	idempotency IdempotencyGuard
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// WithIdempotency enables Idempotency-Key handling on initiate.
func (h *Handler) WithIdempotency(guard IdempotencyGuard) *Handler {
	h.idempotency = guard
	return h
}

// MountRoutes registers handover routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.initiate)
	r.Get("/receivers", h.validReceivers)
	r.Get("/history", h.history)
	r.Get("/pending/incoming", h.pendingIncoming)
	r.Get("/pending/outgoing", h.pendingOutgoing)
	r.Get("/pending/bank", h.pendingBank)
	r.Get("/pending/all", h.pendingAll)
	r.Get("/{handoverID}", h.get)
	r.Post("/{handoverID}/acknowledge", h.acknowledge)
	r.Post("/{handoverID}/reject", h.reject)
	r.Post("/{handoverID}/cancel", h.cancel)
}

type initiateRequest struct {
	ToUserID int64   `json:"to_user_id" validate:"required,gt=0"`
	ToRole   string  `json:"to_role" validate:"required,oneof=UNIT_ADMIN AREA_ADMIN FORUM_ADMIN BANK"`
	Amount   float64 `json:"amount" validate:"required,gt=0"`
	Notes    string  `json:"notes" validate:"omitempty,max=500"`
	Type     string  `json:"type" validate:"omitempty,oneof=NORMAL ADMIN_TRANSITION"`
}

type acknowledgeRequest struct {
	Notes string `json:"notes" validate:"omitempty,max=500"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}

	var req initiateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "cash_handover"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this idempotency key was already processed")
				return
			}
			h.respondError(w, "check idempotency key", err)
			return
		}
	}

	created, err := h.service.Initiate(r.Context(), InitiateInput{
		FromUserID: actor.UserID,
		ToUserID:   req.ToUserID,
		ToRole:     hierarchy.Role(req.ToRole),
		Amount:     req.Amount,
		Notes:      req.Notes,
		Type:       Type(req.Type),
	})
	if err != nil {
		// Release the key so the client can retry after fixing the request.
		if idemKey != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(r.Context(), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.respondError(w, "initiate handover", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	id, ok := h.handoverID(w, r)
	if !ok {
		return
	}

	var req acknowledgeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	updated, err := h.service.Acknowledge(r.Context(), AcknowledgeInput{
		HandoverID: id,
		ActorID:    actor.UserID,
		Notes:      req.Notes,
	})
	if err != nil {
		h.respondError(w, "acknowledge handover", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	id, ok := h.handoverID(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	updated, err := h.service.Reject(r.Context(), RejectInput{
		HandoverID: id,
		ActorID:    actor.UserID,
		Reason:     req.Reason,
	})
	if err != nil {
		h.respondError(w, "reject handover", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	id, ok := h.handoverID(w, r)
	if !ok {
		return
	}

	updated, err := h.service.Cancel(r.Context(), CancelInput{
		HandoverID: id,
		ActorID:    actor.UserID,
	})
	if err != nil {
		h.respondError(w, "cancel handover", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.handoverID(w, r)
	if !ok {
		return
	}
	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get handover", err)
		return
	}
	httpx.JSON(w, http.StatusOK, found)
}

func (h *Handler) pendingIncoming(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	rows, err := h.service.PendingIncoming(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, "list incoming handovers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) pendingOutgoing(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	rows, err := h.service.PendingOutgoing(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, "list outgoing handovers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) pendingBank(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.PendingForBank(r.Context())
	if err != nil {
		h.respondError(w, "list bank deposits", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) pendingAll(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.OrgPending(r.Context())
	if err != nil {
		h.respondError(w, "list pending handovers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	result, err := h.service.History(r.Context(), actor.UserID, limit)
	if err != nil {
		h.respondError(w, "get handover history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) validReceivers(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return
	}
	options, err := h.service.ValidReceivers(r.Context(), actor.UserID)
	if err != nil {
		h.respondError(w, "list valid receivers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, options)
}

func (h *Handler) handoverID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "handoverID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "handover id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, custody.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInvalidTransferPath),
		errors.Is(err, ErrInvalidRecipient),
		errors.Is(err, ErrApprovalPending),
		errors.Is(err, custody.ErrNotActive):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
