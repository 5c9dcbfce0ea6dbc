package reporting

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/amanah-kas/amanah-kas/internal/custody"
	"github.com/amanah-kas/amanah-kas/internal/platform/httpx"
)

var reportGroup singleflight.Group

func sharedBuild(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := reportGroup.DoChan(key, func() (any, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Handler wires HTTP endpoints for the reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/position", h.position)
	r.Get("/overdue", h.overdue)
	r.Get("/reconciliation", h.reconciliation)
}

func (h *Handler) position(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scopeParams(w, r)
	if !ok {
		return
	}

	key := strings.Join([]string{"position", scopeToken(scope.ForumID), scopeToken(scope.AreaID)}, ":")
	value, err := sharedBuild(r.Context(), key, func(ctx context.Context) (any, error) {
		return h.service.Position(ctx, scope)
	})
	if err != nil {
		h.logger.Error("build position report", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) overdue(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("threshold_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "threshold_days must be a non-negative integer")
			return
		}
		days = parsed
	}

	key := "overdue:" + strconv.Itoa(days)
	value, err := sharedBuild(r.Context(), key, func(ctx context.Context) (any, error) {
		return h.service.OverdueCustodies(ctx, days)
	})
	if err != nil {
		h.logger.Error("build overdue report", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) reconciliation(w http.ResponseWriter, r *http.Request) {
	value, err := sharedBuild(r.Context(), "reconciliation", func(ctx context.Context) (any, error) {
		return h.service.Reconcile(ctx)
	})
	if err != nil {
		h.logger.Error("build reconciliation report", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, value)
}

func (h *Handler) scopeParams(w http.ResponseWriter, r *http.Request) (custody.RoleScope, bool) {
	var scope custody.RoleScope
	if raw := r.URL.Query().Get("forum_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "forum_id must be a positive integer")
			return custody.RoleScope{}, false
		}
		scope.ForumID = &id
	}
	if raw := r.URL.Query().Get("area_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "area_id must be a positive integer")
			return custody.RoleScope{}, false
		}
		scope.AreaID = &id
	}
	return scope, true
}
