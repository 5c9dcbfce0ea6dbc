package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/amanah-kas/amanah-kas/internal/handover"
	"github.com/amanah-kas/amanah-kas/internal/hierarchy"
	"github.com/amanah-kas/amanah-kas/internal/platform/httpx"
	"github.com/amanah-kas/amanah-kas/internal/view"
)

// ReceiptSource loads handovers for receipt rendering.
type ReceiptSource interface {
	Get(ctx context.Context, id int64) (handover.Handover, error)
}

// Handler serves handover receipts as PDF documents.
type Handler struct {
	logger    *slog.Logger
	client    *Client
	engine    *view.Engine
	handovers ReceiptSource
	now       func() time.Time
}

// NewHandler creates a receipt handler.
func NewHandler(logger *slog.Logger, client *Client, engine *view.Engine, handovers ReceiptSource) *Handler {
	return &Handler{
		logger:    logger,
		client:    client,
		engine:    engine,
		handovers: handovers,
		now:       time.Now,
	}
}

// MountRoutes registers receipt routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/handovers/{handoverID}", h.handoverReceipt)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Renderer Unavailable", "document renderer is not reachable")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handoverReceipt renders the berita acara for an acknowledged handover and
// streams it back as a PDF.
func (h *Handler) handoverReceipt(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "handoverID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "handover id must be a positive integer")
		return
	}

	found, err := h.handovers.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, handover.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "handover does not exist")
			return
		}
		h.logger.Error("load handover for receipt", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to load handover")
		return
	}
	if found.Status != handover.StatusAcknowledged {
		httpx.Problem(w, http.StatusConflict, "Receipt Unavailable", "receipts are only issued for acknowledged handovers")
		return
	}

	var html bytes.Buffer
	if err := h.engine.Render(&html, "receipt.html", buildReceiptData(found, h.now())); err != nil {
		h.logger.Error("render receipt template", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to render receipt")
		return
	}

	pdf, err := h.client.RenderHTML(r.Context(), html.String())
	if err != nil {
		h.logger.Error("convert receipt to pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Renderer Unavailable", "document renderer did not produce a PDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s.pdf", found.Number))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

type receiptData struct {
	Number         string
	IsBankDeposit  bool
	FromUserID     int64
	FromRoleLabel  string
	ToUserID       int64
	ToRoleLabel    string
	Amount         float64
	Notes          string
	ReceiverNotes  string
	InitiatedAt    time.Time
	AcknowledgedAt time.Time
	GeneratedAt    time.Time
}

func buildReceiptData(ho handover.Handover, generatedAt time.Time) receiptData {
	data := receiptData{
		Number:        ho.Number,
		IsBankDeposit: ho.ToRole == hierarchy.RoleBank,
		FromUserID:    ho.FromUserID,
		FromRoleLabel: roleLabel(ho.FromRole),
		ToUserID:      ho.ToUserID,
		ToRoleLabel:   roleLabel(ho.ToRole),
		Amount:        ho.Amount,
		Notes:         ho.Notes,
		ReceiverNotes: ho.ReceiverNotes,
		InitiatedAt:   ho.InitiatedAt,
		GeneratedAt:   generatedAt,
	}
	if ho.AcknowledgedAt != nil {
		data.AcknowledgedAt = *ho.AcknowledgedAt
	}
	return data
}

// roleLabel menerjemahkan kode peran menjadi label untuk dokumen cetak.
func roleLabel(role hierarchy.Role) string {
	switch role {
	case hierarchy.RoleAgent:
		return "Petugas Lapangan"
	case hierarchy.RoleUnitAdmin:
		return "Pengurus Unit"
	case hierarchy.RoleAreaAdmin:
		return "Pengurus Area"
	case hierarchy.RoleForumAdmin:
		return "Pengurus Forum"
	case hierarchy.RoleBank:
		return "Bank"
	default:
		return string(role)
	}
}
