package bookings

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pgclosets/quote-service/internal/platform/httpx"
	"github.com/pgclosets/quote-service/internal/rbac"
)

const idempotencyHeader = "Idempotency-Key"

// Handler serves the booking API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the booking handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		httpx.RespondError(w, httpx.NewValidationError("Date parameter is required"))
		return
	}
	out, err := h.service.Availability(r.Context(), date)
	if err != nil {
		h.fail(w, r, "booking availability", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"date":             out.Date,
		"timezone":         TimeZone,
		"duration_minutes": DurationMinutes,
		"slots":            out.Slots,
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	booking, quote, err := h.service.Create(r.Context(), req, key)
	if err != nil {
		h.fail(w, r, "create booking", err)
		return
	}
	resp := CreateResponse{
		Success:            true,
		ID:                 booking.ID.String(),
		ConfirmationNumber: booking.ConfirmationNumber,
		ScheduledAt:        booking.ScheduledAt.Format(time.RFC3339),
		DurationMinutes:    booking.DurationMinutes,
		Status:             booking.Status,
	}
	if quote != nil {
		resp.QuoteStatus = string(quote.Status)
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) upcoming(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Upcoming(r.Context())
	if err != nil {
		h.fail(w, r, "list bookings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "bookings": rows})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("request_path", r.URL.Path), slog.Any("error", err))
	} else if !errors.Is(err, httpx.ErrValidation) {
		h.logger.Info(op, slog.String("request_path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
