package quotes

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pgclosets/quote-service/internal/platform/httpx"
	"github.com/pgclosets/quote-service/internal/rbac"
	"github.com/pgclosets/quote-service/internal/shared"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxWebhookBody    = 64 << 10
)

// Handler serves the quote API.
type Handler struct {
	logger        *slog.Logger
	service       *Service
	csrf          *shared.CSRFManager
	rbac          rbac.Middleware
	webhookSecret []byte
	location      *time.Location
}

// NewHandler builds the quote handler. Dates in documents are shown in loc.
func NewHandler(logger *slog.Logger, service *Service, csrf *shared.CSRFManager, rbac rbac.Middleware, webhookSecret string, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		logger:        logger,
		service:       service,
		csrf:          csrf,
		rbac:          rbac,
		webhookSecret: []byte(webhookSecret),
		location:      loc,
	}
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var owner *int64
	if id, ok := shared.CurrentUserID(r.Context()); ok {
		owner = &id
	}
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	quote, err := h.service.Submit(r.Context(), req, owner, key)
	if err != nil {
		h.fail(w, r, "submit quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, SubmitResponse{Success: true, ID: quote.ID.String(), QuoteNumber: quote.QuoteNumber})
}

func (h *Handler) estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	est, err := h.service.Estimate(r.Context(), req)
	if err != nil {
		h.fail(w, r, "estimate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "estimate": est})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	quote, ok := h.readable(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"quote":       quote,
		"total_cents": quote.TotalCents(),
		"valid_until": quote.ValidUntil(),
	})
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	quote, ok := h.readable(w, r)
	if !ok {
		return
	}
	doc, err := RenderPDF(quote, h.location)
	if err != nil {
		h.fail(w, r, "render quote pdf", err)
		return
	}
	httpx.File(w, quote.QuoteNumber+".pdf", true, doc)
}

func (h *Handler) accountQuotes(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.viewer(r)
	if err != nil {
		h.fail(w, r, "resolve viewer", err)
		return
	}
	viewer.Admin = false
	quotes, err := h.service.ListForViewer(r.Context(), viewer)
	if err != nil {
		h.fail(w, r, "list own quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "quotes": quotes})
}

func (h *Handler) adminList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	quotes, pagination, err := h.service.List(r.Context(), ListRequest{
		Status:  Status(query.Get("status")),
		Email:   strings.TrimSpace(query.Get("email")),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.fail(w, r, "list quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "quotes": quotes, "pagination": pagination})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	rows, err := h.service.ExportRows(r.Context(), status)
	if err != nil {
		h.fail(w, r, "export quotes", err)
		return
	}
	doc, err := RenderXLSX(rows, h.location)
	if err != nil {
		h.fail(w, r, "render quote export", err)
		return
	}
	filename := "quotes-" + time.Now().In(h.location).Format("20060102") + ".xlsx"
	httpx.File(w, filename, false, doc)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		h.fail(w, r, "quote history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "history": entries})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	actorID, ok := shared.CurrentUserID(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req StatusUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quote, changed, err := h.service.UpdateStatus(r.Context(), id, req, actorID)
	if err != nil {
		h.fail(w, r, "update quote status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, StatusUpdateResponse{Success: true, Changed: changed, Quote: quote})
}

func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httpx.RespondError(w, httpx.NewValidationError("unreadable body"))
		return
	}
	if !VerifySignature(h.webhookSecret, body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("payment webhook signature rejected", slog.String("remote", r.RemoteAddr))
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var ev PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		httpx.RespondError(w, httpx.NewValidationError("malformed request body"))
		return
	}
	result, err := h.service.HandlePaymentEvent(r.Context(), ev)
	if err != nil {
		h.fail(w, r, "payment webhook", err)
		return
	}
	status := http.StatusOK
	if !result.Applied && !result.Duplicate && ev.Type == PaymentEventTypeSucceeded {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, result)
}

// readable loads the {id} quote for the current viewer, writing the error
// response itself when it cannot.
func (h *Handler) readable(w http.ResponseWriter, r *http.Request) (*Quote, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}
	viewer, err := h.viewer(r)
	if err != nil {
		h.fail(w, r, "resolve viewer", err)
		return nil, false
	}
	quote, err := h.service.Get(r.Context(), id, viewer)
	if err != nil {
		h.fail(w, r, "get quote", err)
		return nil, false
	}
	return quote, true
}

func (h *Handler) viewer(r *http.Request) (Viewer, error) {
	v := Viewer{Email: shared.CurrentEmail(r.Context())}
	if id, ok := shared.CurrentUserID(r.Context()); ok {
		v.UserID = &id
		admin, err := h.rbac.Granted(r, shared.PermQuotesView)
		if err != nil {
			return Viewer{}, err
		}
		v.Admin = admin
	}
	return v, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.String("request_path", r.URL.Path), slog.Any("error", err))
	} else if !errors.Is(err, httpx.ErrValidation) {
		h.logger.Info(op, slog.String("request_path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}
