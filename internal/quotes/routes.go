package quotes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pgclosets/quote-service/internal/shared"
)

// PublicRateLimit is the per-IP budget for anonymous write routes.
const PublicRateLimit = 10

// MountRoutes registers quote routes under the API router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(PublicRateLimit, time.Minute))
		r.Post("/quotes", h.submit)
		r.Post("/quotes/estimate", h.estimate)
	})
	r.Get("/quotes/{id}", h.show)
	r.Get("/quotes/{id}/pdf", h.pdf)
	r.With(h.rbac.RequireUser()).Get("/account/quotes", h.accountQuotes)
	r.Post("/webhooks/payments", h.paymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermQuotesView))
		r.Get("/admin/quotes", h.adminList)
		r.Get("/admin/quotes/{id}/history", h.history)
	})
	r.With(h.rbac.RequireAny(shared.PermQuotesExport)).Get("/admin/quotes/export.xlsx", h.export)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuotesStatusUpdate))
		r.Use(h.csrf.Protect(h.logger))
		r.Post("/admin/quotes/{id}/status", h.updateStatus)
	})
}
