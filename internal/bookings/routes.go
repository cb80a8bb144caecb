package bookings

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/pgclosets/quote-service/internal/quotes"
	"github.com/pgclosets/quote-service/internal/shared"
)

// MountRoutes registers booking routes under the API router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/bookings/availability", h.availability)
	r.With(httprate.LimitByIP(quotes.PublicRateLimit, time.Minute)).Post("/bookings", h.create)
	r.With(h.rbac.RequireAny(shared.PermBookingsView)).Get("/admin/bookings", h.upcoming)
}
