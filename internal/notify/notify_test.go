package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuote() QuoteSubmitted {
	price := int64(129900)
	return QuoteSubmitted{
		QuoteID:       "7d3c1a52-5f0e-4ad4-9a39-2f5c4e0e9b11",
		QuoteNumber:   "QT-LX2K9A1B-7QF3ZD",
		CustomerName:  "Jordan <Lee>",
		CustomerEmail: "jordan@example.com",
		CustomerPhone: "+16135550199",
		Province:      "ON",
		Items: []QuoteItem{
			{Name: "Renin Bypass 72in", Quantity: 2, UnitPriceCents: &price},
			{Name: "Custom shelving", Quantity: 1},
		},
		TotalCents:  259800,
		SubmittedAt: time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC),
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	r, err := NewRenderer(loc)
	require.NoError(t, err)
	return r
}

func TestRenderQuoteEmails(t *testing.T) {
	r := newTestRenderer(t)
	e := sampleQuote()

	admin, err := r.QuoteSubmittedAdmin("sales@pgclosets.com", e)
	require.NoError(t, err)
	assert.Equal(t, "sales@pgclosets.com", admin.To)
	assert.Equal(t, "jordan@example.com", admin.ReplyTo)
	assert.Contains(t, admin.Subject, e.QuoteNumber)
	assert.Contains(t, admin.HTML, "$1,299.00")
	assert.Contains(t, admin.HTML, "On request")
	assert.Contains(t, admin.HTML, "$2,598.00")
	assert.Contains(t, admin.HTML, "Jordan &lt;Lee&gt;", "customer input is escaped")
	assert.Contains(t, admin.HTML, "10:30 AM EST")

	customer, err := r.QuoteReceived(e)
	require.NoError(t, err)
	assert.Equal(t, "jordan@example.com", customer.To)
	assert.Contains(t, customer.HTML, "April 1, 2026")
	assert.Contains(t, customer.Text, "Total: $2,598.00")
}

func TestRenderStatusEmail(t *testing.T) {
	r := newTestRenderer(t)
	msg, err := r.QuoteStatusChanged(QuoteStatusChanged{
		QuoteNumber:   "QT-1",
		CustomerName:  "Sam",
		CustomerEmail: "sam@example.com",
		From:          "contacted",
		To:            "measurement_scheduled",
	})
	require.NoError(t, err)
	assert.Equal(t, "Quote QT-1: measurement scheduled", msg.Subject)
	assert.Contains(t, msg.HTML, "in-home measurement")
}

func TestRenderBookingEmails(t *testing.T) {
	r := newTestRenderer(t)
	e := BookingConfirmed{
		ConfirmationNumber: "MB-123456-ABC",
		CustomerName:       "Sam",
		CustomerEmail:      "sam@example.com",
		CustomerPhone:      "+16135550100",
		Address:            "1 Main St, Ottawa, ON K1A 0B1",
		ScheduledAt:        time.Date(2026, 7, 14, 13, 0, 0, 0, time.UTC),
		DurationMinutes:    120,
	}
	customer, err := r.BookingConfirmedCustomer(e)
	require.NoError(t, err)
	assert.Contains(t, customer.HTML, "9:00 AM EDT")
	assert.Contains(t, customer.HTML, "120 minutes")

	admin, err := r.BookingConfirmedAdmin("ops@pgclosets.com", e)
	require.NoError(t, err)
	assert.Equal(t, "Measurement MB-123456-ABC on Jul 14 9:00 AM", admin.Subject)
}

func TestSlackPost(t *testing.T) {
	var got SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newTestRenderer(t)
	slack := NewSlack(srv.URL, srv.Client())
	require.NoError(t, slack.Post(context.Background(), r.QuoteSubmittedSlack(sampleQuote())))

	assert.Equal(t, "New quote request QT-LX2K9A1B-7QF3ZD", got.Text)
	require.Len(t, got.Blocks, 4)
	assert.Contains(t, got.Blocks[1].Text.Text, "Renin Bypass 72in x2")
	assert.Equal(t, "context", got.Blocks[3].Type)
}

func TestSlackPostErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewSlack(srv.URL, srv.Client()).Post(context.Background(), SlackMessage{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	disabled := NewSlack("", nil)
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.Post(context.Background(), SlackMessage{Text: "x"}))
}
