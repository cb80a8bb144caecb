package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/pgclosets/quote-service/internal/platform/money"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	tmplQuoteAdmin      = "quote_admin.html"
	tmplQuoteReceived   = "quote_received.html"
	tmplQuoteStatus     = "quote_status.html"
	tmplBookingCustomer = "booking_customer.html"
	tmplBookingAdmin    = "booking_admin.html"

	quoteValidity = 30 * 24 * time.Hour
)

type baseEmailData struct {
	Title   string
	Heading string
}

type itemRow struct {
	Name      string
	Quantity  int
	UnitPrice string
}

type quoteEmailData struct {
	baseEmailData
	QuoteNumber   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Province      string
	Notes         string
	SubmittedAt   string
	ValidUntil    string
	Items         []itemRow
	Total         string
}

type statusEmailData struct {
	baseEmailData
	QuoteNumber  string
	CustomerName string
	StatusLabel  string
	Message      string
}

type bookingEmailData struct {
	baseEmailData
	ConfirmationNumber string
	QuoteNumber        string
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	Address            string
	When               string
	DurationMinutes    int
	ProjectDescription string
}

var statusCopy = map[string]struct{ label, message string }{
	"pending":                {"received", "We have your request and will be in touch shortly."},
	"contacted":              {"in review", "A member of our team has reached out and is preparing your quote."},
	"quoted":                 {"quoted", "Your detailed quote is ready. Reply to this email or book a measurement to move ahead."},
	"measurement_scheduled":  {"measurement scheduled", "We will confirm the exact fit during your in-home measurement."},
	"installation_scheduled": {"installation scheduled", "Your installation date is set. We will call the day before."},
	"installed":              {"installed", "Your doors are installed. Thanks for choosing PG Closets."},
	"converted":              {"confirmed", "Your order is confirmed. Thank you!"},
	"cancelled":              {"cancelled", "This quote has been closed. Contact us any time to start a new one."},
}

// Renderer turns events into emails and Slack messages.
type Renderer struct {
	templates map[string]*template.Template
	location  *time.Location
}

// NewRenderer parses the embedded templates. Times are shown in loc.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{templates: make(map[string]*template.Template), location: loc}
	for _, name := range []string{tmplQuoteAdmin, tmplQuoteReceived, tmplQuoteStatus, tmplBookingCustomer, tmplBookingAdmin} {
		tmpl, err := template.New("base.html").ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse email template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

func (r *Renderer) render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("email template %s not loaded", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) formatTime(t time.Time) string {
	return t.In(r.location).Format("Monday, January 2, 2006 at 3:04 PM MST")
}

func (r *Renderer) quoteData(e QuoteSubmitted, heading string) quoteEmailData {
	rows := make([]itemRow, 0, len(e.Items))
	for _, item := range e.Items {
		price := "On request"
		if item.UnitPriceCents != nil {
			price = money.FormatCAD(*item.UnitPriceCents)
		}
		rows = append(rows, itemRow{Name: item.Name, Quantity: item.Quantity, UnitPrice: price})
	}
	return quoteEmailData{
		baseEmailData: baseEmailData{Title: heading, Heading: heading},
		QuoteNumber:   e.QuoteNumber,
		CustomerName:  e.CustomerName,
		CustomerEmail: e.CustomerEmail,
		CustomerPhone: e.CustomerPhone,
		Province:      e.Province,
		Notes:         e.Notes,
		SubmittedAt:   r.formatTime(e.SubmittedAt),
		ValidUntil:    e.SubmittedAt.Add(quoteValidity).In(r.location).Format("January 2, 2006"),
		Items:         rows,
		Total:         money.FormatCAD(e.TotalCents),
	}
}

// QuoteSubmittedAdmin is the staff alert for a new quote.
func (r *Renderer) QuoteSubmittedAdmin(to string, e QuoteSubmitted) (Email, error) {
	subject := fmt.Sprintf("New quote %s from %s", e.QuoteNumber, e.CustomerName)
	html, err := r.render(tmplQuoteAdmin, r.quoteData(e, "New quote request"))
	if err != nil {
		return Email{}, err
	}
	return Email{To: to, ReplyTo: e.CustomerEmail, Subject: subject, HTML: html, Text: quoteText(e)}, nil
}

// QuoteReceived is the customer's confirmation.
func (r *Renderer) QuoteReceived(e QuoteSubmitted) (Email, error) {
	subject := fmt.Sprintf("We received your quote request (%s)", e.QuoteNumber)
	html, err := r.render(tmplQuoteReceived, r.quoteData(e, "Thanks for your request"))
	if err != nil {
		return Email{}, err
	}
	return Email{To: e.CustomerEmail, Subject: subject, HTML: html, Text: quoteText(e)}, nil
}

// QuoteStatusChanged tells the customer where their quote stands.
func (r *Renderer) QuoteStatusChanged(e QuoteStatusChanged) (Email, error) {
	copyText, ok := statusCopy[e.To]
	if !ok {
		copyText.label = strings.ReplaceAll(e.To, "_", " ")
	}
	data := statusEmailData{
		baseEmailData: baseEmailData{Title: "Quote update", Heading: "Your quote was updated"},
		QuoteNumber:   e.QuoteNumber,
		CustomerName:  e.CustomerName,
		StatusLabel:   copyText.label,
		Message:       copyText.message,
	}
	html, err := r.render(tmplQuoteStatus, data)
	if err != nil {
		return Email{}, err
	}
	text := fmt.Sprintf("Hi %s,\n\nYour quote %s is now %s.\n%s\n", e.CustomerName, e.QuoteNumber, copyText.label, copyText.message)
	return Email{
		To:      e.CustomerEmail,
		Subject: fmt.Sprintf("Quote %s: %s", e.QuoteNumber, copyText.label),
		HTML:    html,
		Text:    text,
	}, nil
}

func (r *Renderer) bookingData(e BookingConfirmed, heading string) bookingEmailData {
	return bookingEmailData{
		baseEmailData:      baseEmailData{Title: heading, Heading: heading},
		ConfirmationNumber: e.ConfirmationNumber,
		QuoteNumber:        e.QuoteNumber,
		CustomerName:       e.CustomerName,
		CustomerEmail:      e.CustomerEmail,
		CustomerPhone:      e.CustomerPhone,
		Address:            e.Address,
		When:               r.formatTime(e.ScheduledAt),
		DurationMinutes:    e.DurationMinutes,
		ProjectDescription: e.ProjectDescription,
	}
}

// BookingConfirmedCustomer confirms the appointment to the customer.
func (r *Renderer) BookingConfirmedCustomer(e BookingConfirmed) (Email, error) {
	html, err := r.render(tmplBookingCustomer, r.bookingData(e, "Your measurement is booked"))
	if err != nil {
		return Email{}, err
	}
	return Email{
		To:      e.CustomerEmail,
		Subject: fmt.Sprintf("Measurement booked: %s", e.ConfirmationNumber),
		HTML:    html,
		Text: fmt.Sprintf("Hi %s,\n\nYour measurement is booked for %s at %s.\nConfirmation: %s\n",
			e.CustomerName, r.formatTime(e.ScheduledAt), e.Address, e.ConfirmationNumber),
	}, nil
}

// BookingConfirmedAdmin alerts staff about a new appointment.
func (r *Renderer) BookingConfirmedAdmin(to string, e BookingConfirmed) (Email, error) {
	html, err := r.render(tmplBookingAdmin, r.bookingData(e, "New measurement booking"))
	if err != nil {
		return Email{}, err
	}
	return Email{
		To:      to,
		ReplyTo: e.CustomerEmail,
		Subject: fmt.Sprintf("Measurement %s on %s", e.ConfirmationNumber, e.ScheduledAt.In(r.location).Format("Jan 2 3:04 PM")),
		HTML:    html,
	}, nil
}

// QuoteSubmittedSlack summarises a new quote for the sales channel.
func (r *Renderer) QuoteSubmittedSlack(e QuoteSubmitted) SlackMessage {
	lines := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		lines = append(lines, fmt.Sprintf("• %s x%d", item.Name, item.Quantity))
	}
	contact := fmt.Sprintf("*Customer:* %s\n*Email:* %s", e.CustomerName, e.CustomerEmail)
	if e.CustomerPhone != "" {
		contact += "\n*Phone:* " + e.CustomerPhone
	}
	return SlackMessage{
		Text: fmt.Sprintf("New quote request %s", e.QuoteNumber),
		Blocks: []SlackBlock{
			Section("*New quote request*\n\n" + contact),
			Section("*Items:*\n" + strings.Join(lines, "\n")),
			Section("*Total:* " + money.FormatCAD(e.TotalCents)),
			Context(fmt.Sprintf("Quote #%s | %s", e.QuoteNumber, r.formatTime(e.SubmittedAt))),
		},
	}
}

// BookingConfirmedSlack summarises a booking for the operations channel.
func (r *Renderer) BookingConfirmedSlack(e BookingConfirmed) SlackMessage {
	text := fmt.Sprintf("*Measurement booked*\n\n*Customer:* %s\n*Phone:* %s\n*When:* %s\n*Address:* %s",
		e.CustomerName, e.CustomerPhone, r.formatTime(e.ScheduledAt), e.Address)
	ref := "Booking #" + e.ConfirmationNumber
	if e.QuoteNumber != "" {
		ref += " | Quote #" + e.QuoteNumber
	}
	return SlackMessage{
		Text:   fmt.Sprintf("Measurement booked %s", e.ConfirmationNumber),
		Blocks: []SlackBlock{Section(text), Context(ref)},
	}
}

func quoteText(e QuoteSubmitted) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Quote %s\n%s <%s>\n\n", e.QuoteNumber, e.CustomerName, e.CustomerEmail)
	for _, item := range e.Items {
		fmt.Fprintf(&b, "- %s x%d\n", item.Name, item.Quantity)
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", money.FormatCAD(e.TotalCents))
	return b.String()
}
