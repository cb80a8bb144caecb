package quotes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgclosets/quote-service/internal/notify"
	"github.com/pgclosets/quote-service/internal/platform/httpx"
	"github.com/pgclosets/quote-service/internal/pricing"
	"github.com/pgclosets/quote-service/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	mu       sync.Mutex
	quotes   map[uuid.UUID]*Quote
	byNumber map[string]uuid.UUID
	logs     map[uuid.UUID][]StatusLogEntry
	nextLog  int64

	createErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		quotes:   make(map[uuid.UUID]*Quote),
		byNumber: make(map[string]uuid.UUID),
		logs:     make(map[uuid.UUID][]StatusLogEntry),
		nextLog:  1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Create(ctx context.Context, q *Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, taken := m.byNumber[q.QuoteNumber]; taken {
		return ErrNumberTaken
	}
	stored := *q
	stored.Items = append([]LineItem(nil), q.Items...)
	m.quotes[q.ID] = &stored
	m.byNumber[q.QuoteNumber] = q.ID
	return nil
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (*Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *mockRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return m.Get(ctx, id)
}

func (m *mockRepository) GetByNumber(ctx context.Context, number string) (*Quote, error) {
	m.mu.Lock()
	id, ok := m.byNumber[strings.ToUpper(number)]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, note string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return ErrNotFound
	}
	q.Status = status
	q.UpdatedAt = at
	if note != "" {
		if q.InternalNotes != "" {
			q.InternalNotes += "\n"
		}
		q.InternalNotes += note
	}
	return nil
}

func (m *mockRepository) InsertStatusLog(ctx context.Context, entry StatusLogEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.nextLog
	m.nextLog++
	m.logs[entry.QuoteID] = append(m.logs[entry.QuoteID], entry)
	return entry.ID, nil
}

func (m *mockRepository) History(ctx context.Context, id uuid.UUID) ([]StatusLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StatusLogEntry{}, m.logs[id]...), nil
}

func (m *mockRepository) List(ctx context.Context, req ListRequest) ([]QuoteSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []QuoteSummary
	for _, q := range m.quotes {
		if req.Status != "" && q.Status != req.Status {
			continue
		}
		all = append(all, summarize(q))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].QuoteNumber < all[j].QuoteNumber })
	limit, offset := req.limitOffset()
	total := len(all)
	if offset >= total {
		return []QuoteSummary{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepository) ListForOwner(ctx context.Context, ownerID *int64, email string) ([]QuoteSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []QuoteSummary
	for _, q := range m.quotes {
		if (ownerID != nil && q.OwnerID != nil && *q.OwnerID == *ownerID) || (email != "" && strings.EqualFold(email, q.CustomerEmail)) {
			out = append(out, summarize(q))
		}
	}
	return out, nil
}

func summarize(q *Quote) QuoteSummary {
	return QuoteSummary{
		ID: q.ID, QuoteNumber: q.QuoteNumber, CustomerName: q.CustomerName, CustomerEmail: q.CustomerEmail,
		Province: q.Province, Status: q.Status, ItemCount: len(q.Items), TotalCents: q.TotalCents(),
		CreatedAt: q.CreatedAt, UpdatedAt: q.UpdatedAt,
	}
}

// seed stores a quote directly in the given status.
func (m *mockRepository) seed(number string, status Status, email string) *Quote {
	price := int64(45000)
	q := &Quote{
		ID:            uuid.New(),
		QuoteNumber:   number,
		CustomerName:  "Avery Tremblay",
		CustomerEmail: email,
		Items:         []LineItem{{ProductID: "bypass-72", Name: "Bypass door 72in", Quantity: 2, UnitPriceCents: &price}},
		InternalNotes: "prefers mornings",
		Status:        status,
		CreatedAt:     time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}
	m.quotes[q.ID] = q
	m.byNumber[number] = q.ID
	return q
}

type recordingDispatcher struct {
	mu        sync.Mutex
	submitted []notify.QuoteSubmitted
	changed   []notify.QuoteStatusChanged
	err       error
}

func (d *recordingDispatcher) QuoteSubmitted(ctx context.Context, e notify.QuoteSubmitted) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, e)
	return d.err
}

func (d *recordingDispatcher) QuoteStatusChanged(ctx context.Context, e notify.QuoteStatusChanged) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changed = append(d.changed, e)
	return d.err
}

func (d *recordingDispatcher) BookingConfirmed(ctx context.Context, e notify.BookingConfirmed) error {
	return d.err
}

type memoryIdempotency struct {
	keys map[string]bool
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]bool)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	k := module + ":" + key
	if m.keys[k] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[k] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	delete(m.keys, module+":"+key)
	return nil
}

type sequenceNumbers struct {
	numbers []string
	calls   int
}

func (s *sequenceNumbers) Next() (string, error) {
	n := s.numbers[s.calls%len(s.numbers)]
	s.calls++
	return n, nil
}

type fixture struct {
	svc        *Service
	repo       *mockRepository
	dispatcher *recordingDispatcher
	idem       *memoryIdempotency
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	calc, err := pricing.NewCalculator(pricing.DefaultRules())
	require.NoError(t, err)
	repo := newMockRepository()
	dispatcher := &recordingDispatcher{}
	idem := newMemoryIdempotency()
	svc := NewService(ServiceDeps{
		Repo:        repo,
		Calculator:  calc,
		Dispatcher:  dispatcher,
		Idempotency: idem,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	svc.now = func() time.Time { return time.Date(2026, 4, 1, 14, 30, 0, 0, time.UTC) }
	return fixture{svc: svc, repo: repo, dispatcher: dispatcher, idem: idem}
}

func validSubmit() SubmitRequest {
	price := int64(129900)
	return SubmitRequest{
		CustomerName:  " Jordan Lee ",
		CustomerEmail: "Jordan@Example.com",
		CustomerPhone: "(613) 722-4400",
		Province:      "on",
		Notes:         "Two closets upstairs",
		Items: []LineItemRequest{
			{ProductID: "bifold-36", Name: "Bifold door 36in", Quantity: 2, UnitPriceCents: &price, Category: "bifold",
				Options: map[string]any{"finish": "white", "width": 36}},
			{ProductID: "mirror-48", Name: "Mirror door 48in", Quantity: 1},
		},
	}
}

// ============================================================================
// SUBMISSION
// ============================================================================

func TestSubmitCreatesPendingQuote(t *testing.T) {
	f := newFixture(t)
	owner := int64(42)

	quote, err := f.svc.Submit(context.Background(), validSubmit(), &owner, "")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, quote.Status)
	assert.Regexp(t, `^QT-[0-9A-Z]+-[0-9A-Z]{6}$`, quote.QuoteNumber)
	assert.Equal(t, "Jordan Lee", quote.CustomerName)
	assert.Equal(t, "jordan@example.com", quote.CustomerEmail)
	assert.Equal(t, "+16137224400", quote.CustomerPhone)
	assert.Equal(t, "ON", quote.Province)
	assert.Equal(t, int64(259800), quote.TotalCents())
	require.NotNil(t, quote.OwnerID)
	assert.Equal(t, owner, *quote.OwnerID)

	stored, err := f.repo.Get(context.Background(), quote.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.Empty(t, f.repo.logs[quote.ID], "creation is not a transition")

	require.Len(t, f.dispatcher.submitted, 1)
	assert.Equal(t, quote.QuoteNumber, f.dispatcher.submitted[0].QuoteNumber)
	assert.Equal(t, int64(259800), f.dispatcher.submitted[0].TotalCents)
}

func TestSubmitValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*SubmitRequest)
		want   string
	}{
		"no items":      {func(r *SubmitRequest) { r.Items = nil }, "At least one item is required"},
		"bad email":     {func(r *SubmitRequest) { r.CustomerEmail = "not-an-email" }, "Invalid email address"},
		"short name":    {func(r *SubmitRequest) { r.CustomerName = "J" }, "customer_name must be at least 2 characters"},
		"zero quantity": {func(r *SubmitRequest) { r.Items[0].Quantity = 0 }, "items[0].quantity must be greater than 0"},
		"bad phone":     {func(r *SubmitRequest) { r.CustomerPhone = "12" }, "Invalid phone number"},
		"missing name":  {func(r *SubmitRequest) { r.Items[1].Name = "  " }, "items[1].name is required"},
		"price above cap": {func(r *SubmitRequest) {
			price := int64(100_000_001)
			r.Items[0].UnitPriceCents = &price
		}, "items[0].unit_price_cents must be at most 100000000"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			req := validSubmit()
			tc.mutate(&req)

			_, err := f.svc.Submit(context.Background(), req, nil, "")
			var verr *httpx.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Messages, tc.want)
			assert.Empty(t, f.repo.quotes)
			assert.Empty(t, f.dispatcher.submitted)
		})
	}
}

func TestSubmitSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("redis: connection refused")

	quote, err := f.svc.Submit(context.Background(), validSubmit(), nil, "")
	require.NoError(t, err)

	_, err = f.repo.Get(context.Background(), quote.ID)
	assert.NoError(t, err)
	assert.Len(t, f.dispatcher.submitted, 1)
}

func TestSubmitRetriesNumberCollision(t *testing.T) {
	f := newFixture(t)
	f.repo.seed("QT-TAKEN-AAAAAA", StatusPending, "someone@example.com")
	numbers := &sequenceNumbers{numbers: []string{"QT-TAKEN-AAAAAA", "QT-TAKEN-AAAAAA", "QT-FRESH-BBBBBB"}}
	f.svc.numbers = numbers

	quote, err := f.svc.Submit(context.Background(), validSubmit(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "QT-FRESH-BBBBBB", quote.QuoteNumber)
	assert.Equal(t, 3, numbers.calls)
}

func TestSubmitGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	f.repo.seed("QT-TAKEN-AAAAAA", StatusPending, "someone@example.com")
	numbers := &sequenceNumbers{numbers: []string{"QT-TAKEN-AAAAAA"}}
	f.svc.numbers = numbers

	_, err := f.svc.Submit(context.Background(), validSubmit(), nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNumberTaken)
	assert.Equal(t, maxNumberAttempts, numbers.calls)
	assert.Empty(t, f.dispatcher.submitted)
}

func TestSubmitIdempotencyKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), validSubmit(), nil, "form-123")
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), validSubmit(), nil, "form-123")
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	assert.Len(t, f.repo.quotes, 1)
}

func TestSubmitReleasesKeyWhenStoreFails(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = errors.New("connection reset")

	_, err := f.svc.Submit(context.Background(), validSubmit(), nil, "form-9")
	require.Error(t, err)
	assert.Empty(t, f.idem.keys)
}

// ============================================================================
// READS
// ============================================================================

func TestGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.repo.seed("QT-1-AAAAAA", StatusQuoted, "owner@example.com")
	ownerID := int64(7)
	q.OwnerID = &ownerID

	t.Run("stranger sees not found", func(t *testing.T) {
		other := int64(8)
		_, err := f.svc.Get(ctx, q.ID, Viewer{UserID: &other, Email: "someone@example.com"})
		assert.ErrorIs(t, err, httpx.ErrNotFound)
	})
	t.Run("anonymous sees not found", func(t *testing.T) {
		_, err := f.svc.Get(ctx, q.ID, Viewer{})
		assert.ErrorIs(t, err, httpx.ErrNotFound)
	})
	t.Run("owner by account", func(t *testing.T) {
		got, err := f.svc.Get(ctx, q.ID, Viewer{UserID: &ownerID})
		require.NoError(t, err)
		assert.Empty(t, got.InternalNotes)
	})
	t.Run("owner by verified email", func(t *testing.T) {
		_, err := f.svc.Get(ctx, q.ID, Viewer{Email: "OWNER@example.com"})
		assert.NoError(t, err)
	})
	t.Run("admin sees internal notes", func(t *testing.T) {
		admin := int64(1)
		got, err := f.svc.Get(ctx, q.ID, Viewer{UserID: &admin, Admin: true})
		require.NoError(t, err)
		assert.Equal(t, "prefers mornings", got.InternalNotes)
	})
}

func TestListPaginatesAndFilters(t *testing.T) {
	f := newFixture(t)
	for i, status := range []Status{StatusPending, StatusPending, StatusQuoted} {
		f.repo.seed("QT-"+string(rune('A'+i))+"-AAAAAA", status, "c@example.com")
	}

	rows, page, err := f.svc.List(context.Background(), ListRequest{Status: StatusPending, PerPage: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)

	_, _, err = f.svc.List(context.Background(), ListRequest{Status: "lost"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

// ============================================================================
// STATUS UPDATES
// ============================================================================

func TestUpdateStatusRecordsTransition(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-2-AAAAAA", StatusPending, "c@example.com")

	updated, changed, err := f.svc.UpdateStatus(context.Background(), q.ID, StatusUpdateRequest{
		Status: StatusContacted, Reason: "called customer", InternalNote: "left voicemail",
	}, 5)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusContacted, updated.Status)
	assert.Equal(t, "prefers mornings\nleft voicemail", updated.InternalNotes)

	logs := f.repo.logs[q.ID]
	require.Len(t, logs, 1)
	assert.Equal(t, StatusPending, logs[0].From)
	assert.Equal(t, StatusContacted, logs[0].To)
	assert.Equal(t, "called customer", logs[0].Reason)
	require.NotNil(t, logs[0].ActorID)
	assert.Equal(t, int64(5), *logs[0].ActorID)
	assert.False(t, logs[0].Override)

	require.Len(t, f.dispatcher.changed, 1)
	assert.Equal(t, "contacted", f.dispatcher.changed[0].To)
}

func TestUpdateStatusNoOpWritesNothing(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-3-AAAAAA", StatusPending, "c@example.com")
	req := StatusUpdateRequest{Status: StatusContacted}

	_, changed, err := f.svc.UpdateStatus(context.Background(), q.ID, req, 5)
	require.NoError(t, err)
	require.True(t, changed)

	again, changed, err := f.svc.UpdateStatus(context.Background(), q.ID, req, 5)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusContacted, again.Status)
	assert.Len(t, f.repo.logs[q.ID], 1)
	assert.Len(t, f.dispatcher.changed, 1)
}

func TestUpdateStatusRejectsSkippingStates(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-4-AAAAAA", StatusPending, "c@example.com")

	_, _, err := f.svc.UpdateStatus(context.Background(), q.ID, StatusUpdateRequest{Status: StatusConverted}, 5)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, http.StatusConflict, httpx.StatusFor(err))
	assert.Empty(t, f.repo.logs[q.ID])
	assert.Equal(t, StatusPending, f.repo.quotes[q.ID].Status)
}

func TestUpdateStatusOverride(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-5-AAAAAA", StatusPending, "c@example.com")

	_, _, err := f.svc.UpdateStatus(context.Background(), q.ID, StatusUpdateRequest{Status: StatusConverted, Override: true}, 5)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Empty(t, f.repo.logs[q.ID])

	updated, changed, err := f.svc.UpdateStatus(context.Background(), q.ID, StatusUpdateRequest{
		Status: StatusConverted, Override: true, Reason: "paid in store",
	}, 5)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusConverted, updated.Status)
	logs := f.repo.logs[q.ID]
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Override)
	assert.Equal(t, "paid in store", logs[0].Reason)
}

func TestUpdateStatusTerminalEvenWithOverride(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-6-AAAAAA", StatusCancelled, "c@example.com")

	_, _, err := f.svc.UpdateStatus(context.Background(), q.ID, StatusUpdateRequest{
		Status: StatusPending, Override: true, Reason: "customer came back",
	}, 5)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, f.repo.logs[q.ID])
}

func TestUpdateStatusExpectedFromMismatch(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-7-AAAAAA", StatusContacted, "c@example.com")

	_, _, err := f.svc.UpdateStatus(context.Background(), q.ID, StatusUpdateRequest{
		Status: StatusQuoted, From: StatusPending,
	}, 5)
	assert.ErrorIs(t, err, ErrStatusMismatch)
	assert.ErrorIs(t, err, httpx.ErrConflict)
	assert.Equal(t, StatusContacted, f.repo.quotes[q.ID].Status)
}

func TestUpdateStatusUnknownQuote(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.UpdateStatus(context.Background(), uuid.New(), StatusUpdateRequest{Status: StatusContacted}, 5)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestStatusChangeSurvivesNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue down")
	q := f.repo.seed("QT-8-AAAAAA", StatusPending, "c@example.com")

	_, changed, err := f.svc.UpdateStatus(context.Background(), q.ID, StatusUpdateRequest{Status: StatusCancelled}, 5)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusCancelled, f.repo.quotes[q.ID].Status)
}

func TestSystemTransitionHasNoActor(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-9-AAAAAA", StatusQuoted, "c@example.com")

	_, _, err := f.svc.ApplySystemTransition(context.Background(), "qt-9-aaaaaa", StatusContacted, StatusMeasurementScheduled, "booking")
	assert.ErrorIs(t, err, ErrStatusMismatch)

	_, changed, err := f.svc.ApplySystemTransition(context.Background(), "QT-9-AAAAAA", StatusQuoted, StatusMeasurementScheduled, "booking MB-1")
	require.NoError(t, err)
	assert.True(t, changed)
	logs := f.repo.logs[q.ID]
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].ActorID)
}

// ============================================================================
// PAYMENTS
// ============================================================================

func TestPaymentEventConvertsQuotedQuote(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-10-AAAAAA", StatusQuoted, "c@example.com")
	ev := PaymentEvent{ID: "evt_1", Type: PaymentEventTypeSucceeded, QuoteNumber: q.QuoteNumber, AmountCents: 90000}

	result, err := f.svc.HandlePaymentEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, StatusConverted, result.Status)

	again, err := f.svc.HandlePaymentEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.False(t, again.Applied)
	assert.Len(t, f.repo.logs[q.ID], 1)
}

func TestPaymentEventForPendingQuoteIsNotApplied(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-11-AAAAAA", StatusPending, "c@example.com")

	result, err := f.svc.HandlePaymentEvent(context.Background(), PaymentEvent{
		ID: "evt_2", Type: PaymentEventTypeSucceeded, QuoteNumber: q.QuoteNumber,
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, StatusPending, result.Status)
	assert.Empty(t, f.repo.logs[q.ID])
}

func TestPaymentEventForConvertedQuoteIsNoop(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-13-AAAAAA", StatusConverted, "c@example.com")

	result, err := f.svc.HandlePaymentEvent(context.Background(), PaymentEvent{
		ID: "evt_5", Type: PaymentEventTypeSucceeded, QuoteNumber: q.QuoteNumber,
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, StatusConverted, result.Status)
	assert.Empty(t, f.repo.logs[q.ID])
}

func TestPaymentEventUnknownQuoteReleasesKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandlePaymentEvent(context.Background(), PaymentEvent{
		ID: "evt_3", Type: PaymentEventTypeSucceeded, QuoteNumber: "QT-NOPE-000000",
	})
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	assert.Empty(t, f.idem.keys)
}

func TestPaymentEventOtherTypesIgnored(t *testing.T) {
	f := newFixture(t)
	q := f.repo.seed("QT-12-AAAAAA", StatusQuoted, "c@example.com")

	result, err := f.svc.HandlePaymentEvent(context.Background(), PaymentEvent{
		ID: "evt_4", Type: "payment.failed", QuoteNumber: q.QuoteNumber,
	})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, StatusQuoted, f.repo.quotes[q.ID].Status)
}

// ============================================================================
// ESTIMATE
// ============================================================================

func TestEstimateReportsFallbacks(t *testing.T) {
	f := newFixture(t)
	est, err := f.svc.Estimate(context.Background(), EstimateRequest{
		Products: []pricing.PricingInput{{
			ProductID: "bypass-60", MSRPCents: 50000, WidthIn: 60, HeightIn: 80, Quantity: 1,
			IncludeInstallation: true, CustomerType: "wholesale", PostalCode: "K1A 0B1", DoorType: "pocket-glass",
		}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{pricing.FallbackCustomerType, pricing.FallbackDoorType}, est.Totals.Fallbacks)
}

func TestEstimateValidation(t *testing.T) {
	valid := pricing.PricingInput{
		ProductID: "bypass-60", MSRPCents: 50000, WidthIn: 60, HeightIn: 80, Quantity: 1, PostalCode: "K1A 0B1",
	}
	tooMany := make([]pricing.PricingInput, 21)
	for i := range tooMany {
		tooMany[i] = valid
	}
	wide := valid
	wide.WidthIn = 500

	cases := map[string]struct {
		products []pricing.PricingInput
		want     string
	}{
		"no products":   {nil, "At least one product is required"},
		"too many":      {tooMany, "products must be at most 20"},
		"out of range":  {[]pricing.PricingInput{valid, wide}, "products[1].width_in must be at most 120"},
		"no product id": {[]pricing.PricingInput{{WidthIn: 60, HeightIn: 80, Quantity: 1, PostalCode: "K1A 0B1"}}, "products[0].product_id is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Estimate(context.Background(), EstimateRequest{Products: tc.products})
			var verr *httpx.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Messages, tc.want)
		})
	}
}
