package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pgclosets/quote-service/internal/notify"
	"github.com/pgclosets/quote-service/internal/observability"
	"github.com/pgclosets/quote-service/internal/platform/httpx"
	"github.com/pgclosets/quote-service/internal/platform/phone"
	"github.com/pgclosets/quote-service/internal/pricing"
	"github.com/pgclosets/quote-service/internal/shared"
)

// ErrDuplicateSubmission is returned when an Idempotency-Key was already used.
var ErrDuplicateSubmission = fmt.Errorf("%w: quote already submitted", httpx.ErrDuplicate)

// IdempotencyChecker records processed request keys.
type IdempotencyChecker interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

type numberSource interface {
	Next() (string, error)
}

// Service implements quote submission and the status lifecycle.
type Service struct {
	repo       Repository
	calc       *pricing.Calculator
	dispatcher notify.Dispatcher
	idem       IdempotencyChecker
	validator  *httpx.Validator
	metrics    *observability.Metrics
	logger     *slog.Logger
	numbers    numberSource
	now        func() time.Time
}

// ServiceDeps groups Service collaborators.
type ServiceDeps struct {
	Repo        Repository
	Calculator  *pricing.Calculator
	Dispatcher  notify.Dispatcher
	Idempotency IdempotencyChecker
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// NewService constructs the quote service.
func NewService(deps ServiceDeps) *Service {
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       deps.Repo,
		calc:       deps.Calculator,
		dispatcher: dispatcher,
		idem:       deps.Idempotency,
		validator:  httpx.NewValidator(),
		metrics:    deps.Metrics,
		logger:     logger,
		numbers:    NewNumberGenerator(),
		now:        time.Now,
	}
}

// Submit validates and stores a new pending quote. Notification failures are
// logged and never fail the submission.
func (s *Service) Submit(ctx context.Context, req SubmitRequest, ownerID *int64, idempotencyKey string) (*Quote, error) {
	req.Normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	phoneE164, err := phone.NormalizeE164(req.CustomerPhone)
	if err != nil {
		return nil, httpx.NewValidationError("Invalid phone number")
	}

	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, shared.IdempotencyQuoteSubmit); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, ErrDuplicateSubmission
			}
			return nil, fmt.Errorf("%w: idempotency: %v", httpx.ErrDependency, err)
		}
	}

	now := s.now().UTC()
	quote := &Quote{
		OwnerID:       ownerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: phoneE164,
		Province:      req.Province,
		Items:         make([]LineItem, 0, len(req.Items)),
		Notes:         req.Notes,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, item := range req.Items {
		quote.Items = append(quote.Items, LineItem{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			Category:       item.Category,
			Options:        item.Options,
		})
	}

	if err := s.create(ctx, quote); err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, idempotencyKey, shared.IdempotencyQuoteSubmit); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return nil, err
	}

	s.metrics.QuoteSubmitted()
	s.logger.Info("quote submitted",
		slog.String("quote_number", quote.QuoteNumber),
		slog.Int("items", len(quote.Items)),
	)
	s.notify(notify.EventQuoteSubmitted, func() error {
		return s.dispatcher.QuoteSubmitted(ctx, submittedEvent(quote))
	})
	return quote, nil
}

// create inserts the quote, drawing a fresh number after each collision.
func (s *Service) create(ctx context.Context, quote *Quote) error {
	var lastErr error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := s.numbers.Next()
		if err != nil {
			return fmt.Errorf("generate quote number: %w", err)
		}
		quote.ID = uuid.New()
		quote.QuoteNumber = number
		err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			return repo.Create(ctx, quote)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return fmt.Errorf("create quote: %w", err)
		}
		s.logger.Warn("quote number collision", slog.String("quote_number", number), slog.Int("attempt", attempt))
		lastErr = err
	}
	return fmt.Errorf("create quote after %d attempts: %w", maxNumberAttempts, lastErr)
}

// Get returns the quote when viewer may read it. Unreadable quotes are
// reported as not found.
func (s *Service) Get(ctx context.Context, id uuid.UUID, viewer Viewer) (*Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanRead(quote) {
		return nil, ErrNotFound
	}
	if !viewer.Admin {
		quote.InternalNotes = ""
	}
	return quote, nil
}

// FindByNumber looks a quote up by its public number.
func (s *Service) FindByNumber(ctx context.Context, number string) (*Quote, error) {
	return s.repo.GetByNumber(ctx, number)
}

// ListForViewer returns the viewer's own quotes.
func (s *Service) ListForViewer(ctx context.Context, viewer Viewer) ([]QuoteSummary, error) {
	if viewer.UserID == nil && viewer.Email == "" {
		return nil, httpx.ErrUnauthorized
	}
	return s.repo.ListForOwner(ctx, viewer.UserID, viewer.Email)
}

// List returns a page of quotes for staff.
func (s *Service) List(ctx context.Context, req ListRequest) ([]QuoteSummary, shared.Pagination, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, shared.Pagination{}, httpx.NewValidationError(fmt.Sprintf("unknown status %q", req.Status))
	}
	rows, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	perPage, _ := req.limitOffset()
	return rows, shared.NewPagination(req.Page, perPage, total), nil
}

// History returns the status log of a quote, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]StatusLogEntry, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// UpdateStatus applies a staff transition. The bool reports whether the
// status changed; a request for the current status writes nothing.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req StatusUpdateRequest, actorID int64) (*Quote, bool, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	req.InternalNote = strings.TrimSpace(req.InternalNote)
	if err := s.validator.Struct(req); err != nil {
		return nil, false, err
	}
	if !req.Status.Valid() {
		return nil, false, httpx.NewValidationError(fmt.Sprintf("unknown status %q", req.Status))
	}
	if req.From != "" && !req.From.Valid() {
		return nil, false, httpx.NewValidationError(fmt.Sprintf("unknown status %q", req.From))
	}
	actor := actorID
	return s.transition(ctx, func(ctx context.Context, repo Repository) (*Quote, error) {
		return repo.GetForUpdate(ctx, id)
	}, change{
		expected:     req.From,
		to:           req.Status,
		reason:       req.Reason,
		internalNote: req.InternalNote,
		override:     req.Override,
		actorID:      &actor,
	})
}

// ApplySystemTransition moves the quote identified by number without an
// actor. When from is set the quote must currently be in that status.
func (s *Service) ApplySystemTransition(ctx context.Context, number string, from, to Status, reason string) (*Quote, bool, error) {
	return s.transition(ctx, func(ctx context.Context, repo Repository) (*Quote, error) {
		found, err := repo.GetByNumber(ctx, number)
		if err != nil {
			return nil, err
		}
		return repo.GetForUpdate(ctx, found.ID)
	}, change{expected: from, to: to, reason: reason})
}

type change struct {
	expected     Status
	to           Status
	reason       string
	internalNote string
	override     bool
	actorID      *int64
}

func (s *Service) transition(ctx context.Context, load func(context.Context, Repository) (*Quote, error), c change) (*Quote, bool, error) {
	var (
		quote   *Quote
		from    Status
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := load(ctx, repo)
		if err != nil {
			return err
		}
		quote = current
		from = current.Status
		if c.expected != "" && c.expected != current.Status {
			return fmt.Errorf("%w: expected %s, found %s", ErrStatusMismatch, c.expected, current.Status)
		}
		if current.Status == c.to {
			return nil
		}
		t := Transition{From: current.Status, To: c.to, Reason: c.reason, Override: c.override}
		if err := t.Check(); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := repo.UpdateStatus(ctx, current.ID, c.to, c.internalNote, now); err != nil {
			return err
		}
		if _, err := repo.InsertStatusLog(ctx, StatusLogEntry{
			QuoteID:   current.ID,
			From:      current.Status,
			To:        c.to,
			Reason:    c.reason,
			ActorID:   c.actorID,
			Override:  c.override,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}
		current.Status = c.to
		current.UpdatedAt = now
		if c.internalNote != "" {
			if current.InternalNotes != "" {
				current.InternalNotes += "\n"
			}
			current.InternalNotes += c.internalNote
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return quote, false, nil
	}

	s.metrics.QuoteTransition(string(from), string(quote.Status), c.override)
	s.logger.Info("quote status changed",
		slog.String("quote_number", quote.QuoteNumber),
		slog.String("from", string(from)),
		slog.String("to", string(quote.Status)),
		slog.Bool("override", c.override),
	)
	event := notify.QuoteStatusChanged{
		QuoteID:       quote.ID.String(),
		QuoteNumber:   quote.QuoteNumber,
		CustomerName:  quote.CustomerName,
		CustomerEmail: quote.CustomerEmail,
		From:          string(from),
		To:            string(quote.Status),
		Reason:        c.reason,
		ChangedAt:     quote.UpdatedAt,
	}
	s.notify(notify.EventQuoteStatusChanged, func() error {
		return s.dispatcher.QuoteStatusChanged(ctx, event)
	})
	return quote, true, nil
}

// HandlePaymentEvent converts the referenced quote on a successful payment.
// Repeated event ids are acknowledged without effect.
func (s *Service) HandlePaymentEvent(ctx context.Context, ev PaymentEvent) (PaymentResult, error) {
	if err := s.validator.Struct(ev); err != nil {
		return PaymentResult{}, err
	}
	if ev.Type != PaymentEventTypeSucceeded {
		return PaymentResult{Success: true}, nil
	}
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, ev.ID, shared.IdempotencyPaymentEvent); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return PaymentResult{Success: true, Duplicate: true}, nil
			}
			return PaymentResult{}, fmt.Errorf("%w: idempotency: %v", httpx.ErrDependency, err)
		}
	}

	quote, changed, err := s.ApplySystemTransition(ctx, ev.QuoteNumber, "", StatusConverted, "payment "+ev.ID)
	switch {
	case err == nil:
		return PaymentResult{Success: true, Applied: changed, Status: quote.Status}, nil
	case IsInvalidTransition(err):
		s.logger.Warn("payment for quote that cannot convert",
			slog.String("quote_number", ev.QuoteNumber),
			slog.String("event_id", ev.ID),
			slog.Any("error", err),
		)
		result := PaymentResult{Success: true}
		if current, getErr := s.repo.GetByNumber(ctx, ev.QuoteNumber); getErr == nil {
			result.Status = current.Status
		}
		return result, nil
	default:
		if s.idem != nil {
			if delErr := s.idem.Delete(ctx, ev.ID, shared.IdempotencyPaymentEvent); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return PaymentResult{}, err
	}
}

// Estimate prices products without persisting anything. Defaults applied
// during pricing are logged and counted.
func (s *Service) Estimate(ctx context.Context, req EstimateRequest) (pricing.Estimate, error) {
	if err := s.validator.Struct(req); err != nil {
		return pricing.Estimate{}, err
	}
	est, err := s.calc.Estimate(req.Products, req.IncludeFinancing)
	if err != nil {
		return pricing.Estimate{}, err
	}
	for _, kind := range est.Result().Fallbacks {
		s.metrics.PricingFallback(kind)
		s.logger.WarnContext(ctx, "pricing fallback applied", slog.String("kind", kind))
	}
	return est, nil
}

func (s *Service) notify(event string, send func() error) {
	if err := send(); err != nil {
		s.metrics.NotificationDropped(event)
		s.logger.Error("notification dispatch failed", slog.String("event", event), slog.Any("error", err))
	}
}

func submittedEvent(q *Quote) notify.QuoteSubmitted {
	items := make([]notify.QuoteItem, 0, len(q.Items))
	for _, item := range q.Items {
		items = append(items, notify.QuoteItem{Name: item.Name, Quantity: item.Quantity, UnitPriceCents: item.UnitPriceCents})
	}
	return notify.QuoteSubmitted{
		QuoteID:       q.ID.String(),
		QuoteNumber:   q.QuoteNumber,
		CustomerName:  q.CustomerName,
		CustomerEmail: q.CustomerEmail,
		CustomerPhone: q.CustomerPhone,
		Province:      q.Province,
		Notes:         q.Notes,
		Items:         items,
		TotalCents:    q.TotalCents(),
		SubmittedAt:   q.CreatedAt,
	}
}
