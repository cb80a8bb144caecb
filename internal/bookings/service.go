package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pgclosets/quote-service/internal/notify"
	"github.com/pgclosets/quote-service/internal/observability"
	"github.com/pgclosets/quote-service/internal/platform/cache"
	"github.com/pgclosets/quote-service/internal/platform/httpx"
	"github.com/pgclosets/quote-service/internal/platform/phone"
	"github.com/pgclosets/quote-service/internal/quotes"
	"github.com/pgclosets/quote-service/internal/shared"
)

const (
	// AvailabilityTTL bounds how stale a cached availability listing may be.
	AvailabilityTTL = time.Minute

	slotLockTTL             = 10 * time.Second
	maxConfirmationAttempts = 3
	upcomingLimit           = 200
)

// ErrDuplicateBooking is returned when an Idempotency-Key was already used.
var ErrDuplicateBooking = fmt.Errorf("%w: booking already submitted", httpx.ErrDuplicate)

// QuoteLinker resolves and advances the quote a booking refers to.
type QuoteLinker interface {
	FindByNumber(ctx context.Context, number string) (*quotes.Quote, error)
	ApplySystemTransition(ctx context.Context, number string, from, to quotes.Status, reason string) (*quotes.Quote, bool, error)
}

// IdempotencyChecker records processed request keys.
type IdempotencyChecker interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

type confirmationSource interface {
	Next() (string, error)
}

// Service books measurement appointments.
type Service struct {
	repo       Repository
	quotes     QuoteLinker
	schedule   Schedule
	cache      *cache.JSONCache
	locker     *cache.Locker
	idem       IdempotencyChecker
	dispatcher notify.Dispatcher
	validator  *httpx.Validator
	metrics    *observability.Metrics
	logger     *slog.Logger
	numbers    confirmationSource
	now        func() time.Time
}

// ServiceDeps groups Service collaborators. Cache and Locker may be nil.
type ServiceDeps struct {
	Repo        Repository
	Quotes      QuoteLinker
	Schedule    Schedule
	Cache       *cache.JSONCache
	Locker      *cache.Locker
	Idempotency IdempotencyChecker
	Dispatcher  notify.Dispatcher
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// NewService constructs the booking service.
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
		quotes:     deps.Quotes,
		schedule:   deps.Schedule,
		cache:      deps.Cache,
		locker:     deps.Locker,
		idem:       deps.Idempotency,
		dispatcher: dispatcher,
		validator:  httpx.NewValidator(),
		metrics:    deps.Metrics,
		logger:     logger,
		numbers:    NewConfirmationNumbers(),
		now:        time.Now,
	}
}

// Availability lists the slots of a local date.
func (s *Service) Availability(ctx context.Context, date string) (Availability, error) {
	day, err := s.schedule.ParseDate(date)
	if err != nil {
		return Availability{}, err
	}
	var out Availability
	err = s.cache.FetchJSON(ctx, s.availabilityKey(day), &out, func(ctx context.Context) (any, error) {
		from, to := s.schedule.Bounds(day)
		booked, err := s.repo.ConfirmedBetween(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("load bookings: %w", err)
		}
		return s.schedule.Day(s.now(), day, booked), nil
	})
	if err != nil {
		return Availability{}, err
	}
	return out, nil
}

func (s *Service) availabilityKey(day time.Time) string {
	return s.cache.Key("availability", day.In(s.schedule.Location).Format(dateLayout))
}

// Create books a slot. The linked quote moves to measurement_scheduled when
// it is currently quoted; failures there and in notification are logged.
func (s *Service) Create(ctx context.Context, req CreateRequest, idempotencyKey string) (*Booking, *quotes.Quote, error) {
	req.Normalize()
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, err
	}
	phoneE164, err := phone.NormalizeE164(req.CustomerPhone)
	if err != nil {
		return nil, nil, httpx.NewValidationError("Invalid phone number")
	}
	start, err := s.schedule.SlotStart(req.Date, req.Time)
	if err != nil {
		return nil, nil, err
	}
	if reason := s.schedule.Check(s.now(), start); reason != "" {
		return nil, nil, httpx.NewValidationError(reason)
	}

	var quote *quotes.Quote
	if req.QuoteNumber != "" && s.quotes != nil {
		quote, err = s.quotes.FindByNumber(ctx, req.QuoteNumber)
		if errors.Is(err, quotes.ErrNotFound) {
			return nil, nil, httpx.NewValidationError("quote_number does not match a quote")
		}
		if err != nil {
			return nil, nil, fmt.Errorf("lookup quote: %w", err)
		}
	}

	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, shared.IdempotencyBooking); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, nil, ErrDuplicateBooking
			}
			return nil, nil, fmt.Errorf("%w: idempotency: %v", httpx.ErrDependency, err)
		}
	}
	release := func() {
		if idempotencyKey == "" || s.idem == nil {
			return
		}
		if err := s.idem.Delete(ctx, idempotencyKey, shared.IdempotencyBooking); err != nil {
			s.logger.Warn("release idempotency key", slog.Any("error", err))
		}
	}

	unlock, err := s.locker.Acquire(ctx, shared.BookingSlotLockKey(start), slotLockTTL)
	if err != nil {
		release()
		if errors.Is(err, cache.ErrLocked) {
			return nil, nil, ErrSlotUnavailable
		}
		return nil, nil, fmt.Errorf("%w: slot lock: %v", httpx.ErrDependency, err)
	}
	defer unlock(context.WithoutCancel(ctx))

	booking := &Booking{
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		CustomerPhone:      phoneE164,
		Street:             req.Street,
		City:               req.City,
		Province:           req.Province,
		PostalCode:         req.PostalCode,
		ScheduledAt:        start.UTC(),
		DurationMinutes:    DurationMinutes,
		Status:             StatusConfirmed,
		ProjectDescription: req.ProjectDescription,
		Notes:              req.Notes,
		CreatedAt:          s.now().UTC(),
	}
	if quote != nil {
		booking.QuoteID = &quote.ID
		booking.QuoteNumber = quote.QuoteNumber
	}
	if err := s.insert(ctx, booking); err != nil {
		release()
		return nil, nil, err
	}

	if err := s.cache.Invalidate(ctx, s.availabilityKey(start)); err != nil {
		s.logger.Warn("invalidate availability", slog.Any("error", err))
	}
	s.metrics.BookingCreated()
	s.logger.Info("measurement booked",
		slog.String("confirmation_number", booking.ConfirmationNumber),
		slog.Time("scheduled_at", booking.ScheduledAt),
	)

	if quote != nil && quote.Status == quotes.StatusQuoted {
		updated, _, err := s.quotes.ApplySystemTransition(ctx, quote.QuoteNumber, quotes.StatusQuoted,
			quotes.StatusMeasurementScheduled, "measurement booked "+booking.ConfirmationNumber)
		if err != nil {
			s.logger.Error("advance quote after booking",
				slog.String("quote_number", quote.QuoteNumber),
				slog.String("confirmation_number", booking.ConfirmationNumber),
				slog.Any("error", err),
			)
		} else {
			quote = updated
		}
	}

	if err := s.dispatcher.BookingConfirmed(ctx, confirmedEvent(booking)); err != nil {
		s.metrics.NotificationDropped(notify.EventBookingConfirmed)
		s.logger.Error("notification dispatch failed",
			slog.String("event", notify.EventBookingConfirmed),
			slog.Any("error", err),
		)
	}
	return booking, quote, nil
}

// insert stores the booking, drawing a fresh confirmation number after each
// collision.
func (s *Service) insert(ctx context.Context, b *Booking) error {
	var lastErr error
	for attempt := 1; attempt <= maxConfirmationAttempts; attempt++ {
		number, err := s.numbers.Next()
		if err != nil {
			return fmt.Errorf("generate confirmation number: %w", err)
		}
		b.ID = uuid.New()
		b.ConfirmationNumber = number
		err = s.repo.Create(ctx, b)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConfirmationTaken) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("create booking after %d attempts: %w", maxConfirmationAttempts, lastErr)
}

// Upcoming lists bookings from now on for staff.
func (s *Service) Upcoming(ctx context.Context) ([]Booking, error) {
	return s.repo.Upcoming(ctx, s.now().UTC(), upcomingLimit)
}

func confirmedEvent(b *Booking) notify.BookingConfirmed {
	return notify.BookingConfirmed{
		BookingID:          b.ID.String(),
		ConfirmationNumber: b.ConfirmationNumber,
		QuoteNumber:        b.QuoteNumber,
		CustomerName:       b.CustomerName,
		CustomerEmail:      b.CustomerEmail,
		CustomerPhone:      b.CustomerPhone,
		Address:            b.Address(),
		ScheduledAt:        b.ScheduledAt,
		DurationMinutes:    b.DurationMinutes,
		ProjectDescription: b.ProjectDescription,
	}
}
