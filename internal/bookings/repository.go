package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgclosets/quote-service/internal/platform/db"
	"github.com/pgclosets/quote-service/internal/platform/httpx"
)

const (
	slotConstraint         = "bookings_confirmed_slot_key"
	confirmationConstraint = "bookings_confirmation_number_key"
)

var (
	// ErrSlotUnavailable is returned when the requested start is taken or held.
	ErrSlotUnavailable = fmt.Errorf("%w: time slot no longer available", httpx.ErrConflict)
	// ErrConfirmationTaken is returned when a confirmation number collides.
	ErrConfirmationTaken = fmt.Errorf("%w: confirmation number", httpx.ErrDuplicate)
)

// Repository stores bookings.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	ConfirmedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error)
	Upcoming(ctx context.Context, from time.Time, limit int) ([]Booking, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Create(ctx context.Context, b *Booking) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bookings (id, confirmation_number, quote_id, customer_name, customer_email, customer_phone,
		                      street, city, province, postal_code, scheduled_at, duration_minutes, status,
		                      project_description, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		b.ID, b.ConfirmationNumber, b.QuoteID, b.CustomerName, b.CustomerEmail, b.CustomerPhone,
		b.Street, b.City, b.Province, b.PostalCode, b.ScheduledAt, b.DurationMinutes, string(b.Status),
		b.ProjectDescription, b.Notes, b.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, slotConstraint):
		return ErrSlotUnavailable
	case db.IsUniqueViolation(err, confirmationConstraint):
		return ErrConfirmationTaken
	default:
		return fmt.Errorf("insert booking: %w", err)
	}
}

func (r *repository) ConfirmedBetween(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at FROM bookings
		WHERE status = 'confirmed' AND scheduled_at >= $1 AND scheduled_at < $2
		ORDER BY scheduled_at`, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

func (r *repository) Upcoming(ctx context.Context, from time.Time, limit int) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.confirmation_number, b.quote_id, COALESCE(q.quote_number, ''), b.customer_name,
		       b.customer_email, b.customer_phone, b.street, b.city, b.province, b.postal_code,
		       b.scheduled_at, b.duration_minutes, b.status, b.project_description, b.notes, b.created_at
		FROM bookings b
		LEFT JOIN quotes q ON q.id = b.quote_id
		WHERE b.scheduled_at >= $1
		ORDER BY b.scheduled_at
		LIMIT $2`, from, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Booking, error) {
		var (
			b       Booking
			quoteID pgtype.UUID
			status  string
		)
		err := row.Scan(&b.ID, &b.ConfirmationNumber, &quoteID, &b.QuoteNumber, &b.CustomerName,
			&b.CustomerEmail, &b.CustomerPhone, &b.Street, &b.City, &b.Province, &b.PostalCode,
			&b.ScheduledAt, &b.DurationMinutes, &status, &b.ProjectDescription, &b.Notes, &b.CreatedAt)
		if err != nil {
			return b, err
		}
		if quoteID.Valid {
			id := uuid.UUID(quoteID.Bytes)
			b.QuoteID = &id
		}
		b.Status = Status(status)
		return b, nil
	})
}
