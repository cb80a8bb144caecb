package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgclosets/quote-service/internal/platform/db"
	"github.com/pgclosets/quote-service/internal/platform/httpx"
)

// quoteNumberConstraint is the unique constraint guarding quote numbers.
const quoteNumberConstraint = "quotes_quote_number_key"

var (
	// ErrNotFound is returned when a quote does not exist or is not visible.
	ErrNotFound = fmt.Errorf("%w: quote", httpx.ErrNotFound)
	// ErrNumberTaken is returned when a generated quote number collides.
	ErrNumberTaken = fmt.Errorf("%w: quote number", httpx.ErrDuplicate)
)

// Repository persists quotes and their status log.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Create(ctx context.Context, q *Quote) error
	Get(ctx context.Context, id uuid.UUID) (*Quote, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Quote, error)
	GetByNumber(ctx context.Context, number string) (*Quote, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, internalNote string, at time.Time) error
	InsertStatusLog(ctx context.Context, entry StatusLogEntry) (int64, error)
	History(ctx context.Context, id uuid.UUID) ([]StatusLogEntry, error)
	List(ctx context.Context, req ListRequest) ([]QuoteSummary, int, error)
	ListForOwner(ctx context.Context, ownerID *int64, email string) ([]QuoteSummary, error)
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository builds a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
	return conflictOnRace(err)
}

// conflictOnRace turns an aborted concurrent transaction into a 409.
func conflictOnRace(err error) error {
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: concurrent quote update: %v", httpx.ErrConflict, err)
	}
	return err
}

func (r *repository) Create(ctx context.Context, q *Quote) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotes (id, quote_number, owner_id, customer_name, customer_email, customer_phone,
		                    province, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $10)`,
		q.ID, q.QuoteNumber, q.OwnerID, q.CustomerName, q.CustomerEmail, q.CustomerPhone,
		q.Province, q.Notes, string(q.Status), q.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, quoteNumberConstraint) {
			return ErrNumberTaken
		}
		return fmt.Errorf("insert quote: %w", err)
	}

	batch := &pgx.Batch{}
	for i, item := range q.Items {
		options := item.Options
		if options == nil {
			options = map[string]any{}
		}
		batch.Queue(`
			INSERT INTO quote_items (quote_id, position, product_id, name, quantity, unit_price_cents, category, options)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			q.ID, i+1, item.ProductID, item.Name, item.Quantity, item.UnitPriceCents, item.Category, options,
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	return r.sendBatch(ctx, batch)
}

func (r *repository) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert quote item %d: %w", i+1, err)
		}
	}
	return results.Close()
}

const quoteColumns = `id, quote_number, owner_id, customer_name, customer_email, customer_phone,
	province, notes, internal_notes, status, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return r.fetch(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
}

// GetForUpdate locks the quote row until the surrounding transaction ends.
func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Quote, error) {
	return r.fetch(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) GetByNumber(ctx context.Context, number string) (*Quote, error) {
	return r.fetch(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE quote_number = $1`, strings.ToUpper(number))
}

func (r *repository) fetch(ctx context.Context, query string, arg any) (*Quote, error) {
	q, err := scanQuote(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items, err := r.items(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Items = items
	return q, nil
}

func scanQuote(row pgx.Row) (*Quote, error) {
	var (
		q           Quote
		ownerID     pgtype.Int8
		phone, prov pgtype.Text
		status      string
	)
	err := row.Scan(
		&q.ID, &q.QuoteNumber, &ownerID, &q.CustomerName, &q.CustomerEmail, &phone,
		&prov, &q.Notes, &q.InternalNotes, &status, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ownerID.Valid {
		id := ownerID.Int64
		q.OwnerID = &id
	}
	q.CustomerPhone = phone.String
	q.Province = prov.String
	q.Status = Status(status)
	return &q, nil
}

func (r *repository) items(ctx context.Context, quoteID uuid.UUID) ([]LineItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT product_id, name, quantity, unit_price_cents, category, options
		FROM quote_items WHERE quote_id = $1 ORDER BY position`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LineItem{}
	for rows.Next() {
		var (
			item  LineItem
			price pgtype.Int8
		)
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &price, &item.Category, &item.Options); err != nil {
			return nil, err
		}
		if price.Valid {
			p := price.Int64
			item.UnitPriceCents = &p
		}
		if len(item.Options) == 0 {
			item.Options = nil
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, internalNote string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotes
		SET status = $2,
		    internal_notes = CASE WHEN $3 = '' THEN internal_notes
		                          WHEN internal_notes = '' THEN $3
		                          ELSE internal_notes || E'\n' || $3 END,
		    updated_at = $4
		WHERE id = $1`, id, string(status), internalNote, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) InsertStatusLog(ctx context.Context, entry StatusLogEntry) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quote_status_log (quote_id, from_status, to_status, reason, actor_id, override, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		entry.QuoteID, string(entry.From), string(entry.To), entry.Reason, entry.ActorID, entry.Override, entry.CreatedAt,
	).Scan(&id)
	return id, err
}

func (r *repository) History(ctx context.Context, id uuid.UUID) ([]StatusLogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, from_status, to_status, reason, actor_id, override, created_at
		FROM quote_status_log WHERE quote_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StatusLogEntry, error) {
		var (
			e        StatusLogEntry
			from, to string
			actor    pgtype.Int8
		)
		if err := row.Scan(&e.ID, &e.QuoteID, &from, &to, &e.Reason, &actor, &e.Override, &e.CreatedAt); err != nil {
			return e, err
		}
		e.From, e.To = Status(from), Status(to)
		if actor.Valid {
			a := actor.Int64
			e.ActorID = &a
		}
		return e, nil
	})
}

const summarySelect = `
	SELECT q.id, q.quote_number, q.customer_name, q.customer_email, COALESCE(q.province, ''), q.status,
	       COUNT(i.position), COALESCE(SUM(i.quantity * i.unit_price_cents), 0)::BIGINT,
	       q.created_at, q.updated_at
	FROM quotes q
	LEFT JOIN quote_items i ON i.quote_id = q.id`

const summaryGroup = ` GROUP BY q.id`

func (r *repository) List(ctx context.Context, req ListRequest) ([]QuoteSummary, int, error) {
	var (
		conditions []string
		args       []any
	)
	if req.Status != "" {
		args = append(args, string(req.Status))
		conditions = append(conditions, fmt.Sprintf("q.status = $%d", len(args)))
	}
	if req.Email != "" {
		args = append(args, strings.ToLower(req.Email))
		conditions = append(conditions, fmt.Sprintf("lower(q.customer_email) = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM quotes q`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := req.limitOffset()
	args = append(args, limit, offset)
	query := summarySelect + where + summaryGroup +
		fmt.Sprintf(" ORDER BY q.created_at DESC, q.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	summaries, err := r.summaries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

func (r *repository) ListForOwner(ctx context.Context, ownerID *int64, email string) ([]QuoteSummary, error) {
	query := summarySelect + `
		WHERE ($1::BIGINT IS NOT NULL AND q.owner_id = $1)
		   OR ($2 <> '' AND lower(q.customer_email) = $2)` + summaryGroup + `
		ORDER BY q.created_at DESC
		LIMIT 100`
	return r.summaries(ctx, query, ownerID, strings.ToLower(email))
}

func (r *repository) summaries(ctx context.Context, query string, args ...any) ([]QuoteSummary, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (QuoteSummary, error) {
		var (
			s      QuoteSummary
			status string
		)
		err := row.Scan(&s.ID, &s.QuoteNumber, &s.CustomerName, &s.CustomerEmail, &s.Province, &status,
			&s.ItemCount, &s.TotalCents, &s.CreatedAt, &s.UpdatedAt)
		s.Status = Status(status)
		return s, err
	})
}
