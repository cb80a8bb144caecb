package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/pgclosets/quote-service/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskQuoteSubmitted delivers the new-quote emails and Slack alert.
	TaskQuoteSubmitted = "notify:quote_submitted"
	// TaskQuoteStatusChanged delivers the customer status email.
	TaskQuoteStatusChanged = "notify:quote_status_changed"
	// TaskBookingConfirmed delivers the booking emails and Slack alert.
	TaskBookingConfirmed = "notify:booking_confirmed"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// IdempotencyCleanupPayload controls the retention of the cleanup task.
type IdempotencyCleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// NewQuoteSubmittedTask wraps a submitted quote event.
func NewQuoteSubmittedTask(event notify.QuoteSubmitted) (*asynq.Task, error) {
	return newTask(TaskQuoteSubmitted, event)
}

// NewQuoteStatusChangedTask wraps a status change event.
func NewQuoteStatusChangedTask(event notify.QuoteStatusChanged) (*asynq.Task, error) {
	return newTask(TaskQuoteStatusChanged, event)
}

// NewBookingConfirmedTask wraps a booking event.
func NewBookingConfirmedTask(event notify.BookingConfirmed) (*asynq.Task, error) {
	return newTask(TaskBookingConfirmed, event)
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(olderThanHours int) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{OlderThanHours: olderThanHours})
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
