package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/pgclosets/quote-service/internal/jobs"
	"github.com/pgclosets/quote-service/internal/notify"
)

// SlackPoster posts alerts to a channel.
type SlackPoster interface {
	Enabled() bool
	Post(ctx context.Context, msg notify.SlackMessage) error
}

// NotificationJob renders and delivers queued notification events.
type NotificationJob struct {
	Renderer   *notify.Renderer
	Mailer     notify.Mailer
	Slack      SlackPoster
	AdminEmail string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handlers lists the task handlers served by the job.
func (j *NotificationJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskQuoteSubmitted, Handler: j.HandleQuoteSubmitted},
		{Type: TaskQuoteStatusChanged, Handler: j.HandleQuoteStatusChanged},
		{Type: TaskBookingConfirmed, Handler: j.HandleBookingConfirmed},
	}
}

// HandleQuoteSubmitted emails staff and the customer and posts to Slack.
func (j *NotificationJob) HandleQuoteSubmitted(ctx context.Context, t *asynq.Task) (err error) {
	var event notify.QuoteSubmitted
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskQuoteSubmitted)
	defer func() { err = tracker.End(err) }()

	var g errgroup.Group
	if j.AdminEmail != "" {
		g.Go(func() error {
			msg, err := j.Renderer.QuoteSubmittedAdmin(j.AdminEmail, event)
			if err != nil {
				return err
			}
			return j.send(ctx, msg)
		})
	}
	g.Go(func() error {
		msg, err := j.Renderer.QuoteReceived(event)
		if err != nil {
			return err
		}
		return j.send(ctx, msg)
	})
	g.Go(func() error {
		return j.post(ctx, j.Renderer.QuoteSubmittedSlack(event))
	})
	if err := g.Wait(); err != nil {
		j.logger().Error("deliver quote submitted", slog.String("quote_number", event.QuoteNumber), slog.Any("error", err))
		return err
	}
	j.logger().Info("quote notifications delivered", slog.String("quote_number", event.QuoteNumber))
	return nil
}

// HandleQuoteStatusChanged emails the customer.
func (j *NotificationJob) HandleQuoteStatusChanged(ctx context.Context, t *asynq.Task) (err error) {
	var event notify.QuoteStatusChanged
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskQuoteStatusChanged)
	defer func() { err = tracker.End(err) }()

	msg, err := j.Renderer.QuoteStatusChanged(event)
	if err != nil {
		return err
	}
	if err := j.send(ctx, msg); err != nil {
		j.logger().Error("deliver status email",
			slog.String("quote_number", event.QuoteNumber),
			slog.String("to", event.To),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// HandleBookingConfirmed emails the customer and staff and posts to Slack.
func (j *NotificationJob) HandleBookingConfirmed(ctx context.Context, t *asynq.Task) (err error) {
	var event notify.BookingConfirmed
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskBookingConfirmed)
	defer func() { err = tracker.End(err) }()

	var g errgroup.Group
	g.Go(func() error {
		msg, err := j.Renderer.BookingConfirmedCustomer(event)
		if err != nil {
			return err
		}
		return j.send(ctx, msg)
	})
	if j.AdminEmail != "" {
		g.Go(func() error {
			msg, err := j.Renderer.BookingConfirmedAdmin(j.AdminEmail, event)
			if err != nil {
				return err
			}
			return j.send(ctx, msg)
		})
	}
	g.Go(func() error {
		return j.post(ctx, j.Renderer.BookingConfirmedSlack(event))
	})
	if err := g.Wait(); err != nil {
		j.logger().Error("deliver booking confirmed",
			slog.String("confirmation_number", event.ConfirmationNumber),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (j *NotificationJob) send(ctx context.Context, msg notify.Email) error {
	if j.Mailer == nil {
		return errors.New("notify: mailer not configured")
	}
	err := j.Mailer.Send(ctx, msg)
	j.Metrics.Delivered("email", err)
	if err != nil {
		return fmt.Errorf("send %q: %w", msg.Subject, err)
	}
	return nil
}

func (j *NotificationJob) post(ctx context.Context, msg notify.SlackMessage) error {
	if j.Slack == nil || !j.Slack.Enabled() {
		return nil
	}
	err := j.Slack.Post(ctx, msg)
	j.Metrics.Delivered("slack", err)
	return err
}

func (j *NotificationJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
