// Package fanout distributes detected feed changes to subscribers.
package fanout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"

	"feed_notifier/internal/filter"
	"feed_notifier/internal/metrics"
	"feed_notifier/internal/model"
)

// Defaults used when Options leaves a field unset.
const (
	DefaultCap     = 10
	DefaultDelay   = time.Second
	DefaultRetries = 2
)

// SubscriberSource lists the subscribers that should receive notifications.
type SubscriberSource interface {
	ListEnabledSubscribers(ctx context.Context) ([]model.Subscriber, error)
}

// Sender delivers a notification to a chat. Errors wrapping
// model.ErrTargetUnreachable or model.ErrMessageRejected are not retried.
type Sender interface {
	Deliver(ctx context.Context, chatID int64, n model.Notification) error
}

// Options tunes a Dispatcher.
type Options struct {
	// Cap limits deliveries per subscriber per call.
	Cap int
	// Delay is waited between consecutive messages to one subscriber.
	Delay time.Duration
	// Retries is the number of extra attempts for transient failures.
	// Zero or negative disables retries.
	Retries int
	// DefaultFilter applies to subscribers without their own pattern.
	DefaultFilter string
}

// Report summarizes one Deliver call.
type Report struct {
	Subscribers int
	Delivered   int
	Failed      int
	Dropped     int
}

// Dispatcher sends changes to every matching subscriber, one subscriber at a
// time, isolating failures per subscriber and per message.
type Dispatcher struct {
	subs          SubscriberSource
	sender        Sender
	log           *slog.Logger
	cap           int
	delay         time.Duration
	retries       int
	defaultFilter string
	newBackOff    func() backoff.BackOff
}

// New creates a Dispatcher.
func New(subs SubscriberSource, sender Sender, log *slog.Logger, opts Options) *Dispatcher {
	d := &Dispatcher{
		subs:          subs,
		sender:        sender,
		log:           log,
		cap:           opts.Cap,
		delay:         opts.Delay,
		retries:       opts.Retries,
		defaultFilter: opts.DefaultFilter,
		newBackOff:    defaultBackOff,
	}
	if d.cap <= 0 {
		d.cap = DefaultCap
	}
	if d.delay < 0 {
		d.delay = 0
	}
	if d.retries < 0 {
		d.retries = 0
	}
	return d
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// Deliver queries the current subscribers once and sends them the changes
// matching their filters, in the given order. It is best effort: failures
// are logged and counted, never returned.
func (d *Dispatcher) Deliver(ctx context.Context, changes []model.Change) Report {
	var report Report
	if len(changes) == 0 {
		return report
	}

	subs, err := d.subs.ListEnabledSubscribers(ctx)
	if err != nil {
		d.log.Error("list subscribers", "error", err)
		return report
	}

	for i, sub := range subs {
		if ctx.Err() != nil {
			d.log.Warn("fan-out interrupted", "remaining_subscribers", len(subs)-i, "error", ctx.Err())
			break
		}
		if !sub.Enabled {
			continue
		}
		report.Subscribers++
		d.deliverTo(ctx, sub, changes, &report)
	}

	if report.Delivered > 0 || report.Failed > 0 {
		d.log.Info("fan-out finished",
			"subscribers", report.Subscribers,
			"delivered", report.Delivered,
			"failed", report.Failed,
			"dropped", report.Dropped,
		)
	}
	return report
}

func (d *Dispatcher) deliverTo(ctx context.Context, sub model.Subscriber, changes []model.Change, report *Report) {
	m, err := filter.Compile(sub.Filter, d.defaultFilter)
	if err != nil {
		d.log.Warn("invalid subscriber filter, skipping", "chat_id", sub.ChatID, "error", err)
		return
	}

	matched := lo.Filter(changes, func(c model.Change, _ int) bool {
		return m.Match(c.Entry.Title)
	})
	if over := len(matched) - d.cap; over > 0 {
		report.Dropped += over
		metrics.Deliveries.WithLabelValues(metrics.DeliveryDropped).Add(float64(over))
		d.log.Debug("fan-out cap reached", "chat_id", sub.ChatID, "dropped", over)
		matched = matched[:d.cap]
	}

	for i, c := range matched {
		if ctx.Err() != nil {
			d.log.Warn("fan-out interrupted", "chat_id", sub.ChatID, "remaining_messages", len(matched)-i, "error", ctx.Err())
			return
		}

		err := d.send(ctx, sub.ChatID, model.NewNotification(c))
		switch {
		case err == nil:
			report.Delivered++
			metrics.Deliveries.WithLabelValues(metrics.DeliveryOK).Inc()
		case errors.Is(err, model.ErrTargetUnreachable):
			report.Failed++
			metrics.Deliveries.WithLabelValues(metrics.DeliveryUnreachable).Inc()
			d.log.Error("deliver notification: target unreachable", "chat_id", sub.ChatID, "entry_id", c.Entry.ID, "error", err)
		case errors.Is(err, model.ErrMessageRejected):
			report.Failed++
			metrics.Deliveries.WithLabelValues(metrics.DeliveryRejected).Inc()
			d.log.Error("deliver notification: message rejected", "chat_id", sub.ChatID, "entry_id", c.Entry.ID, "error", err)
		default:
			report.Failed++
			metrics.Deliveries.WithLabelValues(metrics.DeliveryTransient).Inc()
			d.log.Error("deliver notification", "chat_id", sub.ChatID, "entry_id", c.Entry.ID, "error", err)
		}

		if i == len(matched)-1 {
			break
		}
		if err := sleep(ctx, d.delay); err != nil {
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, n model.Notification) error {
	op := func() error {
		err := d.sender.Deliver(ctx, chatID, n)
		if errors.Is(err, model.ErrTargetUnreachable) || errors.Is(err, model.ErrMessageRejected) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), uint64(d.retries)), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		d.log.Warn("retry delivery", "chat_id", chatID, "wait", wait, "error", err)
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
