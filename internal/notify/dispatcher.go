// Package notify delivers change events to outbound channels.
//
// A Dispatcher fans one Event out to every configured Notifier in order.
// Each channel gets its own timeout; a failing, slow or panicking channel is
// logged and recorded in its Outcome but never blocks the others, and never
// reaches the caller as an error. The monitor persists snapshots regardless
// of what happens here.
//
// Channels:
//   - Console: human-readable report on an io.Writer
//   - Email: HTML report over SMTP or the Resend API
//   - Telegram: compact MarkdownV2 message through the Bot API
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/changewatch/internal/apperr"
	"github.com/roach88/changewatch/internal/diff"
)

// EventKind distinguishes first-run baselines from change reports.
type EventKind string

const (
	// EventBaseline is emitted when a source has no prior snapshot.
	EventBaseline EventKind = "baseline"

	// EventReport carries a detection result against the previous snapshot.
	EventReport EventKind = "report"
)

// Event is what a channel is asked to deliver.
type Event struct {
	Kind   EventKind
	Source string
	RunID  string

	// Report is set for EventReport.
	Report *diff.Report

	// ItemCount is the number of records observed in this cycle.
	ItemCount int
}

// HasChanges reports whether the event carries at least one change.
func (e Event) HasChanges() bool {
	return e.Kind == EventReport && e.Report != nil && e.Report.HasChanges()
}

// Notifier is one outbound channel.
type Notifier interface {
	// Name identifies the channel in logs and outcomes.
	Name() string

	// Notify delivers ev. Returning ErrSkipped means the channel chose not
	// to send, which is not a failure.
	Notify(ctx context.Context, ev Event) error
}

// ErrSkipped is returned by channels that have nothing to send for an event.
var ErrSkipped = errors.New("nothing to send")

// Outcome records what happened on one channel.
type Outcome struct {
	Channel  string        `json:"channel"`
	Skipped  bool          `json:"skipped,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Delivered reports whether the channel sent the event.
func (o Outcome) Delivered() bool {
	return o.Err == nil && !o.Skipped
}

// Dispatcher sends events to a fixed list of channels.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. A timeout of zero or less disables the
// per-channel deadline. A nil logger uses slog.Default().
func NewDispatcher(timeout time.Duration, logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   timeout,
		logger:    logger,
	}
}

// Channels returns the channel names in dispatch order.
func (d *Dispatcher) Channels() []string {
	if d == nil {
		return nil
	}
	names := make([]string, len(d.notifiers))
	for i, n := range d.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Dispatch delivers ev to every channel in order and returns one Outcome
// per channel. Channel failures are classified as notification errors and
// logged. A nil Dispatcher delivers nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) []Outcome {
	if d == nil {
		return nil
	}

	outcomes := make([]Outcome, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		outcomes = append(outcomes, d.deliver(ctx, n, ev))
	}
	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, n Notifier, ev Event) Outcome {
	name := n.Name()
	start := time.Now()

	err := d.call(ctx, n, ev)
	out := Outcome{Channel: name, Duration: time.Since(start)}

	switch {
	case err == nil:
		d.logger.Debug("notification sent",
			"channel", name,
			"source", ev.Source,
			"run_id", ev.RunID,
			"kind", ev.Kind,
		)
	case errors.Is(err, ErrSkipped):
		out.Skipped = true
		d.logger.Debug("notification skipped",
			"channel", name,
			"source", ev.Source,
			"run_id", ev.RunID,
		)
	default:
		out.Err = apperr.Notification(name, ev.Source, err)
		d.logger.Warn("notification failed",
			"channel", name,
			"source", ev.Source,
			"run_id", ev.RunID,
			"error", err,
		)
	}
	return out
}

// call runs one notifier under its own deadline and converts panics into
// errors.
func (d *Dispatcher) call(ctx context.Context, n Notifier, ev Event) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return n.Notify(ctx, ev)
}
