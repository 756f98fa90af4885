package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/changewatch/internal/apperr"
	"github.com/roach88/changewatch/internal/diff"
)

// funcNotifier adapts a function to Notifier.
type funcNotifier struct {
	name string
	fn   func(ctx context.Context, ev Event) error
}

func (f funcNotifier) Name() string                               { return f.name }
func (f funcNotifier) Notify(ctx context.Context, ev Event) error { return f.fn(ctx, ev) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func reportEvent() Event {
	return Event{Kind: EventReport, Source: "shop", RunID: "run-0001", Report: mixedReport()}
}

func TestDispatchAllChannelsInOrder(t *testing.T) {
	var calls []string
	track := func(name string) Notifier {
		return funcNotifier{name: name, fn: func(ctx context.Context, ev Event) error {
			calls = append(calls, name)
			return nil
		}}
	}

	d := NewDispatcher(time.Second, quietLogger(), track("a"), track("b"), track("c"))
	outcomes := d.Dispatch(context.Background(), reportEvent())

	assert.Equal(t, []string{"a", "b", "c"}, calls)
	assert.Equal(t, []string{"a", "b", "c"}, d.Channels())
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.True(t, o.Delivered())
	}
}

func TestDispatchFailureDoesNotBlockOtherChannels(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	delivered := false
	d := NewDispatcher(time.Second, logger,
		funcNotifier{name: "broken", fn: func(context.Context, Event) error {
			return errors.New("smtp down")
		}},
		funcNotifier{name: "panicky", fn: func(context.Context, Event) error {
			panic("boom")
		}},
		funcNotifier{name: "ok", fn: func(context.Context, Event) error {
			delivered = true
			return nil
		}},
	)

	outcomes := d.Dispatch(context.Background(), reportEvent())
	require.Len(t, outcomes, 3)

	assert.True(t, apperr.IsNotification(outcomes[0].Err))
	assert.ErrorContains(t, outcomes[0].Err, "smtp down")
	assert.ErrorContains(t, outcomes[0].Err, "notify.broken")

	assert.True(t, apperr.IsNotification(outcomes[1].Err))
	assert.ErrorContains(t, outcomes[1].Err, "panic: boom")

	assert.True(t, outcomes[2].Delivered())
	assert.True(t, delivered)

	assert.Contains(t, logs.String(), "notification failed")
	assert.Contains(t, logs.String(), "channel=broken")
}

func TestDispatchSkippedIsNotAFailure(t *testing.T) {
	d := NewDispatcher(time.Second, quietLogger(),
		funcNotifier{name: "quiet", fn: func(context.Context, Event) error { return ErrSkipped }},
	)

	outcomes := d.Dispatch(context.Background(), reportEvent())
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.NoError(t, outcomes[0].Err)
	assert.False(t, outcomes[0].Delivered())
}

func TestDispatchPerChannelTimeout(t *testing.T) {
	d := NewDispatcher(20*time.Millisecond, quietLogger(),
		funcNotifier{name: "slow", fn: func(ctx context.Context, ev Event) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		funcNotifier{name: "fast", fn: func(ctx context.Context, ev Event) error {
			return ctx.Err()
		}},
	)

	outcomes := d.Dispatch(context.Background(), reportEvent())
	require.Len(t, outcomes, 2)
	assert.ErrorIs(t, outcomes[0].Err, context.DeadlineExceeded)
	assert.True(t, outcomes[1].Delivered(), "each channel gets a fresh deadline")
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	assert.Nil(t, d.Dispatch(context.Background(), reportEvent()))
	assert.Nil(t, d.Channels())
}

func TestEventHasChanges(t *testing.T) {
	assert.True(t, reportEvent().HasChanges())
	assert.False(t, Event{Kind: EventBaseline, Source: "shop", ItemCount: 4}.HasChanges())
	assert.False(t, Event{Kind: EventReport, Source: "shop"}.HasChanges())
	assert.False(t, Event{Kind: EventReport, Report: diff.NewReport(nil, nil, nil)}.HasChanges())
}
