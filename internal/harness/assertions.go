package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/changewatch/internal/notify"
	"github.com/roach88/changewatch/internal/record"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		line := fmt.Sprintf("  [%d] %s %s", event.Step, event.RunID, event.Status)
		if event.Summary != "" {
			line += " (" + event.Summary + ")"
		}
		if event.Error != "" {
			line += " error=" + event.Error
		}
		fmt.Fprintln(&buf, line)
	}

	return buf.String()
}

// evaluate dispatches one assertion by type.
func (h *Harness) evaluate(ctx context.Context, result *Result, a Assertion) error {
	switch a.Type {
	case AssertSnapshotCount:
		return h.assertSnapshotCount(ctx, result.Trace, a)
	case AssertLatestIDs:
		return h.assertLatestIDs(ctx, result.Trace, a)
	case AssertNotificationCount:
		return h.assertNotificationCount(result.Trace, a)
	case AssertStatusSequence:
		return assertStatusSequence(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertSnapshotCount(ctx context.Context, trace []TraceEvent, a Assertion) error {
	snaps, err := h.store.List(ctx, h.scenario.Source.Name, 0)
	if err != nil {
		return fmt.Errorf("snapshot_count: %w", err)
	}
	if len(snaps) != a.Count {
		return &AssertionError{
			Type:     AssertSnapshotCount,
			Expected: fmt.Sprintf("%d snapshot(s)", a.Count),
			Actual:   fmt.Sprintf("%d snapshot(s)", len(snaps)),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertLatestIDs(ctx context.Context, trace []TraceEvent, a Assertion) error {
	records, found, err := h.store.Store.Latest(ctx, h.scenario.Source.Name)
	if err != nil {
		return fmt.Errorf("latest_ids: %w", err)
	}
	if !found {
		return &AssertionError{
			Type:     AssertLatestIDs,
			Expected: fmt.Sprintf("%v", a.IDs),
			Actual:   "no snapshot",
			Trace:    trace,
		}
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = record.Identifier(r, h.scenario.Source.KeyFields)
	}
	if !slices.Equal(ids, a.IDs) {
		return &AssertionError{
			Type:     AssertLatestIDs,
			Expected: fmt.Sprintf("%v", a.IDs),
			Actual:   fmt.Sprintf("%v", ids),
			Trace:    trace,
		}
	}
	return nil
}

func (h *Harness) assertNotificationCount(trace []TraceEvent, a Assertion) error {
	got := h.events.count(notify.EventKind(a.Kind))
	if got != a.Count {
		return &AssertionError{
			Type:     AssertNotificationCount,
			Expected: fmt.Sprintf("%d %s event(s)", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d %s event(s)", got, a.Kind),
			Trace:    trace,
		}
	}
	return nil
}

func assertStatusSequence(trace []TraceEvent, a Assertion) error {
	got := make([]string, len(trace))
	for i, event := range trace {
		got[i] = event.Status
	}
	if !slices.Equal(got, a.Statuses) {
		return &AssertionError{
			Type:     AssertStatusSequence,
			Expected: strings.Join(a.Statuses, " -> "),
			Actual:   strings.Join(got, " -> "),
			Trace:    trace,
		}
	}
	return nil
}
