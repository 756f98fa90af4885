package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/changewatch/internal/apperr"
	"github.com/roach88/changewatch/internal/clean"
	"github.com/roach88/changewatch/internal/diff"
	"github.com/roach88/changewatch/internal/monitor"
	"github.com/roach88/changewatch/internal/notify"
	"github.com/roach88/changewatch/internal/record"
	"github.com/roach88/changewatch/internal/store"
	"github.com/roach88/changewatch/internal/testutil"
)

// Epoch is the first instant of every scenario clock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// errInjected is the cause of every injected storage failure.
var errInjected = errors.New("injected failure")

// Harness executes scenarios against a fresh in-memory store.
type Harness struct {
	scenario *Scenario
	store    *faultStore
	events   *eventLog
	monitor  *monitor.Monitor
}

// Run executes a scenario and returns the result.
//
// Each step runs one monitor cycle with the step's records. Expect clauses
// are checked as steps complete; assertions run after the last step.
// A returned error means the harness itself could not run; scenario
// mismatches are reported through Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	return h.run(ctx)
}

func newHarness(scenario *Scenario) (*Harness, error) {
	if scenario == nil {
		return nil, fmt.Errorf("scenario is nil")
	}
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	clock := testutil.NewStepClock(Epoch, time.Second)
	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	events := &eventLog{}
	fs := &faultStore{Store: st}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := []monitor.Option{
		monitor.WithLogger(logger),
		monitor.WithRunIDs(testutil.NewFixedRunIDs(scenario.Name)),
		monitor.WithClock(clock.Now),
	}
	if scenario.Source.Retention > 0 {
		opts = append(opts, monitor.WithRetention(scenario.Source.Retention))
	}

	return &Harness{
		scenario: scenario,
		store:    fs,
		events:   events,
		monitor:  monitor.New(fs, notify.NewDispatcher(0, logger, events), opts...),
	}, nil
}

func (h *Harness) run(ctx context.Context) (*Result, error) {
	result := NewResult()
	src := h.source()

	for i, step := range h.scenario.Steps {
		records, err := record.FromMaps(step.Records)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}

		h.store.fail = step.Fail
		h.events.reset()
		res, _ := h.monitor.RunSource(ctx, src, records)
		h.store.fail = ""

		event := traceEvent(i+1, res, src.KeyFields, h.events.kinds())
		result.Trace = append(result.Trace, event)

		if step.Expect != nil {
			checkExpect(result, i, event, step.Expect)
		}
	}

	for i, a := range h.scenario.Assertions {
		if err := h.evaluate(ctx, result, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func (h *Harness) source() monitor.Source {
	s := h.scenario.Source
	return monitor.Source{
		Name:          s.Name,
		KeyFields:     s.KeyFields,
		CompareFields: s.CompareFields,
		PriceField:    s.PriceField,
		SkipEmpty:     s.SkipEmpty,
		Clean: &clean.Cleaner{
			NormalizeFields: s.NormalizeFields,
			RequiredFields:  s.RequiredFields,
			DedupeKeys:      dedupeKeys(s.DedupeByKey, s.KeyFields),
		},
	}
}

func dedupeKeys(enabled bool, keyFields []string) []string {
	if !enabled {
		return nil
	}
	return keyFields
}

func traceEvent(step int, res *monitor.Result, keyFields []string, events []string) TraceEvent {
	event := TraceEvent{
		Step:       step,
		RunID:      res.RunID,
		Status:     string(res.Status),
		Items:      len(res.Records),
		SnapshotID: res.SnapshotID,
		Pruned:     res.Pruned,
		Events:     events,
	}
	if res.Err != nil {
		event.Error = string(apperr.KindOf(res.Err))
		if event.Error == "" {
			event.Error = res.Err.Error()
		}
	}
	if r := res.Report; r != nil {
		event.Summary = r.Summary()
		event.New = identifiers(r.NewItems(), keyFields)
		event.Removed = identifiers(r.RemovedItems(), keyFields)
		event.Modified = modifiedIDs(r.ModifiedItems())
	}
	return event
}

func identifiers(records []record.Record, keyFields []string) []string {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = record.Identifier(r, keyFields)
	}
	return ids
}

func modifiedIDs(changes []diff.ItemChange) []string {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]string, len(changes))
	for i, c := range changes {
		ids[i] = c.ID
	}
	return ids
}

func checkExpect(result *Result, index int, got TraceEvent, want *Expect) {
	prefix := fmt.Sprintf("steps[%d]", index)
	if got.Status != want.Status {
		result.AddError(fmt.Sprintf("%s: expected status %s, got %s", prefix, want.Status, got.Status))
	}
	if want.Summary != "" && got.Summary != want.Summary {
		result.AddError(fmt.Sprintf("%s: expected summary %q, got %q", prefix, want.Summary, got.Summary))
	}
	checkIDs(result, prefix, "new", want.New, got.New)
	checkIDs(result, prefix, "removed", want.Removed, got.Removed)
	checkIDs(result, prefix, "modified", want.Modified, got.Modified)
}

// checkIDs compares order-sensitively; a nil want is unchecked.
func checkIDs(result *Result, prefix, bucket string, want, got []string) {
	if want == nil {
		return
	}
	if len(want) == 0 && len(got) == 0 {
		return
	}
	if !slices.Equal(want, got) {
		result.AddError(fmt.Sprintf("%s: expected %s %v, got %v", prefix, bucket, want, got))
	}
}

// faultStore wraps the real store and fails the selected operation.
type faultStore struct {
	*store.Store
	fail string
}

func (f *faultStore) Save(ctx context.Context, source string, records []record.Record) (int64, error) {
	if f.fail == FailSave {
		return 0, apperr.Storage("store.save", source, errInjected)
	}
	return f.Store.Save(ctx, source, records)
}

func (f *faultStore) Latest(ctx context.Context, source string) ([]record.Record, bool, error) {
	if f.fail == FailLatest {
		return nil, false, apperr.Storage("store.latest", source, errInjected)
	}
	return f.Store.Latest(ctx, source)
}

func (f *faultStore) Prune(ctx context.Context, source string, keep int) (int64, error) {
	if f.fail == FailPrune {
		return 0, apperr.Storage("store.prune", source, errInjected)
	}
	return f.Store.Prune(ctx, source, keep)
}

// eventLog is a notifier that remembers event kinds. It keeps the whole
// history for notification_count and the current step for the trace.
type eventLog struct {
	mu    sync.Mutex
	all   []notify.EventKind
	since int
}

func (l *eventLog) Name() string { return "harness" }

func (l *eventLog) Notify(_ context.Context, ev notify.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, ev.Kind)
	return nil
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.since = len(l.all)
}

func (l *eventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.since == len(l.all) {
		return nil
	}
	kinds := make([]string, 0, len(l.all)-l.since)
	for _, k := range l.all[l.since:] {
		kinds = append(kinds, string(k))
	}
	return kinds
}

func (l *eventLog) count(kind notify.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, k := range l.all {
		if k == kind {
			n++
		}
	}
	return n
}
