// Package monitor runs the per-source change detection cycle.
//
// One cycle for source S with freshly fetched records R:
//
//  0. R is cleaned with the source's rules; an empty R is skipped when
//     the source asks for it
//  1. old := store.Latest(S)
//  2. no snapshot yet: save R as the baseline, emit a baseline event, stop
//  3. otherwise detect old -> R and dispatch the report to every channel,
//     changed or not
//  4. without changes nothing is written; with changes R is saved and the
//     history of S is pruned to the retention window
//
// Notification delivery finishes before any store transaction begins, and
// diffing holds no transaction open. A failed cycle leaves the latest
// snapshot untouched, so the next cycle re-diffs against the same baseline.
//
// Sources are independent: RunAll fans out with bounded concurrency and a
// failure in one source never affects another. Two concurrent cycles for
// the same source are not supported and are rejected by RunAll.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/changewatch/internal/apperr"
	"github.com/roach88/changewatch/internal/clean"
	"github.com/roach88/changewatch/internal/diff"
	"github.com/roach88/changewatch/internal/fetch"
	"github.com/roach88/changewatch/internal/metrics"
	"github.com/roach88/changewatch/internal/notify"
	"github.com/roach88/changewatch/internal/record"
)

// Defaults.
const (
	DefaultRetention    = 10
	DefaultConcurrency  = 4
	DefaultFetchTimeout = 30 * time.Second
)

// SnapshotStore is the persistence the monitor needs.
type SnapshotStore interface {
	Save(ctx context.Context, source string, records []record.Record) (int64, error)
	Latest(ctx context.Context, source string) ([]record.Record, bool, error)
	Prune(ctx context.Context, source string, keep int) (int64, error)
}

// Source is one monitored source.
type Source struct {
	Name          string
	KeyFields     []string
	CompareFields []string
	PriceField    string

	// Retention overrides the monitor's retention window when > 0.
	Retention int

	// Silent suppresses notifications for this source.
	Silent bool

	// Clean tidies fetched records before detection. Nil keeps them as is.
	Clean *clean.Cleaner

	// SkipEmpty treats an empty record list as a failed scrape rather than
	// "everything was removed": the cycle is skipped and the baseline kept.
	SkipEmpty bool

	// Fetcher is used by Cycle and RunAll.
	Fetcher fetch.Fetcher
}

// Status is the outcome of one cycle.
type Status string

const (
	StatusBaseline  Status = "baseline"
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result describes one finished cycle.
type Result struct {
	Source string
	RunID  string
	Status Status

	// Records are the observed records after cleaning, returned for
	// downstream export.
	Records []record.Record

	// Dropped counts records removed by cleaning.
	Dropped clean.Stats

	// Report is nil for baselines and for failures before detection.
	Report *diff.Report

	// SnapshotID is the saved snapshot, or 0 when nothing was written.
	SnapshotID int64

	// Pruned counts snapshots deleted by retention.
	Pruned int64

	Notifications []notify.Outcome
	Duration      time.Duration
	Err           error
}

// Monitor runs detection cycles against a snapshot store.
type Monitor struct {
	store        SnapshotStore
	dispatcher   *notify.Dispatcher
	logger       *slog.Logger
	metrics      *metrics.Recorder
	runIDs       RunIDGenerator
	now          func() time.Time
	retention    int
	concurrency  int
	fetchTimeout time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRetention sets the default number of snapshots kept per source.
func WithRetention(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.retention = n
		}
	}
}

// WithConcurrency bounds how many sources RunAll processes at once.
func WithConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithFetchTimeout bounds each fetch in Cycle.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

// WithRunIDs sets the run id generator. Default UUIDv7.
func WithRunIDs(g RunIDGenerator) Option {
	return func(m *Monitor) {
		m.runIDs = g
	}
}

// WithMetrics records every cycle on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Monitor) {
		m.metrics = r
	}
}

// WithClock overrides the clock used for durations and metrics.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a Monitor. A nil dispatcher disables notifications.
func New(store SnapshotStore, dispatcher *notify.Dispatcher, opts ...Option) *Monitor {
	m := &Monitor{
		store:        store,
		dispatcher:   dispatcher,
		logger:       slog.Default(),
		runIDs:       UUIDv7Generator{},
		now:          time.Now,
		retention:    DefaultRetention,
		concurrency:  DefaultConcurrency,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunSource runs one cycle for src over already fetched records. The
// returned Result is never nil; on failure it has StatusFailed and the
// same error as the second return value.
func (m *Monitor) RunSource(ctx context.Context, src Source, records []record.Record) (*Result, error) {
	res := &Result{Source: src.Name, RunID: m.runIDs.Generate(), Records: records}
	return m.finish(res, m.runSource(ctx, src, records, res))
}

// Cycle fetches src with the fetch timeout and runs one cycle. A failed
// fetch fails the cycle without touching the store.
func (m *Monitor) Cycle(ctx context.Context, src Source) (*Result, error) {
	res := &Result{Source: src.Name, RunID: m.runIDs.Generate()}
	start := m.now()

	records, err := m.fetch(ctx, src, res.RunID)
	if err != nil {
		res.Duration = m.now().Sub(start)
		return m.finish(res, err)
	}
	res.Records = records

	err = m.runSource(ctx, src, records, res)
	res.Duration = m.now().Sub(start)
	return m.finish(res, err)
}

func (m *Monitor) fetch(ctx context.Context, src Source, runID string) ([]record.Record, error) {
	if src.Fetcher == nil {
		return nil, apperr.Validation("monitor.fetch", src.Name, "source has no fetcher")
	}

	fctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	m.logger.Debug("fetching source", "source", src.Name, "run_id", runID)
	records, err := src.Fetcher.Fetch(fctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	m.logger.Debug("source fetched", "source", src.Name, "run_id", runID, "items", len(records))
	return records, nil
}

func (m *Monitor) runSource(ctx context.Context, src Source, records []record.Record, res *Result) error {
	start := m.now()
	defer func() {
		if res.Duration == 0 {
			res.Duration = m.now().Sub(start)
		}
	}()

	detector, err := m.validate(src)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	records = m.clean(src, records, res)
	if src.SkipEmpty && len(records) == 0 {
		res.Status = StatusSkipped
		m.logger.Warn("no records observed, cycle skipped",
			"source", src.Name,
			"run_id", res.RunID,
		)
		return nil
	}

	old, found, err := m.store.Latest(ctx, src.Name)
	if err != nil {
		return err
	}

	if !found {
		return m.baseline(ctx, src, records, res)
	}

	report := detector.Detect(old, records)
	res.Report = report
	m.logger.Debug("detection complete",
		"source", src.Name,
		"run_id", res.RunID,
		"summary", report.Summary(),
	)

	res.Notifications = m.dispatch(ctx, src, notify.Event{
		Kind:      notify.EventReport,
		Source:    src.Name,
		RunID:     res.RunID,
		Report:    report,
		ItemCount: len(records),
	})

	if !report.HasChanges() {
		res.Status = StatusUnchanged
		m.logger.Info("no changes detected, snapshot not saved",
			"source", src.Name,
			"run_id", res.RunID,
		)
		return nil
	}

	id, err := m.store.Save(ctx, src.Name, records)
	if err != nil {
		return err
	}
	res.SnapshotID = id
	res.Status = StatusChanged
	m.logger.Info("changes detected, snapshot saved",
		"source", src.Name,
		"run_id", res.RunID,
		"snapshot_id", id,
		"summary", report.Summary(),
	)

	res.Pruned = m.prune(ctx, src, res.RunID)
	return nil
}

func (m *Monitor) clean(src Source, records []record.Record, res *Result) []record.Record {
	if !src.Clean.Enabled() {
		return records
	}
	cleaned, stats := src.Clean.Apply(records)
	res.Records = cleaned
	res.Dropped = stats
	if stats.Dropped() > 0 {
		m.logger.Info("records dropped by cleaning",
			"source", src.Name,
			"run_id", res.RunID,
			"missing", stats.Missing,
			"duplicates", stats.Duplicates,
		)
	}
	return cleaned
}

func (m *Monitor) baseline(ctx context.Context, src Source, records []record.Record, res *Result) error {
	id, err := m.store.Save(ctx, src.Name, records)
	if err != nil {
		return err
	}
	res.SnapshotID = id
	res.Status = StatusBaseline
	m.logger.Info("first run, baseline captured",
		"source", src.Name,
		"run_id", res.RunID,
		"snapshot_id", id,
		"items", len(records),
	)

	res.Notifications = m.dispatch(ctx, src, notify.Event{
		Kind:      notify.EventBaseline,
		Source:    src.Name,
		RunID:     res.RunID,
		ItemCount: len(records),
	})
	return nil
}

// prune is advisory: a failure is logged and retried implicitly next cycle.
func (m *Monitor) prune(ctx context.Context, src Source, runID string) int64 {
	keep := m.retention
	if src.Retention > 0 {
		keep = src.Retention
	}

	deleted, err := m.store.Prune(ctx, src.Name, keep)
	if err != nil {
		m.logger.Warn("prune failed",
			"source", src.Name,
			"run_id", runID,
			"keep", keep,
			"error", err,
		)
		return 0
	}
	if deleted > 0 {
		m.logger.Debug("old snapshots pruned",
			"source", src.Name,
			"run_id", runID,
			"deleted", deleted,
			"keep", keep,
		)
	}
	m.metrics.ObservePruned(src.Name, deleted)
	return deleted
}

func (m *Monitor) dispatch(ctx context.Context, src Source, ev notify.Event) []notify.Outcome {
	if src.Silent {
		return nil
	}
	outcomes := m.dispatcher.Dispatch(ctx, ev)
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			m.metrics.ObserveNotification(o.Channel, metrics.NotifyFailed)
		case o.Skipped:
			m.metrics.ObserveNotification(o.Channel, metrics.NotifySkipped)
		default:
			m.metrics.ObserveNotification(o.Channel, metrics.NotifySent)
		}
	}
	return outcomes
}

func (m *Monitor) validate(src Source) (*diff.SetDetector, error) {
	if strings.TrimSpace(src.Name) == "" {
		return nil, apperr.Validation("monitor.validate", src.Name, "source name is empty")
	}
	var opts []diff.Option
	if src.PriceField != "" {
		opts = append(opts, diff.WithPriceField(src.PriceField))
	}
	detector, err := diff.NewSetDetector(src.KeyFields, src.CompareFields, opts...)
	if err != nil {
		return nil, attachSource(err, src.Name)
	}
	return detector, nil
}

// attachSource fills in the source name on classified errors that lack it.
func attachSource(err error, source string) error {
	var e *apperr.Error
	if errors.As(err, &e) && e.Source == "" {
		copied := *e
		copied.Source = source
		return &copied
	}
	return err
}

func (m *Monitor) finish(res *Result, err error) (*Result, error) {
	outcome := string(res.Status)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		outcome = metrics.OutcomeError
		m.logger.Error("cycle failed",
			"source", res.Source,
			"run_id", res.RunID,
			"kind", apperr.KindOf(err),
			"error", err,
		)
	}

	m.metrics.ObserveRun(res.Source, outcome, res.Duration, m.now())
	if err == nil {
		m.metrics.SetItems(res.Source, len(res.Records))
		if r := res.Report; r != nil {
			m.metrics.ObserveChanges(res.Source, len(r.NewItems()), len(r.RemovedItems()), len(r.ModifiedItems()))
		}
	}
	return res, err
}
