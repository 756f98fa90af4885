package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/changewatch/internal/config"
	"github.com/roach88/changewatch/internal/metrics"
	"github.com/roach88/changewatch/internal/monitor"
	"github.com/roach88/changewatch/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsFile string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs monitor.RunIDGenerator

	// Clock allows overriding the wall clock (for testing).
	Clock func() time.Time

	// LogWriter receives log output. Defaults to stderr.
	LogWriter io.Writer
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}
	return newRunCommand(opts)
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [source...]",
		Short: "Fetch sources, detect changes and store snapshots",
		Long: `Run one detection cycle for every enabled source in the config file, or
only for the named sources (named sources run even when disabled).

Each source is fetched, compared with its latest snapshot and the report is
sent to the configured notification channels. The first run of a source
stores a baseline; later runs store a snapshot only when something changed.

Example:
  changewatch run --config ./changewatch.yaml
  changewatch run books jobs --metrics-file /var/lib/node_exporter/changewatch.prom`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path (overrides config)")

	return cmd
}

// runSummary is the per-source line of run output.
type runSummary struct {
	Source        string          `json:"source"`
	RunID         string          `json:"run_id"`
	Status        monitor.Status  `json:"status"`
	Items         int             `json:"items"`
	New           int             `json:"new"`
	Removed       int             `json:"removed"`
	Modified      int             `json:"modified"`
	SnapshotID    int64           `json:"snapshot_id,omitempty"`
	Pruned        int64           `json:"pruned,omitempty"`
	Notifications []notifySummary `json:"notifications,omitempty"`
	Error         string          `json:"error,omitempty"`
}

type notifySummary struct {
	Channel string `json:"channel"`
	Result  string `json:"result"`
	Error   string `json:"error,omitempty"`
}

func runMonitor(opts *RunOptions, names []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	logWriter := opts.LogWriter
	if logWriter == nil {
		logWriter = os.Stderr
	}
	logger := newLogger(logWriter, cfg, opts.Verbose)

	selected, err := cfg.EnabledSources(names...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to select sources", err)
	}
	if len(selected) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "no sources to run", nil)
	}
	sources, err := buildSources(selected)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid source", err)
	}

	// Console reports go to stderr in JSON mode to keep stdout parseable.
	console := cmd.OutOrStdout()
	if formatter.IsJSON() {
		console = cmd.ErrOrStderr()
	}
	dispatcher, err := buildDispatcher(cfg, console, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to configure notifications", err)
	}

	var storeOpts []store.Option
	if opts.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(opts.Clock))
	}
	logger.Debug("opening database", "path", cfg.Database)
	st, err := openStore(cfg.Database, storeOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStorage, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	metricsFile := cfg.MetricsFile
	if opts.MetricsFile != "" {
		metricsFile = opts.MetricsFile
	}
	var recorder *metrics.Recorder
	if metricsFile != "" {
		recorder = metrics.New()
	}

	m := monitor.New(st, dispatcher, monitorOptions(opts, cfg, logger, recorder)...)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("run starting", "sources", len(sources), "concurrency", cfg.Concurrency)
	results := m.RunAll(ctx, sources)

	if metricsFile != "" {
		if err := recorder.WriteTextfile(metricsFile); err != nil {
			logger.Warn("failed to write metrics", "path", metricsFile, "error", err)
		}
	}

	summaries := summarizeResults(results)
	if formatter.IsJSON() {
		if err := formatter.Success(summaries); err != nil {
			return err
		}
	} else {
		writeRunTable(cmd.OutOrStdout(), summaries)
	}

	failed := monitor.Summary(results)[monitor.StatusFailed]
	logger.Info("run finished", "sources", len(results), "failed", failed)
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d sources failed", failed, len(results)))
	}
	return nil
}

func monitorOptions(opts *RunOptions, cfg *config.Config, logger *slog.Logger, recorder *metrics.Recorder) []monitor.Option {
	mopts := []monitor.Option{
		monitor.WithLogger(logger),
		monitor.WithRetention(cfg.Retention),
		monitor.WithConcurrency(cfg.Concurrency),
		monitor.WithFetchTimeout(cfg.FetchTimeout.Std()),
		monitor.WithMetrics(recorder),
	}
	if opts.RunIDs != nil {
		mopts = append(mopts, monitor.WithRunIDs(opts.RunIDs))
	}
	if opts.Clock != nil {
		mopts = append(mopts, monitor.WithClock(opts.Clock))
	}
	return mopts
}

func summarizeResults(results []monitor.Result) []runSummary {
	out := make([]runSummary, 0, len(results))
	for _, r := range results {
		s := runSummary{
			Source:     r.Source,
			RunID:      r.RunID,
			Status:     r.Status,
			Items:      len(r.Records),
			SnapshotID: r.SnapshotID,
			Pruned:     r.Pruned,
		}
		if r.Report != nil {
			s.New = len(r.Report.NewItems())
			s.Removed = len(r.Report.RemovedItems())
			s.Modified = len(r.Report.ModifiedItems())
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		for _, o := range r.Notifications {
			ns := notifySummary{Channel: o.Channel, Result: "sent"}
			switch {
			case o.Err != nil:
				ns.Result = "failed"
				ns.Error = o.Err.Error()
			case o.Skipped:
				ns.Result = "skipped"
			}
			s.Notifications = append(s.Notifications, ns)
		}
		out = append(out, s)
	}
	return out
}

func writeRunTable(w io.Writer, summaries []runSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tITEMS\tNEW\tREMOVED\tMODIFIED\tSNAPSHOT")
	for _, s := range summaries {
		snapshot := "-"
		if s.SnapshotID != 0 {
			snapshot = fmt.Sprintf("%d", s.SnapshotID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Source, s.Status, s.Items, s.New, s.Removed, s.Modified, snapshot)
	}
	_ = tw.Flush()

	for _, s := range summaries {
		if s.Error != "" {
			fmt.Fprintf(w, "\n%s: %s\n", s.Source, s.Error)
		}
	}
}
