package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/changewatch/internal/diff"
	"github.com/roach88/changewatch/internal/fetch"
	"github.com/roach88/changewatch/internal/notify"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	KeyFields     []string
	CompareFields []string
	PriceField    string
	ExitCode      bool
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <old.json> <new.json>",
		Short: "Compare two record files without touching the database",
		Long: `Compare two JSON arrays of flat records and print the change report.

Records are matched by the --key fields; matched records are compared on the
--compare fields (default: every field of the first old record).

Example:
  changewatch diff before.json after.json --key title --compare price,availability
  changewatch diff a.json b.json --key id --exit-code`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.KeyFields, "key", "k", nil, "identity field (repeatable, required)")
	cmd.Flags().StringSliceVar(&opts.CompareFields, "compare", nil, "fields compared on matched records (repeatable)")
	cmd.Flags().StringVar(&opts.PriceField, "price", "", "field parsed as a price for deltas")
	cmd.Flags().BoolVar(&opts.ExitCode, "exit-code", false, "exit with 1 when changes are found")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runDiff(opts *DiffOptions, oldPath, newPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var detectorOpts []diff.Option
	if opts.PriceField != "" {
		detectorOpts = append(detectorOpts, diff.WithPriceField(opts.PriceField))
	}
	detector, err := diff.NewSetDetector(opts.KeyFields, opts.CompareFields, detectorOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeValidation, "invalid fields", err)
	}

	oldRecords, err := fetch.NewJSON(oldPath).Fetch(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to read old records", err)
	}
	newRecords, err := fetch.NewJSON(newPath).Fetch(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to read new records", err)
	}
	formatter.VerboseLog("Comparing %d old and %d new records", len(oldRecords), len(newRecords))

	report := detector.Detect(oldRecords, newRecords)

	if formatter.IsJSON() {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		console := notify.NewConsole(cmd.OutOrStdout(), notify.WithVerbose(opts.Verbose))
		err := console.Notify(ctx, notify.Event{
			Kind:      notify.EventReport,
			Source:    fmt.Sprintf("%s -> %s", filepath.Base(oldPath), filepath.Base(newPath)),
			Report:    report,
			ItemCount: len(newRecords),
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
	}

	if opts.ExitCode && report.HasChanges() {
		return NewExitError(ExitFailure, report.Summary())
	}
	return nil
}
