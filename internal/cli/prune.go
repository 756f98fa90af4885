package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/changewatch/internal/monitor"
	"github.com/roach88/changewatch/internal/store"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Keep int
}

// pruneResult is the JSON payload of the prune command.
type pruneResult struct {
	Source  string `json:"source"`
	Keep    int    `json:"keep"`
	Deleted int64  `json:"deleted"`
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune <source>",
		Short: "Delete all but the newest snapshots of a source",
		Long: `Delete old snapshots of a source, keeping the newest --keep snapshots.

Runs already prune to the configured retention after every saved snapshot;
this command applies a different window by hand.

Example:
  changewatch prune books --keep 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Keep, "keep", monitor.DefaultRetention, "number of snapshots to keep")

	return cmd
}

func runPrune(opts *PruneOptions, source string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	return withStore(opts.RootOptions, cmd, formatter, func(ctx context.Context, st *store.Store) error {
		deleted, err := st.Prune(ctx, source, opts.Keep)
		if err != nil {
			return formatter.Fail(ExitCommandError, errorCode(err), "failed to prune snapshots", err)
		}

		res := pruneResult{Source: source, Keep: opts.Keep, Deleted: deleted}
		if formatter.IsJSON() {
			return formatter.Success(res)
		}
		return formatter.Success(fmt.Sprintf("Pruned %d snapshot(s) of %s, keeping %d", deleted, source, opts.Keep))
	})
}
