package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/changewatch/internal/record"
	"github.com/roach88/changewatch/internal/store"
)

// SnapshotsOptions holds flags for the snapshots subcommands.
type SnapshotsOptions struct {
	*RootOptions
	Limit   int
	Records bool
}

// NewSnapshotsCommand creates the snapshots command group.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect stored snapshots",
	}

	list := &cobra.Command{
		Use:           "list <source>",
		Short:         "List snapshots of a source, newest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsList(opts, args[0], cmd)
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "show at most n snapshots (0 = all)")

	show := &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one snapshot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsShow(opts, args[0], cmd)
		},
	}
	show.Flags().BoolVar(&opts.Records, "records", false, "print the stored records")

	sources := &cobra.Command{
		Use:           "sources",
		Short:         "List sources with stored history",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsSources(opts, cmd)
		},
	}

	cmd.AddCommand(list, show, sources)
	return cmd
}

// withStore loads config, opens the database and runs fn.
func withStore(opts *RootOptions, cmd *cobra.Command, formatter *OutputFormatter, fn func(ctx context.Context, st *store.Store) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	st, err := openStore(cfg.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStorage, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, st)
}

func runSnapshotsList(opts *SnapshotsOptions, source string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	return withStore(opts.RootOptions, cmd, formatter, func(ctx context.Context, st *store.Store) error {
		snaps, err := st.List(ctx, source, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, errorCode(err), "failed to list snapshots", err)
		}
		if formatter.IsJSON() {
			return formatter.Success(snaps)
		}
		writeSnapshotTable(cmd.OutOrStdout(), snaps)
		return nil
	})
}

func runSnapshotsShow(opts *SnapshotsOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return formatter.Fail(ExitCommandError, ErrCodeValidation, fmt.Sprintf("invalid snapshot id %q", arg), nil)
	}

	return withStore(opts.RootOptions, cmd, formatter, func(ctx context.Context, st *store.Store) error {
		snap, found, err := st.Get(ctx, id)
		if err != nil {
			return formatter.Fail(ExitCommandError, errorCode(err), "failed to read snapshot", err)
		}
		if !found {
			return formatter.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("snapshot %d not found", id), nil)
		}
		if !opts.Records {
			snap.Records = nil
		}

		if formatter.IsJSON() {
			return formatter.Success(snap)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "ID:       %d\n", snap.ID)
		fmt.Fprintf(w, "Source:   %s\n", snap.Source)
		fmt.Fprintf(w, "Items:    %d\n", snap.ItemCount)
		fmt.Fprintf(w, "Created:  %s\n", snap.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Hash:     %s\n", snap.ContentHash)
		if opts.Records {
			fmt.Fprintln(w)
			for _, r := range snap.Records {
				fmt.Fprintf(w, "%s\n", record.CanonicalForm(r))
			}
		}
		return nil
	})
}

func runSnapshotsSources(opts *SnapshotsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	return withStore(opts.RootOptions, cmd, formatter, func(ctx context.Context, st *store.Store) error {
		sources, err := st.Sources(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, errorCode(err), "failed to list sources", err)
		}
		if formatter.IsJSON() {
			return formatter.Success(sources)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tSNAPSHOTS\tLATEST")
		for _, s := range sources {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Source, s.Snapshots, s.LatestAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func writeSnapshotTable(w io.Writer, snaps []store.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tITEMS\tCREATED\tHASH")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", s.ID, s.ItemCount, s.CreatedAt.Format(time.RFC3339), shortHash(s.ContentHash))
	}
	_ = tw.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
