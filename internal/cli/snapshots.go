package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/ir"
	"github.com/roach88/evsync/internal/store"
)

// SnapshotsOptions holds flags shared by the snapshots subcommands.
type SnapshotsOptions struct {
	*RootOptions
	Database  string
	Semantics string
	Session   string
	Key       string
}

// SnapshotInfo is one cached snapshot in list output. State is omitted.
type SnapshotInfo struct {
	Semantics string       `json:"semantics"`
	Session   string       `json:"session"`
	Version   int          `json:"version"`
	EventKey  ir.EventKey  `json:"event_key"`
	Offsets   ir.OffsetMap `json:"offsets"`
	Cycle     int          `json:"cycle"`
	StateSize int          `json:"state_size"`
}

// InvalidateResult is the output of snapshots invalidate.
type InvalidateResult struct {
	Deleted int64 `json:"deleted"`
}

// NewSnapshotsCommand creates the snapshots command group.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect and invalidate cached snapshots",
		Long: `Inspect and invalidate the snapshot database used by monotonic
subscriptions. The database defaults to snapshot_db from the config.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "snapshot database (default: snapshot_db from config)")
	cmd.PersistentFlags().StringVar(&opts.Semantics, "semantics", "", "snapshot semantics")

	cmd.AddCommand(newSnapshotsListCommand(opts))
	cmd.AddCommand(newSnapshotsInvalidateCommand(opts))
	return cmd
}

func newSnapshotsListCommand(opts *SnapshotsOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached snapshots",
		Long: `List cached snapshots, optionally restricted to one semantics.

Example:
  evsync snapshots list --db ./snapshots.db --semantics counter`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsList(opts, cmd)
		},
	}
}

func newSnapshotsInvalidateCommand(opts *SnapshotsOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete cached snapshots",
		Long: `Delete every snapshot of --semantics, or with --session and --key only
the snapshots of that session at or after the key.

Examples:
  evsync snapshots invalidate --semantics counter
  evsync snapshots invalidate --semantics counter --session s-1 --key 42/A/10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotsInvalidate(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Session, "session", "", "session whose snapshots to invalidate")
	cmd.Flags().StringVar(&opts.Key, "key", "", "invalidate at or after this key (lamport/stream/offset)")
	return cmd
}

// openSnapshots opens --db, falling back to the configured snapshot_db.
func (o *SnapshotsOptions) openSnapshots() (*store.Store, error) {
	path := o.Database
	if path == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.SnapshotDB
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no snapshot database: set --db or snapshot_db")
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open snapshot database", err)
	}
	return st, nil
}

func runSnapshotsList(opts *SnapshotsOptions, cmd *cobra.Command) error {
	st, err := opts.openSnapshots()
	if err != nil {
		return err
	}
	defer st.Close()

	snaps, err := st.ListSnapshots(cmd.Context(), opts.Semantics)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list snapshots", err)
	}

	infos := make([]SnapshotInfo, 0, len(snaps))
	for _, s := range snaps {
		infos = append(infos, SnapshotInfo{
			Semantics: s.Semantics,
			Session:   s.Session,
			Version:   s.Version,
			EventKey:  s.EventKey,
			Offsets:   s.Offsets,
			Cycle:     s.Cycle,
			StateSize: len(s.State),
		})
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(out.Writer, "No snapshots.")
		return nil
	}
	for _, i := range infos {
		fmt.Fprintf(out.Writer, "%s\t%s\tv%d\t%s\t%s\t%d bytes\n",
			i.Semantics, i.Session, i.Version, formatKey(i.EventKey), formatOffsets(i.Offsets), i.StateSize)
	}
	return nil
}

func runSnapshotsInvalidate(opts *SnapshotsOptions, cmd *cobra.Command) error {
	if opts.Semantics == "" {
		return NewExitError(ExitCommandError, "--semantics is required")
	}
	if (opts.Session == "") != (opts.Key == "") {
		return NewExitError(ExitCommandError, "--session and --key must be given together")
	}
	var key ir.EventKey
	if opts.Key != "" {
		k, err := parseKey(opts.Key)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --key", err)
		}
		key = k
	}

	st, err := opts.openSnapshots()
	if err != nil {
		return err
	}
	defer st.Close()

	var n int64
	if opts.Session != "" {
		n, err = st.InvalidateSnapshots(cmd.Context(), opts.Semantics, opts.Session, key)
	} else {
		n, err = st.InvalidateAll(cmd.Context(), opts.Semantics)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to invalidate snapshots", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(InvalidateResult{Deleted: n})
	}
	fmt.Fprintf(out.Writer, "Invalidated %d snapshot(s).\n", n)
	return nil
}
