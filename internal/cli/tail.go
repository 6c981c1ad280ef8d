package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/client"
	"github.com/roach88/evsync/internal/ir"
	"github.com/roach88/evsync/internal/subscription"
)

// TailOptions holds flags for the tail command.
type TailOptions struct {
	*RootOptions
	Session   string
	Tags      []string
	From      string
	Latest    string
	Horizon   string
	Semantics string
	Version   int
}

// TailMessage is one monotonic subscription message in JSON output.
type TailMessage struct {
	Type     string       `json:"type"`
	Lower    ir.OffsetMap `json:"lower,omitempty"`
	Upper    ir.OffsetMap `json:"upper,omitempty"`
	CaughtUp bool         `json:"caught_up,omitempty"`
	Events   []ir.Event   `json:"events,omitempty"`
	Snapshot *ir.Snapshot `json:"snapshot,omitempty"`
	Trigger  *ir.EventKey `json:"trigger,omitempty"`
}

// NewTailCommand creates the tail command.
func NewTailCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TailOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow events with a monotonic subscription",
		Long: `Follow matching events in causal order, now and in the future.

With --from and --latest the subscription resumes after a previously
consumed point; if an event sorting before --latest has since appeared,
the command reports time travel and exits with code 3. With --semantics
and a snapshot database, a cached snapshot is used as resumption point.

Examples:
  evsync tail --tags order
  evsync tail --from A=10,B=3 --latest 42/A/10
  evsync tail --semantics counter --version 1 --session s-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: generated)")
	cmd.Flags().StringArrayVar(&opts.Tags, "tags", nil, "required tags, comma separated; repeat for alternatives")
	cmd.Flags().StringVar(&opts.From, "from", "", "resume after these offsets (stream=offset,...)")
	cmd.Flags().StringVar(&opts.Latest, "latest", "", "last consumed event key (lamport/stream/offset)")
	cmd.Flags().StringVar(&opts.Horizon, "horizon", "", "ignore events below this key (lamport/stream/offset)")
	cmd.Flags().StringVar(&opts.Semantics, "semantics", "", "snapshot semantics to resume from")
	cmd.Flags().IntVar(&opts.Version, "version", 0, "snapshot version")

	return cmd
}

// fixedStart builds the resumption point from --from, --latest and
// --horizon. It returns nil when none is given.
func (o *TailOptions) fixedStart() (*ir.FixedStart, error) {
	if o.From == "" && o.Latest == "" && o.Horizon == "" {
		return nil, nil
	}
	if o.Latest == "" {
		return nil, fmt.Errorf("--latest is required with --from or --horizon")
	}
	from, err := parseOffsetMap(o.From)
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	latest, err := parseKey(o.Latest)
	if err != nil {
		return nil, fmt.Errorf("--latest: %w", err)
	}
	start := &ir.FixedStart{From: from, LatestEventKey: latest}
	if o.Horizon != "" {
		horizon, err := parseKey(o.Horizon)
		if err != nil {
			return nil, fmt.Errorf("--horizon: %w", err)
		}
		start.Horizon = &horizon
	}
	return start, nil
}

func runTail(opts *TailOptions, cmd *cobra.Command) error {
	start, err := opts.fixedStart()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid resumption point", err)
	}

	s, err := opts.connect(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	out := opts.formatter(cmd)
	var trigger *ir.EventKey
	onMessage := func(m subscription.Message) error {
		switch m := m.(type) {
		case subscription.Events:
			if opts.Format == "json" {
				return out.Line(TailMessage{
					Type:     "events",
					Lower:    m.Chunk.LowerBound,
					Upper:    m.Chunk.UpperBound,
					CaughtUp: m.CaughtUp,
					Events:   m.Chunk.Events,
				}, "")
			}
			for _, e := range m.Chunk.Events {
				if err := out.Line(nil, formatEvent(e)); err != nil {
					return err
				}
			}
			if m.Chunk.IsEmpty() && m.CaughtUp {
				return out.Line(nil, fmt.Sprintf("# caught up at %s", formatOffsets(m.Chunk.UpperBound)))
			}
		case subscription.State:
			snap := m.Snapshot
			if opts.Format == "json" {
				return out.Line(TailMessage{Type: "state", Snapshot: &snap}, "")
			}
			return out.Line(nil, fmt.Sprintf("# resumed from snapshot at %s (%s)", formatKey(snap.EventKey), formatOffsets(snap.Offsets)))
		case subscription.TimeTravel:
			k := m.Trigger
			trigger = &k
			if opts.Format == "json" {
				return out.Line(TailMessage{Type: "time_travel", Trigger: &k}, "")
			}
			return out.Line(nil, fmt.Sprintf("# time travel: %s", formatKey(k)))
		}
		return nil
	}

	h := s.client.SubscribeMonotonic(s.ctx, client.MonotonicQuery{
		Session:   opts.Session,
		Where:     parseWhere(opts.Tags),
		Start:     start,
		Semantics: opts.Semantics,
		Version:   opts.Version,
	}, onMessage)
	if err := h.Wait(); err != nil {
		return storeError("subscription", err)
	}

	if trigger != nil {
		return NewExitError(ExitTimeTravel, fmt.Sprintf("time travel triggered by %s", formatKey(*trigger)))
	}
	return nil
}
