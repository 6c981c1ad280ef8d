package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/client"
	"github.com/roach88/evsync/internal/ir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Lower     string
	Upper     string
	Tags      []string
	Order     string
	ChunkSize int
}

// ChunkOutput is one delivered chunk in JSON output.
type ChunkOutput struct {
	Lower  ir.OffsetMap `json:"lower"`
	Upper  ir.OffsetMap `json:"upper"`
	Events []ir.Event   `json:"events"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query known events in a range",
		Long: `Query the events the store knows in (lower, upper]. Without --upper the
range ends at the store's present.

Results are delivered in chunks; each chunk's bounds cover exactly its
events, so the last upper bound can be passed as --lower to continue.

Examples:
  evsync query --tags order,paid
  evsync query --lower A=10 --upper A=20,B=5 --order desc
  evsync query --tags order --tags refund --chunk-size 100 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Lower, "lower", "", "exclusive lower bound (stream=offset,...)")
	cmd.Flags().StringVar(&opts.Upper, "upper", "", "inclusive upper bound (stream=offset,...); default present")
	cmd.Flags().StringArrayVar(&opts.Tags, "tags", nil, "required tags, comma separated; repeat for alternatives")
	cmd.Flags().StringVar(&opts.Order, "order", "asc", "delivery order (asc|desc|stream-asc)")
	cmd.Flags().IntVar(&opts.ChunkSize, "chunk-size", 0, "events per chunk (0 = one chunk)")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	lower, err := parseOffsetMap(opts.Lower)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --lower", err)
	}
	order, err := ir.ParseOrder(opts.Order)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --order", err)
	}
	var upper ir.OffsetMap
	if opts.Upper != "" {
		if upper, err = parseOffsetMap(opts.Upper); err != nil {
			return WrapExitError(ExitCommandError, "invalid --upper", err)
		}
	}
	where := parseWhere(opts.Tags)

	s, err := opts.connect(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	out := opts.formatter(cmd)
	total := 0
	onChunk := func(c ir.Chunk) error {
		total += len(c.Events)
		out.VerboseLog("chunk %s -> %s: %d events", formatOffsets(c.LowerBound), formatOffsets(c.UpperBound), len(c.Events))
		if opts.Format == "json" {
			return out.Line(ChunkOutput{Lower: c.LowerBound, Upper: c.UpperBound, Events: c.Events}, "")
		}
		for _, e := range c.Events {
			if err := out.Line(nil, formatEvent(e)); err != nil {
				return err
			}
		}
		return nil
	}

	var h *client.Handle
	if upper != nil {
		h = s.client.QueryKnownRangeChunked(s.ctx, client.RangeQuery{Lower: lower, Upper: upper, Where: where, Order: order}, opts.ChunkSize, onChunk)
	} else {
		h = s.client.QueryAllKnownChunked(s.ctx, client.AllKnownQuery{Lower: lower, Where: where, Order: order}, opts.ChunkSize, onChunk)
	}
	if err := h.Wait(); err != nil {
		return storeError("query", err)
	}

	s.logger.Debug("query finished", "events", total)
	if opts.Format != "json" && total == 0 {
		fmt.Fprintln(out.Writer, "No events.")
	}
	return nil
}
