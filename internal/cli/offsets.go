package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/ir"
)

// OffsetsResult is the output of the offsets command.
type OffsetsResult struct {
	Present     ir.OffsetMap           `json:"present"`
	ToReplicate map[ir.StreamID]uint64 `json:"to_replicate"`
}

// NewOffsetsCommand creates the offsets command.
func NewOffsetsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "offsets",
		Short: "Show the store's present and replication backlog",
		Long: `Show the highest offset per stream known to the store, and how many
events per stream are still waiting to be replicated.

Example:
  evsync offsets --config ./evsync.yaml
  evsync offsets --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOffsets(rootOpts, cmd)
		},
	}
}

func runOffsets(opts *RootOptions, cmd *cobra.Command) error {
	s, err := opts.connect(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	offsets, err := s.client.Offsets(s.ctx)
	if err != nil {
		return storeError("offsets", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(OffsetsResult{Present: offsets.Present, ToReplicate: offsets.ToReplicate})
	}

	var b strings.Builder
	for _, stream := range offsets.Present.Streams() {
		fmt.Fprintf(&b, "%s\tpresent=%d", stream, offsets.Present[stream])
		if n, ok := offsets.ToReplicate[stream]; ok && n > 0 {
			fmt.Fprintf(&b, "\tto_replicate=%d", n)
		}
		b.WriteByte('\n')
	}
	var toReplicate []ir.StreamID
	for stream := range offsets.ToReplicate {
		toReplicate = append(toReplicate, stream)
	}
	slices.Sort(toReplicate)
	for _, stream := range toReplicate {
		if _, ok := offsets.Present[stream]; !ok {
			fmt.Fprintf(&b, "%s\tpresent=-\tto_replicate=%d\n", stream, offsets.ToReplicate[stream])
		}
	}
	if b.Len() == 0 {
		b.WriteString("No events.\n")
	}
	_, err = fmt.Fprint(out.Writer, b.String())
	return err
}
