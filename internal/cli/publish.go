package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/evsync/internal/ir"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Tags string
}

// PublishResult is the output of the publish command.
type PublishResult struct {
	Events []ir.Event `json:"events"`
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <payload>...",
		Short: "Persist events",
		Long: `Persist one event per JSON payload argument, all with the same tags.
A payload of "-" reads one JSON document from stdin.

Examples:
  evsync publish --tags order,created '{"id":"o-1"}'
  echo '{"id":"o-2"}' | evsync publish --tags order -`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tags, "tags", "", "tags for every event, comma separated")

	return cmd
}

func runPublish(opts *PublishOptions, args []string, cmd *cobra.Command) error {
	var tags []string
	for _, t := range strings.Split(opts.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	drafts := make([]ir.EventDraft, 0, len(args))
	for i, arg := range args {
		payload := []byte(arg)
		if arg == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read stdin", err)
			}
			payload = bytes.TrimSpace(data)
		}
		if !json.Valid(payload) {
			return NewExitError(ExitCommandError, fmt.Sprintf("payload %d is not valid JSON", i+1))
		}
		drafts = append(drafts, ir.EventDraft{Tags: tags, Payload: json.RawMessage(payload)})
	}

	s, err := opts.connect(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.client.Publish(s.ctx, drafts...)
	if err != nil {
		return storeError("publish", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(PublishResult{Events: events})
	}
	for _, e := range events {
		fmt.Fprintf(out.Writer, "published %s\n", formatKey(e.Key()))
	}
	return nil
}
