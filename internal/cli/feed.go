package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/pos/internal/store"
	"github.com/roach88/pos/internal/stream"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	After int64
	Limit int
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print change feed records",
		Long: `Print change feed records of the store, in order, as a stream event.

The text output is an event document that "pos apply" accepts, so a
feed range can be replayed into a master by hand.

Example:
  pos feed --after 41 --limit 10
  pos feed > event.json && pos apply event.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "print records with a feed position greater than this")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", store.DefaultFeedLimit, "maximum number of records")

	return cmd
}

func runFeed(cmd *cobra.Command, opts *FeedOptions) error {
	ctx := commandContext(cmd.Context)

	if opts.After < 0 || opts.Limit <= 0 {
		return NewExitError(ExitCommandError, "--after must be >= 0 and --limit > 0")
	}

	e, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	records, err := e.store.ReadFeed(ctx, opts.After, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read feed", err)
	}
	ev := stream.Event{Records: records}
	if ev.Records == nil {
		ev.Records = []stream.Record{}
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(ev)
	}

	out, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode feed", err)
	}
	out = append(out, '\n')
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
