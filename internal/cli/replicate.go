package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/pos/internal/replication"
)

// ReplicateOptions holds flags for the replicate command.
type ReplicateOptions struct {
	*RootOptions
	Once   bool
	Follow bool
}

// ReplicateResult is printed after a drain.
type ReplicateResult struct {
	Relay      string `json:"relay" yaml:"relay"`
	Delivered  int    `json:"delivered" yaml:"delivered"`
	Checkpoint int64  `json:"checkpoint" yaml:"checkpoint"`
	FeedHead   int64  `json:"feed_head" yaml:"feed_head"`
}

// NewReplicateCommand creates the replicate command.
func NewReplicateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplicateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Deliver the store's change feed to the master",
		Long: `Deliver pending change feed records to the configured sink.

By default the feed is drained from the relay checkpoint to its head and
the command exits. --once delivers a single batch; --follow keeps polling
until interrupted.

Exits 1 if the sink rejected any record. The checkpoint still advances
past the records that were applied before the first rejection.

Example:
  pos replicate --config ./pos.yaml
  pos replicate --follow`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplicate(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "deliver at most one batch")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "keep polling the feed until interrupted")
	cmd.MarkFlagsMutuallyExclusive("once", "follow")

	return cmd
}

func runReplicate(cmd *cobra.Command, opts *ReplicateOptions) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd.Context), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sink, err := e.sink(ctx, e.processor())
	if err != nil {
		return err
	}
	relay := e.relay(sink)

	if opts.Follow {
		if err := relay.Run(ctx); err != nil {
			return WrapExitError(ExitFailure, "relay stopped", err)
		}
		return nil
	}

	var delivered int
	if opts.Once {
		delivered, err = relay.RunOnce(ctx)
	} else {
		delivered, err = relay.Drain(ctx)
	}

	result := ReplicateResult{Relay: e.cfg.Replication.Name, Delivered: delivered}
	if cp, cpErr := e.store.LoadCheckpoint(ctx, e.cfg.Replication.Name); cpErr == nil {
		result.Checkpoint = cp
	}
	if head, headErr := e.store.LastFeedSeq(ctx); headErr == nil {
		result.FeedHead = head
	}

	if err != nil {
		var pf *replication.PartialFailure
		if errors.As(err, &pf) {
			_ = formatter.Error(ErrCodeReplication, pf.Error(), map[string]any{
				"result":   result,
				"failures": pf.Failures,
			})
			return WrapExitError(ExitFailure, "replication incomplete", err)
		}
		_ = formatter.Error(ErrCodeReplication, err.Error(), nil)
		return WrapExitError(ExitFailure, "replication failed", err)
	}

	formatter.VerboseLog("relay %s delivered %d record(s)", result.Relay, delivered)
	return formatter.Success(result)
}
