package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pos/internal/replication"
	"github.com/roach88/pos/internal/stream"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <event-file>",
		Short: "Apply a change feed event to the master",
		Long: `Apply a batch of change feed records to the master table, the way a
stream trigger would. The file holds a JSON event: {"Records": [...]}.
Use "-" to read from stdin.

Every record is attempted. Exits 1 if any record failed; the output lists
the failures.

Example:
  pos apply ./event.json
  cat event.json | pos apply - --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runApply(cmd *cobra.Command, opts *RootOptions, path string) error {
	ctx := commandContext(cmd.Context)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ev, err := readEvent(cmd.InOrStdin(), path)
	if err != nil {
		_ = formatter.Error(ErrCodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read event", err)
	}

	e, err := openEnv(ctx, opts)
	if err != nil {
		return err
	}
	defer e.Close()

	formatter.VerboseLog("applying %d record(s) to %s master", len(ev.Records), e.cfg.Master.Driver)
	res, err := e.processor().Apply(ctx, ev.Records)
	if err != nil {
		var pf *replication.PartialFailure
		if errors.As(err, &pf) {
			_ = formatter.Error(ErrCodeReplication, pf.Error(), res)
			return WrapExitError(ExitFailure, "some records failed", err)
		}
		return WrapExitError(ExitFailure, "apply failed", err)
	}

	return formatter.Success(res)
}

func readEvent(stdin io.Reader, path string) (stream.Event, error) {
	if path == "-" {
		return stream.Decode(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return stream.Event{}, err
	}
	defer f.Close()
	return stream.Decode(f)
}
