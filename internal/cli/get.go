package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/pos/internal/order"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Master bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <order-id>",
		Short: "Print an order",
		Long: `Print an order from the store's table, or with --master from the
master table. Text output is the order's canonical JSON.

Example:
  pos get A1
  pos get A1 --master --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Master, "master", false, "read from the master table")

	return cmd
}

func runGet(cmd *cobra.Command, opts *GetOptions, orderID string) error {
	ctx := commandContext(cmd.Context)

	e, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	var rec order.Record
	if opts.Master {
		rec, err = e.master.Get(ctx, orderID)
	} else {
		rec, err = e.store.GetOrder(ctx, orderID)
	}
	if err != nil {
		if order.IsNotFound(err) {
			_ = formatter.Error(ErrCodeNotFound, "order not found", map[string]string{"order_id": orderID})
			return WrapExitError(ExitFailure, "order not found", err)
		}
		_ = formatter.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read order", err)
	}

	if opts.Format == "json" {
		return formatter.Success(rec)
	}
	out, err := rec.Canonical()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode order", err)
	}
	return formatter.Success(string(out))
}
