package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pos/internal/httpapi"
	"github.com/roach88/pos/internal/replication"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen    string
	NoRelay   bool
	NoReplAPI bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the order HTTP service",
		Long: `Run the order HTTP service for one store node.

The service accepts orders on POST /order (strict) and POST /submit_order
(permissive, when intake.raw_enabled is set). With replication enabled a
relay tails the store's change feed and delivers it to the master table,
either in process or through the configured AMQP queue.

Example:
  pos serve --config ./pos.yaml
  pos serve --listen :9090 --no-relay`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.NoRelay, "no-relay", false, "do not start the feed relay")
	cmd.Flags().BoolVar(&opts.NoReplAPI, "no-replication-api", false, "do not mount POST /replication/events")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	parentCtx := commandContext(cmd.Context)
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	listen := e.cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	proc := e.processor()
	apiOpts := httpapi.Options{
		RawEnabled: e.cfg.Intake.RawEnabled,
		Health:     e.store,
		Logger:     e.logger,
	}
	if !opts.NoReplAPI {
		apiOpts.Replication = replication.NewHandler(proc)
	}

	relayDone := make(chan struct{})
	if e.cfg.Replication.Enabled && !opts.NoRelay {
		sink, err := e.sink(ctx, proc)
		if err != nil {
			return err
		}
		relay := e.relay(sink)
		go func() {
			defer close(relayDone)
			if err := relay.Run(ctx); err != nil {
				slog.Error("relay stopped", "error", err)
			}
		}()
	} else {
		close(relayDone)
	}

	server := &http.Server{
		Addr:              listen,
		Handler:           httpapi.NewHandler(e.service(), apiOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	slog.Info("order service listening", "addr", listen, "store", e.store.SourceARN(), "master", e.cfg.Master.Driver)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", listen)

	var serveErr error
	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = WrapExitError(ExitCommandError, "server error", err)
		}
		stop()
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server shutdown error", "error", err)
	}
	<-relayDone

	slog.Info("order service stopped")
	return serveErr
}
