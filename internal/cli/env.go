package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/pos/internal/config"
	"github.com/roach88/pos/internal/intake"
	"github.com/roach88/pos/internal/replication"
	"github.com/roach88/pos/internal/replication/amqpfeed"
	"github.com/roach88/pos/internal/store"
	"github.com/roach88/pos/internal/store/pgstore"
)

// masterBackend is what commands need from a master table.
// Implemented by *store.Master and *pgstore.Master.
type masterBackend interface {
	intake.MasterStore
	Delete(ctx context.Context, key, sequence, source string) (bool, error)
	Snapshot(ctx context.Context) ([]store.MasterRow, error)
}

// env is the opened runtime shared by commands: config, logger, the
// node's store and the master table.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	master masterBackend

	closers []func() error
}

// loadConfig reads --config (if set) over defaults and POS_* variables.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// setupLogging installs a stderr text handler as the default logger.
// --verbose forces debug level; otherwise log_level applies.
func setupLogging(opts *RootOptions, cfg config.Config) *slog.Logger {
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// openEnv loads config, configures logging and opens the store and master.
// Callers must Close the returned env.
func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: setupLogging(opts, cfg)}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, store.WithSource(cfg.Region, cfg.StoreID))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	e.store = st
	e.closers = append(e.closers, st.Close)

	if err := e.openMaster(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) openMaster(ctx context.Context) error {
	mc := e.cfg.Master
	switch {
	case mc.Driver == config.DriverPostgres:
		slog.Debug("opening postgres master")
		m, err := pgstore.Open(ctx, mc.DSN)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open master", err)
		}
		e.master = m
		e.closers = append(e.closers, func() error {
			m.Close()
			return nil
		})
	case mc.DSN != "":
		slog.Debug("opening sqlite master", "path", mc.DSN)
		ms, err := store.Open(mc.DSN)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open master", err)
		}
		e.master = ms.Master()
		e.closers = append(e.closers, ms.Close)
	default:
		e.master = e.store.Master()
	}
	return nil
}

// Close releases everything openEnv opened, in reverse order.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Error("error closing resource", "error", err)
		}
	}
	e.closers = nil
}

func (e *env) processor() *replication.Processor {
	return replication.NewProcessor(e.master,
		replication.WithKeyAttribute(e.cfg.Replication.KeyAttribute),
		replication.WithLogger(e.logger),
	)
}

func (e *env) service() *intake.Service {
	return intake.NewService(e.store, e.master,
		intake.WithRequiredFields(e.cfg.Intake.RequiredFields),
		intake.WithSource(e.store.SourceARN()),
		intake.WithLogger(e.logger),
	)
}

// sink builds the relay sink named by replication.sink. The amqp sink
// publishes batches for a separate consumer; direct applies in process.
func (e *env) sink(ctx context.Context, p *replication.Processor) (replication.Sink, error) {
	rc := e.cfg.Replication
	switch rc.Sink {
	case config.SinkAMQP:
		pub, err := amqpfeed.Dial(ctx, rc.AMQPURL, rc.Queue,
			amqpfeed.WithLogger(e.logger),
			amqpfeed.WithRedeliveries(rc.Redeliveries),
		)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect to broker", err)
		}
		e.closers = append(e.closers, pub.Close)
		return pub, nil
	case config.SinkDirect, "":
		return replication.ProcessorSink{Processor: p}, nil
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown sink %q", rc.Sink))
	}
}

func (e *env) relay(sink replication.Sink) *replication.Relay {
	rc := e.cfg.Replication
	return replication.NewRelay(e.store, e.store, sink,
		replication.WithName(rc.Name),
		replication.WithBatchSize(rc.BatchSize),
		replication.WithPollInterval(rc.Poll()),
		replication.WithRelayLogger(e.logger),
	)
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute (tests calling RunE directly).
func commandContext(ctxFn func() context.Context) context.Context {
	if ctx := ctxFn(); ctx != nil {
		return ctx
	}
	return context.Background()
}
