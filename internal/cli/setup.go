package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sensorgrid/recbatch/internal/config"
	"github.com/sensorgrid/recbatch/internal/store"
)

// setupLogging configures the default slog logger from the verbose flag.
func setupLogging(opts *RootOptions) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// openStore loads the config file and connects to the configured storage.
//
// A missing or invalid config file is a command error (exit code 2) and
// is reported before any database connection is attempted.
func openStore(opts *RootOptions) (*config.Config, *store.Store, error) {
	if opts.Config == "" {
		return nil, nil, NewExitError(ExitCommandError, "missing config file (-c/--config)")
	}
	if _, err := os.Stat(opts.Config); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "missing config file", err)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid config file", err)
	}

	driver, dsn := cfg.DSN()
	slog.Info("opening database", "driver", driver)
	st, err := store.Open(driver, dsn)
	if err != nil {
		return nil, nil, WrapExitError(ExitFailure, "failed to open database", err)
	}
	return cfg, st, nil
}

// signalContext derives a context cancelled by SIGINT/SIGTERM from the
// command's context. The returned stop func releases the handler.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	stop := func() {
		signal.Stop(sigChan)
		cancel()
	}
	return ctx, stop
}

// closeStore closes the store, logging rather than failing on error.
func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
