// Package cmd holds the mail-merge command line: the root command sends the
// batch, subcommands test, validate, reset and maintain the local stores.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mail-merge/config"
	"github.com/dhcgn/mail-merge/runner"
)

var rootCmd = &cobra.Command{
	Use:           "mail-merge",
	Short:         "Send a personalized email to every contact in a table",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			a.logger.Info("starting mail-merge",
				"store", a.cfg.Store,
				"gateway", a.cfg.Gateway,
				"dryRun", a.cfg.DryRun,
			)

			summary, err := a.runner().Run(ctx)
			var abort *runner.AbortError
			switch {
			case errors.As(err, &abort):
				return abort
			case errors.Is(err, runner.ErrCancelled):
				pterm.Warning.Println("Cancelled, nothing was sent.")
				return nil
			case err != nil:
				return err
			}
			if a.cfg.DryRun {
				pterm.Info.Printf("Dry run: %d messages written to %s\n", summary.Successes(), a.cfg.Mbox.OutboxPath)
			}
			return nil
		})
	},
}

// Execute runs the command line.
func Execute() error {
	if err := config.RegisterFlags(rootCmd); err != nil {
		return fmt.Errorf("failed to register CLI flags: %w", err)
	}
	return rootCmd.Execute()
}

// withApp loads the configuration, sets up logging and the backends, and
// runs fn with a context cancelled on interrupt.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return err
	}

	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = cleanup()
	}()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("mail-merge-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
