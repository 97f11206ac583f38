package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/visionally/internal/app"
	"github.com/MrWong99/visionally/internal/config"
)

func newRunCmd(levelFlag *string) *cobra.Command {
	var (
		configPath string
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the assistant until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssistant(cmd.Context(), configPath, watch, *levelFlag == "")
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the log level and scan toggle when the config file changes")
	return cmd
}

func runAssistant(ctx context.Context, configPath string, watch, useConfigLevel bool) error {
	cfg, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}
	if useConfigLevel {
		logLevel.Set(slogLevel(cfg.Server.LogLevel))
	}

	slog.Info("visionally starting",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"capture", cfg.Capture.Source,
		"color_vision", cfg.Assistant.ColorVision,
		"scan", cfg.Assistant.Scan.Enabled,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()

	if watch {
		w, err := config.NewWatcher(configPath, func(_, _ *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged && useConfigLevel {
				logLevel.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			application.ApplyConfig(d)
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(runCtx) })
	}

	g.Go(func() error {
		// The watcher stops once the assistant does.
		defer cancelRun()
		err := application.Run(runCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("stopping", "status", application.Sessions().Status().Label())
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}
