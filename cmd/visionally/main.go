// Command visionally is the entry point for the VisionAlly assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/visionally/internal/config"
)

func main() {
	os.Exit(submain())
}

func submain() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("visionally command failed", "err", err)
		return 1
	}
	return 0
}

// logLevel is shared by every command so config reloads can change it.
var logLevel = new(slog.LevelVar)

func newRootCmd() *cobra.Command {
	var level string
	root := &cobra.Command{
		Use:           "visionally",
		Short:         "Real-time camera and voice assistant for blind and color-blind users",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})))
			if level != "" {
				lv := config.LogLevel(level)
				if !lv.IsValid() {
					return fmt.Errorf("invalid --log-level %q; valid values: debug, info, warn, error", level)
				}
				logLevel.Set(slogLevel(lv))
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&level, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(&level))
	root.AddCommand(newQueryCmd())
	return root
}

// loadConfig reads path. When optional, a missing file yields the defaults.
func loadConfig(path string, optional bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if optional && errors.Is(err, os.ErrNotExist) {
		return config.LoadFromReader(strings.NewReader(""))
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return nil, err
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
