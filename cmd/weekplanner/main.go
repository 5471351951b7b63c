package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"weekplanner/internal/config"
	appLog "weekplanner/internal/log"
)

var version = "0.1.0-dev"

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "weekplanner",
	Short:         "Family week planner: calendars, tasks and meals on one display",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	def := os.Getenv("WEEKPLANNER_CONFIG")
	if def == "" {
		def = "./config.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", def, "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level regardless of config")
}

// loadConfig reads the config and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	appLog.Setup(appLog.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
