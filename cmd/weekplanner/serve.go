package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/orchestrator"
	"weekplanner/internal/schedule"
	"weekplanner/internal/web"
)

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, push stream and background refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// CLI --listen overrides config file listen if provided.
		if listenFlag != "" {
			cfg.Listen = listenFlag
		}

		appLog.Info("weekplanner starting", "version", version)
		appLog.Info("effective config",
			"listen", cfg.Listen,
			"timezone", cfg.Timezone,
			"mock", cfg.MockMode,
			"calendars", len(cfg.Calendars),
			"tasks", cfg.Tasks.Enabled(),
			"push", cfg.Push.Enabled,
			"poll", cfg.Poll.Interval,
			"meals", cfg.Data.MealsPath,
		)

		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}

		runner := schedule.New(a.clock, cfg.Location())
		err = a.orch.Start(ctx, orchestrator.Background{
			Runner:          runner,
			PollInterval:    cfg.Poll.Interval,
			RolloverCron:    cfg.Meals.RolloverCron,
			Watch:           a.watch,
			RenewalInterval: cfg.Push.RenewalInterval,
			Documents:       a.store,
		})
		if err != nil {
			return err
		}
		defer runner.Stop()

		// Make sure the displayed weeks exist before the first client asks.
		a.orch.Rollover(ctx)

		srv := web.NewServer(cfg, a.orch, a.hub, a.mocks...)
		err = srv.ListenAndServe(ctx)

		if a.watch != nil {
			stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			a.watch.StopAll(stopCtx)
			stop()
		}
		appLog.Info("weekplanner exiting")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "HTTP listen address (overrides config if set)")
	rootCmd.AddCommand(serveCmd)
}
