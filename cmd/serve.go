package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-hub/internal/monitoring"
	"github.com/sells-group/provider-hub/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		// Alerting runs only when a webhook is configured.
		if cfg.Alerts.WebhookURL != "" {
			alertCfg := monitoring.AlerterConfig{
				WebhookURL:               cfg.Alerts.WebhookURL,
				ExhaustionRateThreshold:  cfg.Alerts.ExhaustionRateThreshold,
				ProviderFailureThreshold: int64(cfg.Alerts.ProviderFailureThreshold),
				CheckIntervalSecs:        cfg.Alerts.CheckIntervalSecs,
			}
			checker := monitoring.NewChecker(env.Metrics, monitoring.NewAlerter(alertCfg), alertCfg)
			go checker.Run(ctx)
			zap.L().Info("alert checker started", zap.String("webhook", cfg.Alerts.WebhookURL))
		}

		srv := server.New(port, server.Deps{
			Store:      env.Store,
			Registry:   env.Registry,
			Mappings:   env.Mappings,
			Syncer:     env.Syncer,
			Dispatcher: env.Dispatcher,
			Invokers:   env.Invokers,
			Metrics:    env.Metrics,
		})
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
