package cmd

import (
	"tellusnode/internal/config"
	"tellusnode/internal/logging"
	"tellusnode/internal/server"
	"tellusnode/internal/telemetry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the configuration API server",
	Long:  `Start the HTTP server the orchestrator calls to create, inspect, and destroy VM configurations.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			logging.Logger().Fatal("Failed to load configuration", zap.Error(err))
		}

		logging.Logger().Info("Configuration loaded",
			zap.String("provider", string(cfg.Provider)),
			zap.String("image", cfg.ImageName),
			zap.String("addr", cfg.Server.Addr),
			zap.Strings("etcd_endpoints", cfg.EtcdEndpoints),
		)

		controller, store, err := buildController(cfg)
		if err != nil {
			logging.Logger().Fatal("Failed to create controller", zap.Error(err))
		}
		defer store.Close()

		srv := server.NewServer(controller, telemetry.NewMetrics(), cfg.Server.Addr)
		if err := srv.Start(); err != nil {
			logging.Logger().Fatal("Server failed", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
