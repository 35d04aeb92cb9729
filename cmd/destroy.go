package cmd

import (
	"context"
	"fmt"
	"time"

	"tellusnode/internal/config"
	"tellusnode/internal/logging"
	"tellusnode/internal/provisioning"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var destroyOrderKey string

// destroyCmd represents the destroy command
var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down a configuration",
	Long:  `Delete the VM and keypair behind an Order Key and forget the configuration.`,
	Run: func(cmd *cobra.Command, args []string) {
		destroyConfiguration(destroyOrderKey)
	},
}

func init() {
	rootCmd.AddCommand(destroyCmd)

	destroyCmd.Flags().StringVar(&destroyOrderKey, "key", "", "Order Key (required)")
	if err := destroyCmd.MarkFlagRequired("key"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}
}

func destroyConfiguration(key string) {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger().Fatal("Failed to load configuration", zap.Error(err))
	}

	controller, store, err := buildController(cfg)
	if err != nil {
		logging.Logger().Fatal("Failed to create controller", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := controller.Destroy(ctx, key); err != nil {
		f := provisioning.AsFailure(err)
		logging.Logger().Fatal("Could not destroy configuration",
			zap.Int("code", f.Code), zap.String("error", f.Message))
	}
	fmt.Printf("Configuration destroyed. Key: %s\n", provisioning.OrderKey(key))
}
