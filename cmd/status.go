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

var statusOrderKey string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check a configuration's status",
	Long:  `Look up the VM behind an Order Key and report its normalized state and IP addresses.`,
	Run: func(cmd *cobra.Command, args []string) {
		getStatus(statusOrderKey)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusOrderKey, "key", "", "Order Key (required)")
	if err := statusCmd.MarkFlagRequired("key"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}
}

func getStatus(key string) {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger().Fatal("Failed to load configuration", zap.Error(err))
	}

	controller, store, err := buildController(cfg)
	if err != nil {
		logging.Logger().Fatal("Failed to create controller", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	status, err := controller.Status(ctx, key)
	if err != nil {
		f := provisioning.AsFailure(err)
		logging.Logger().Fatal("Could not get status",
			zap.Int("code", f.Code), zap.String("error", f.Message))
	}

	fmt.Printf("Key: %s\n", provisioning.OrderKey(key))
	fmt.Printf("Status: %s\n", status.Status)
	for _, ip := range status.IPAddresses {
		fmt.Printf("IP: %s/%s (%s)\n", ip.Value, ip.Prefix, ip.Type)
	}
	if status.Error != "" {
		fmt.Printf("Error: %s\n", status.Error)
	}
}
