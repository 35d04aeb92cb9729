package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"tellusnode/internal/config"
	"tellusnode/internal/logging"
	"tellusnode/internal/provisioning"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var createOfferingFile string

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create [offering file]",
	Short: "Provision a VM from an offering file",
	Long:  `Read a JSON service offering and provision the VM it describes directly, without going through the API server.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if createOfferingFile == "" {
			if len(args) > 0 {
				createOfferingFile = args[0]
			} else {
				logging.Logger().Fatal("Offering file is required")
			}
		}

		createConfiguration(createOfferingFile)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createOfferingFile, "offering", "f", "", "Path to offering JSON file")
}

func createConfiguration(offeringFile string) {
	content, err := os.ReadFile(offeringFile)
	if err != nil {
		logging.Logger().Fatal("Failed to read offering file", zap.Error(err))
	}

	var offering provisioning.Offering
	if err := json.Unmarshal(content, &offering); err != nil {
		logging.Logger().Fatal("Failed to parse offering file", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Logger().Fatal("Failed to load configuration", zap.Error(err))
	}

	controller, store, err := buildController(cfg)
	if err != nil {
		logging.Logger().Fatal("Failed to create controller", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := controller.Create(ctx, offering); err != nil {
		f := provisioning.AsFailure(err)
		logging.Logger().Fatal("Could not create configuration",
			zap.Int("code", f.Code), zap.String("error", f.Message))
	}
	fmt.Printf("Configuration created. Key: %s\n", provisioning.OrderKey(offering.OrderID))
}
