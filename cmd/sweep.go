package cmd

import (
	"context"
	"fmt"
	"time"

	"tellusnode/internal/config"
	"tellusnode/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	sweepDryRun  bool
	sweepWorkers int
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete orphaned VMs",
	Long: `Scan the provider for VMs carrying this node's name prefix that have no
registry entry and delete them. Orphans appear when a create fails after the
instance boots or when the in-memory registry is lost on restart.`,
	Run: func(cmd *cobra.Command, args []string) {
		sweepOrphans(sweepDryRun, sweepWorkers)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "List orphans without deleting them")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "Deletion concurrency (defaults to config)")
}

func sweepOrphans(dryRun bool, workers int) {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger().Fatal("Failed to load configuration", zap.Error(err))
	}
	if workers <= 0 {
		workers = cfg.SweepWorkers
	}

	controller, store, err := buildController(cfg)
	if err != nil {
		logging.Logger().Fatal("Failed to create controller", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	orphans, err := controller.Sweep(ctx, workers, dryRun)
	if err != nil {
		logging.Logger().Fatal("Sweep failed", zap.Error(err))
	}

	if dryRun {
		fmt.Printf("Found %d orphaned VM(s):\n", len(orphans))
	} else {
		fmt.Printf("Deleted %d orphaned VM(s):\n", len(orphans))
	}
	for _, name := range orphans {
		fmt.Printf("- %s\n", name)
	}
}
