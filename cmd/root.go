package cmd

import (
	"fmt"
	"os"

	"tellusnode/internal/cloud"
	"tellusnode/internal/config"
	"tellusnode/internal/provisioning"
	"tellusnode/internal/registry"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tellusnode",
	Short: "Tellus node plugin for provisioning virtual machines",
	Long: `tellusnode provisions, inspects, and tears down virtual machines on a
compute provider on behalf of the Tellus orchestrator. Provider credentials
are read from the environment (OpenStack RC variables for the default
provider) or from a tellusnode.yaml config file.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildController assembles the registry store, provider, and controller
// from configuration. The caller owns the returned store and must close it.
func buildController(cfg *config.Config) (*provisioning.Controller, registry.Store, error) {
	var store registry.Store
	if len(cfg.EtcdEndpoints) > 0 {
		etcdStore, err := registry.NewEtcdStore(cfg.EtcdEndpoints)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create registry store: %w", err)
		}
		store = etcdStore
	} else {
		store = registry.NewMemoryStore()
	}

	provider, err := cloud.NewProvider(cfg)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}

	controller := provisioning.NewController(store, provider, provisioning.Options{
		ImageName:   cfg.ImageName,
		NamePrefix:  cfg.NamePrefix,
		NetworkName: cfg.ProjectName() + "-network",
	})
	return controller, store, nil
}
