package cloud

import (
	"fmt"

	"tellusnode/internal/config"
)

// NewProvider creates a provider based on config type (factory pattern).
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenStack:
		if cfg.OpenStack == nil {
			return nil, fmt.Errorf("openstack config is nil")
		}
		return NewOpenStackProvider(*cfg.OpenStack), nil

	case config.ProviderDigitalOcean:
		if cfg.DigitalOcean == nil {
			return nil, fmt.Errorf("digitalocean config is nil")
		}
		return NewDOProvider(*cfg.DigitalOcean), nil

	case config.ProviderAWS:
		if cfg.AWS == nil {
			return nil, fmt.Errorf("aws config is nil")
		}
		return NewAWSProvider(*cfg.AWS), nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}
}
