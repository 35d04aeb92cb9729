package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// ProviderType identifies the compute provider backing the plugin.
type ProviderType string

const (
	ProviderOpenStack    ProviderType = "openstack"
	ProviderDigitalOcean ProviderType = "digitalocean"
	ProviderAWS          ProviderType = "aws"
)

// OpenStackConfig carries the OpenStack RC file parameters.
type OpenStackConfig struct {
	AuthURL       string `yaml:"auth_url"`
	Region        string `yaml:"region"`
	ProjectName   string `yaml:"project_name"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	UserDomain    string `yaml:"user_domain"`
	ProjectDomain string `yaml:"project_domain"`
}

// DigitalOceanConfig carries DigitalOcean API parameters.
type DigitalOceanConfig struct {
	Token  string `yaml:"token"`
	Region string `yaml:"region"`
}

// AWSConfig carries AWS API parameters.
type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// ServerConfig carries the HTTP listener parameters.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config contains application configuration
type Config struct {
	// Compute provider selection and credentials
	Provider     ProviderType        `yaml:"provider"`
	OpenStack    *OpenStackConfig    `yaml:"openstack"`
	DigitalOcean *DigitalOceanConfig `yaml:"digitalocean"`
	AWS          *AWSConfig          `yaml:"aws"`

	// Name of the boot image, e.g. "Ubuntu 24.04"
	ImageName string `yaml:"image_name"`

	// Prefix for provider-side server and keypair names
	NamePrefix string `yaml:"name_prefix"`

	// Optional etcd endpoints for the persistent configuration registry.
	// Empty means the in-memory registry, which does not survive restarts.
	EtcdEndpoints []string `yaml:"etcd_endpoints"`

	// HTTP server settings
	Server ServerConfig `yaml:"server"`

	// Max number of parallel deletions during an orphan sweep
	SweepWorkers int `yaml:"sweep_workers"`
}

// Load loads configuration from the YAML file named by CONFIG_PATH (default
// tellusnode.yaml) and applies environment overrides on top. The OS_*
// variables follow the OpenStack RC file naming so an unmodified RC file can
// be sourced before starting the plugin.
func Load() (*Config, error) {
	config := &Config{
		Provider:     ProviderOpenStack,
		ImageName:    "Ubuntu 24.04",
		NamePrefix:   "tellus-vm-",
		Server:       ServerConfig{Addr: ":8080"},
		SweepWorkers: 5,
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "tellusnode.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PROVIDER"); v != "" {
		config.Provider = ProviderType(v)
	}
	if v := os.Getenv("IMAGE_NAME"); v != "" {
		config.ImageName = v
	}
	if v := os.Getenv("NAME_PREFIX"); v != "" {
		config.NamePrefix = v
	}
	if v := os.Getenv("ETCD_ENDPOINTS"); v != "" {
		config.EtcdEndpoints = strings.Split(v, ",")
	}

	if config.Provider == ProviderOpenStack {
		if config.OpenStack == nil {
			config.OpenStack = &OpenStackConfig{}
		}
		overrideString(&config.OpenStack.AuthURL, "OS_AUTH_URL")
		overrideString(&config.OpenStack.Region, "OS_REGION_NAME")
		overrideString(&config.OpenStack.ProjectName, "OS_PROJECT_NAME")
		overrideString(&config.OpenStack.Username, "OS_USERNAME")
		overrideString(&config.OpenStack.Password, "OS_PASSWORD")
		overrideString(&config.OpenStack.UserDomain, "OS_USER_DOMAIN_NAME")
		overrideString(&config.OpenStack.ProjectDomain, "OS_PROJECT_DOMAIN_ID")
	}

	if config.Provider == ProviderDigitalOcean {
		if config.DigitalOcean == nil {
			config.DigitalOcean = &DigitalOceanConfig{}
		}
		overrideString(&config.DigitalOcean.Token, "DO_TOKEN")
		overrideString(&config.DigitalOcean.Region, "DO_REGION")
	}

	if config.Provider == ProviderAWS {
		if config.AWS == nil {
			config.AWS = &AWSConfig{}
		}
		overrideString(&config.AWS.Region, "AWS_REGION")
		overrideString(&config.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
		overrideString(&config.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	}

	// Expand ${VAR} references left in string fields loaded from YAML
	if config.OpenStack != nil {
		config.OpenStack.AuthURL = os.ExpandEnv(config.OpenStack.AuthURL)
		config.OpenStack.Password = os.ExpandEnv(config.OpenStack.Password)
	}
	if config.DigitalOcean != nil {
		config.DigitalOcean.Token = os.ExpandEnv(config.DigitalOcean.Token)
	}
	if config.AWS != nil {
		config.AWS.SecretAccessKey = os.ExpandEnv(config.AWS.SecretAccessKey)
	}
	config.ImageName = os.ExpandEnv(config.ImageName)
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderOpenStack:
		if c.OpenStack == nil || c.OpenStack.AuthURL == "" {
			return fmt.Errorf("OpenStack auth URL is required (set openstack.auth_url in config file or OS_AUTH_URL environment variable)")
		}
		if c.OpenStack.Username == "" || c.OpenStack.Password == "" {
			return fmt.Errorf("OpenStack credentials are required (set OS_USERNAME and OS_PASSWORD)")
		}
		if c.OpenStack.ProjectName == "" {
			return fmt.Errorf("OpenStack project name is required (set OS_PROJECT_NAME)")
		}
	case ProviderDigitalOcean:
		if c.DigitalOcean == nil || c.DigitalOcean.Token == "" {
			return fmt.Errorf("DigitalOcean token is required (set digitalocean.token in config file or DO_TOKEN environment variable)")
		}
	case ProviderAWS:
		if c.AWS == nil || c.AWS.Region == "" {
			return fmt.Errorf("AWS region is required (set aws.region in config file or AWS_REGION environment variable)")
		}
	default:
		return fmt.Errorf("unsupported provider type: %s", c.Provider)
	}
	return nil
}

// ProjectName returns the identifier the provider-side network name is
// derived from. Only OpenStack has projects; the other providers fall back
// to their region.
func (c *Config) ProjectName() string {
	switch c.Provider {
	case ProviderOpenStack:
		if c.OpenStack != nil {
			return c.OpenStack.ProjectName
		}
	case ProviderDigitalOcean:
		if c.DigitalOcean != nil {
			return c.DigitalOcean.Region
		}
	case ProviderAWS:
		if c.AWS != nil {
			return c.AWS.Region
		}
	}
	return ""
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
