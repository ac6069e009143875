/*
Package config holds the process-wide configuration of the ThesisHub
client: RPC endpoints, the master contract address and the credentials of
the external services. Values come from a YAML file, overridable from the
environment; a missing required credential surfaces as ErrNotConfigured at
validation, naming the value, never as a crash at the point of use.
*/
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/thesishub/thesishub-go/pkg/util"
	"gopkg.in/yaml.v3"
)

// ErrNotConfigured is returned when a required configuration value is
// absent.
var ErrNotConfigured = errors.New("required configuration missing")

// DefaultChainName is the network access conditions are evaluated on.
const DefaultChainName = "Sepolia"

type (
	// Config is the top level configuration.
	Config struct {
		RPC      RPC      `yaml:"rpc"`
		Hub      Hub      `yaml:"hub"`
		Storage  Storage  `yaml:"storage"`
		Describe Describe `yaml:"describe"`
	}

	// RPC configures the chain endpoint.
	RPC struct {
		// Endpoint is the HTTP JSON-RPC URL of the wallet provider.
		Endpoint string `yaml:"endpoint"`
		// WSEndpoint optionally enables subscription-based confirmation
		// awaiting.
		WSEndpoint string `yaml:"ws_endpoint"`
	}

	// Hub configures the master contract binding.
	Hub struct {
		MasterAddress util.Address `yaml:"master_address"`
		ChainName     string       `yaml:"chain_name"`
	}

	// Storage configures the encrypted-storage client.
	Storage struct {
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
		Gateway  string `yaml:"gateway"`
		// PrivilegedKey is the hex-encoded service signing key used for
		// share and access-condition operations.
		PrivilegedKey string `yaml:"privileged_key"`
	}

	// Describe configures the description-generation client.
	Describe struct {
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
		Model    string `yaml:"model"`
	}
)

// Environment variable names recognized by ApplyEnvironment.
const (
	EnvRPCEndpoint    = "THESISHUB_RPC_ENDPOINT"
	EnvWSEndpoint     = "THESISHUB_WS_ENDPOINT"
	EnvMasterAddress  = "THESISHUB_MASTER_ADDRESS"
	EnvStorageAPIKey  = "THESISHUB_STORAGE_API_KEY"
	EnvStorageURL     = "THESISHUB_STORAGE_ENDPOINT"
	EnvStorageGateway = "THESISHUB_STORAGE_GATEWAY"
	EnvPrivilegedKey  = "THESISHUB_PRIVILEGED_KEY"
	EnvDescribeAPIKey = "THESISHUB_DESCRIBE_API_KEY"
	EnvDescribeURL    = "THESISHUB_DESCRIBE_ENDPOINT"
)

// Load attempts to load the config from the given path and apply
// environment overrides on top of it.
func Load(path string) (Config, error) {
	configData, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	config := Config{
		Hub: Hub{ChainName: DefaultChainName},
	}
	if err = yaml.Unmarshal(configData, &config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err = config.ApplyEnvironment(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// ApplyEnvironment overrides config values with the recognized environment
// variables where set.
func (c *Config) ApplyEnvironment() error {
	setStr(&c.RPC.Endpoint, EnvRPCEndpoint)
	setStr(&c.RPC.WSEndpoint, EnvWSEndpoint)
	setStr(&c.Hub.ChainName, "THESISHUB_CHAIN_NAME")
	setStr(&c.Storage.APIKey, EnvStorageAPIKey)
	setStr(&c.Storage.Endpoint, EnvStorageURL)
	setStr(&c.Storage.Gateway, EnvStorageGateway)
	setStr(&c.Storage.PrivilegedKey, EnvPrivilegedKey)
	setStr(&c.Describe.APIKey, EnvDescribeAPIKey)
	setStr(&c.Describe.Endpoint, EnvDescribeURL)
	if v, ok := os.LookupEnv(EnvMasterAddress); ok {
		addr, err := util.AddressDecodeString(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMasterAddress, err)
		}
		c.Hub.MasterAddress = addr
	}
	return nil
}

// Validate checks that everything a working client cannot run without is
// present. Service credentials (storage API key, privileged key, describe
// API key) are deliberately not checked here, their absence only disables
// the operations needing them.
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("%w: rpc.endpoint (%s)", ErrNotConfigured, EnvRPCEndpoint)
	}
	if c.Hub.MasterAddress.IsZero() {
		return fmt.Errorf("%w: hub.master_address (%s)", ErrNotConfigured, EnvMasterAddress)
	}
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("%w: storage.endpoint (%s)", ErrNotConfigured, EnvStorageURL)
	}
	return nil
}

func setStr(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}
