// Package cli provides API client helper functions.
package cli

import (
	"fmt"

	"github.com/sharedrop/sharedrop/internal/api"
	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/http"
)

// loadConfig reads the config file and applies overrides.
// Priority: flags > environment > config file > defaults
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithEnv()
	cfg.MergeWithFlags(serverURL, deviceName, 0)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if http.NeedsProxyPassword(cfg) {
		password, err := promptPassword(fmt.Sprintf("Proxy password for %s@%s: ", cfg.ProxyUser, cfg.ProxyHost))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = password
	}

	return cfg, nil
}

// getAPIClient loads configuration and creates an API client.
// This is the standard way to get an API client in CLI commands.
func getAPIClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client, err := api.NewClient(cfg, GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return client, nil
}

// resolvedConfigPath returns the --config value or the default location.
func resolvedConfigPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// describeAPIError rewords an API failure for one file the way the user
// thinks about it: a missing file, an unreachable server, a server fault.
func describeAPIError(fileID string, err error) error {
	switch {
	case err == nil:
		return nil
	case api.IsNotFound(err):
		return fmt.Errorf("file %s not found", fileID)
	case api.IsTransportError(err):
		return fmt.Errorf("server unreachable: %w", err)
	case api.IsStatusError(err) && api.StatusCode(err) >= 500:
		return fmt.Errorf("server error for %s: %w", fileID, err)
	}
	return err
}
