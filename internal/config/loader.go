package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. ORACLESWAP_RPC_PORT.
const EnvPrefix = "ORACLESWAP"

// LoadConfig loads configuration from multiple sources in priority order:
// 1. Default values
// 2. Configuration file (oracleswap.toml)
// 3. Environment variables (ORACLESWAP_ prefix)
//
// An empty path falls back to oracleswap.toml in the working directory, and
// to defaults alone when that file does not exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults first
	setDefaults(v)

	// 2. Load main configuration file
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	loaded, err := loadMainConfig(v, path, explicit)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config: %w", err)
	}

	// 3. Set up environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Unmarshal into struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if loaded {
		config.configPath = path
	}

	// 5. Validate the complete configuration
	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadMainConfig reads the configuration file. A missing file is only an
// error when the path was given explicitly.
func loadMainConfig(v *viper.Viper, configPath string, explicit bool) (bool, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if explicit {
			return false, fmt.Errorf("config file does not exist: %s", configPath)
		}
		return false, nil
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return false, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return true, nil
}

// SaveExampleConfig writes an example configuration file
func SaveExampleConfig(configPath string) error {
	v := viper.New()
	setDefaults(v)

	for key, value := range generateExampleConfig() {
		v.Set(key, value)
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}
	return nil
}

// generateExampleConfig generates example configuration values
func generateExampleConfig() map[string]interface{} {
	return map[string]interface{}{
		"oracle.trusted_publishers":    []string{},
		"oracle.trust_local_publisher": true,
		"storage.backend":              "pebble",
		"storage.path":                 "/var/lib/oracleswap",
		"journal.database":             "/var/lib/oracleswap/journal.db",
		"log.format":                   "json",
	}
}
