package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/compression"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database"
)

// ValidateConfig performs validation on the complete configuration
func ValidateConfig(config *Config) error {
	if err := validatePool(&config.Pool); err != nil {
		return fmt.Errorf("pool config validation failed: %w", err)
	}
	if err := validateOracle(config); err != nil {
		return fmt.Errorf("oracle config validation failed: %w", err)
	}
	if err := validatePriceService(&config.PriceService); err != nil {
		return fmt.Errorf("price_service config validation failed: %w", err)
	}
	if err := validatePublisher(config); err != nil {
		return fmt.Errorf("publisher config validation failed: %w", err)
	}
	if err := validateStorage(&config.Storage); err != nil {
		return fmt.Errorf("storage config validation failed: %w", err)
	}
	if config.Journal.Enabled {
		if err := config.Journal.Config.Validate(); err != nil {
			return fmt.Errorf("journal config validation failed: %w", err)
		}
	}
	if err := validatePort(config.RPC.Port); err != nil {
		return fmt.Errorf("rpc config validation failed: %w", err)
	}
	if config.RPC.Timeout <= 0 {
		return fmt.Errorf("rpc config validation failed: timeout must be positive")
	}
	if config.Metrics.Enabled {
		if err := validatePort(config.Metrics.Port); err != nil {
			return fmt.Errorf("metrics config validation failed: %w", err)
		}
		if !strings.HasPrefix(config.Metrics.Path, "/") {
			return fmt.Errorf("metrics config validation failed: path must start with /")
		}
	}
	if err := validateLog(&config.Log); err != nil {
		return fmt.Errorf("log config validation failed: %w", err)
	}
	return nil
}

func validatePool(p *PoolConfig) error {
	a, err := p.AssetA.Asset()
	if err != nil {
		return fmt.Errorf("asset_a: %w", err)
	}
	b, err := p.AssetB.Asset()
	if err != nil {
		return fmt.Errorf("asset_b: %w", err)
	}
	if a.Symbol == "" || b.Symbol == "" {
		return errors.New("asset symbols are required")
	}
	if strings.EqualFold(a.Symbol, b.Symbol) {
		return fmt.Errorf("asset symbols must differ, both are %q", a.Symbol)
	}
	if a.Feed == b.Feed {
		return errors.New("assets must use different price feeds")
	}
	for _, d := range []uint8{a.Decimals, b.Decimals} {
		if d > amount.MaxDecimals {
			return fmt.Errorf("decimals must be at most %d, got %d", amount.MaxDecimals, d)
		}
	}
	return nil
}

func validateOracle(c *Config) error {
	o := &c.Oracle
	if o.Window <= 0 {
		return errors.New("window must be positive")
	}
	if o.MaxFutureSkew < 0 {
		return errors.New("max_future_skew must not be negative")
	}
	if _, err := amount.Parse(o.FeePerUpdate); err != nil {
		return fmt.Errorf("fee_per_update: %w", err)
	}
	if o.VerifyCacheSize <= 0 {
		return errors.New("verify_cache_size must be positive")
	}
	trusted, err := c.TrustedPublishers()
	if err != nil {
		return err
	}
	if len(trusted) == 0 {
		return errors.New("at least one trusted publisher is required")
	}
	return nil
}

func validatePriceService(p *PriceServiceConfig) error {
	u, err := url.Parse(p.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q", p.Endpoint)
	}
	if p.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if p.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}
	if p.Stream && p.RetryInterval <= 0 {
		return errors.New("retry_interval must be positive when stream is enabled")
	}
	return nil
}

func validatePublisher(c *Config) error {
	if _, err := c.LocalPublisher(); err != nil {
		return err
	}
	if err := validatePort(c.Publisher.Port); err != nil {
		return err
	}
	if c.Publisher.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	return nil
}

func validateStorage(s *StorageConfig) error {
	backend, err := database.ParseBackend(s.Backend)
	if err != nil {
		return err
	}
	s.Backend = string(backend)
	if backend != database.BackendMemory && s.Path == "" {
		return errors.New("path is required")
	}
	if _, err := compression.Get(s.Compression); err != nil {
		return err
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port number must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateLog(l *LogConfig) error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return err
	}
	var format log.Format
	return format.Set(l.Format)
}
