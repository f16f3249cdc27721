package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/crypto"
	"github.com/AntoineMrtl/oracle-swap-back/internal/journal"
	"github.com/AntoineMrtl/oracle-swap-back/internal/metrics"
	"github.com/AntoineMrtl/oracle-swap-back/internal/pricesvc"
	"github.com/AntoineMrtl/oracle-swap-back/internal/publisher"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "oracleswap.toml"

// DevPublisherSeed is the default [publisher] seed. Its key is public knowledge.
const DevPublisherSeed = "oracleswap/dev"

// Config represents the complete oracleswap configuration
type Config struct {
	// 1. Pool assets
	Pool PoolConfig `toml:"pool" mapstructure:"pool"`

	// 2. Oracle gateway
	Oracle OracleConfig `toml:"oracle" mapstructure:"oracle"`

	// 3. Off-chain price service and local publisher
	PriceService PriceServiceConfig `toml:"price_service" mapstructure:"price_service"`
	Publisher    PublisherConfig    `toml:"publisher" mapstructure:"publisher"`

	// 4. Persistence
	Storage StorageConfig `toml:"storage" mapstructure:"storage"`
	Journal JournalConfig `toml:"journal" mapstructure:"journal"`

	// 5. Surfaces
	RPC     RPCConfig      `toml:"rpc" mapstructure:"rpc"`
	Metrics metrics.Config `toml:"metrics" mapstructure:"metrics"`
	Log     LogConfig      `toml:"log" mapstructure:"log"`

	// Internal fields for configuration management
	configPath string `toml:"-" mapstructure:"-"`
}

// AssetConfig describes one pool token
type AssetConfig struct {
	Symbol   string `toml:"symbol" mapstructure:"symbol"`
	Decimals uint8  `toml:"decimals" mapstructure:"decimals"`
	// Feed is the 32-byte hex price feed id
	Feed string `toml:"feed" mapstructure:"feed"`
}

// PoolConfig holds the two pool assets
type PoolConfig struct {
	AssetA AssetConfig `toml:"asset_a" mapstructure:"asset_a"`
	AssetB AssetConfig `toml:"asset_b" mapstructure:"asset_b"`
}

// OracleConfig holds the price gateway settings
type OracleConfig struct {
	Window        time.Duration `toml:"window" mapstructure:"window"`
	MaxFutureSkew time.Duration `toml:"max_future_skew" mapstructure:"max_future_skew"`
	// FeePerUpdate is in base units
	FeePerUpdate      string   `toml:"fee_per_update" mapstructure:"fee_per_update"`
	TrustedPublishers []string `toml:"trusted_publishers" mapstructure:"trusted_publishers"`
	// TrustLocalPublisher adds the [publisher] key to the trusted set
	TrustLocalPublisher bool `toml:"trust_local_publisher" mapstructure:"trust_local_publisher"`
	VerifyCacheSize     int  `toml:"verify_cache_size" mapstructure:"verify_cache_size"`
}

// PriceServiceConfig holds the price service client settings
type PriceServiceConfig struct {
	pricesvc.Config `mapstructure:",squash"`

	// Stream enables WebSocket ingestion in serve
	Stream        bool          `toml:"stream" mapstructure:"stream"`
	RetryInterval time.Duration `toml:"retry_interval" mapstructure:"retry_interval"`
}

// PublisherConfig holds the local price service simulator settings
type PublisherConfig struct {
	// Seed derives the signing key. Key, if set, takes precedence.
	Seed     string        `toml:"seed" mapstructure:"seed"`
	Key      string        `toml:"key" mapstructure:"key"`
	Bind     string        `toml:"bind" mapstructure:"bind"`
	Port     int           `toml:"port" mapstructure:"port"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	Expo     int32         `toml:"expo" mapstructure:"expo"`
	// Prices maps an asset symbol to a decimal price, e.g. btc = "20000.00"
	Prices map[string]string `toml:"prices" mapstructure:"prices"`
}

// StorageConfig holds the key-value backend settings
type StorageConfig struct {
	Backend     string `toml:"backend" mapstructure:"backend"`
	Path        string `toml:"path" mapstructure:"path"`
	Compression string `toml:"compression" mapstructure:"compression"`
}

// JournalConfig holds the operation journal settings
type JournalConfig struct {
	Enabled        bool `toml:"enabled" mapstructure:"enabled"`
	journal.Config `mapstructure:",squash"`
}

// RPCConfig holds the JSON-RPC server settings
type RPCConfig struct {
	Bind        string        `toml:"bind" mapstructure:"bind"`
	Port        int           `toml:"port" mapstructure:"port"`
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout"`
	MaxBodySize int64         `toml:"max_body_size" mapstructure:"max_body_size"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format"`
}

// GetConfigPath returns the path of the loaded configuration file, if any
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// ResolvePath resolves p relative to the directory of the configuration file
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.configPath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.configPath), p)
}

// RPCAddress returns the RPC listen address
func (c *Config) RPCAddress() string {
	return fmt.Sprintf("%s:%d", c.RPC.Bind, c.RPC.Port)
}

// MetricsAddress returns the metrics listen address
func (c *Config) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Metrics.Bind, c.Metrics.Port)
}

// PublisherAddress returns the local price service listen address
func (c *Config) PublisherAddress() string {
	return fmt.Sprintf("%s:%d", c.Publisher.Bind, c.Publisher.Port)
}

// Asset converts an asset section
func (a AssetConfig) Asset() (swap.Asset, error) {
	feed, err := oracle.ParseFeedID(a.Feed)
	if err != nil {
		return swap.Asset{}, err
	}
	return swap.Asset{Symbol: a.Symbol, Decimals: a.Decimals, Feed: feed}, nil
}

// Assets returns the pool assets
func (c *Config) Assets() ([2]swap.Asset, error) {
	a, err := c.Pool.AssetA.Asset()
	if err != nil {
		return [2]swap.Asset{}, fmt.Errorf("pool.asset_a: %w", err)
	}
	b, err := c.Pool.AssetB.Asset()
	if err != nil {
		return [2]swap.Asset{}, fmt.Errorf("pool.asset_b: %w", err)
	}
	return [2]swap.Asset{a, b}, nil
}

// LocalPublisher returns the signing key of the local price service
func (c *Config) LocalPublisher() (*publisher.Publisher, error) {
	if c.Publisher.Key != "" {
		return publisher.FromHex(c.Publisher.Key)
	}
	if c.Publisher.Seed == "" {
		return nil, fmt.Errorf("publisher: seed or key is required")
	}
	return publisher.FromSeed(c.Publisher.Seed), nil
}

// Warnings lists settings that are only safe for local development.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Oracle.TrustLocalPublisher && c.Publisher.Key == "" && c.Publisher.Seed == DevPublisherSeed {
		warnings = append(warnings, "oracle.trust_local_publisher trusts the built-in development seed, anyone can sign accepted prices")
	}
	if !isLoopback(c.RPC.Bind) {
		warnings = append(warnings, fmt.Sprintf("rpc.bind %q is not a loopback address, the RPC is unauthenticated and moves liquidity for any named provider", c.RPC.Bind))
	}
	return warnings
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// TrustedPublishers returns the parsed trusted publisher set
func (c *Config) TrustedPublishers() ([]crypto.PublisherID, error) {
	ids := make([]crypto.PublisherID, 0, len(c.Oracle.TrustedPublishers)+1)
	for _, s := range c.Oracle.TrustedPublishers {
		id, err := crypto.ParsePublisherID(s)
		if err != nil {
			return nil, fmt.Errorf("oracle.trusted_publishers: %w", err)
		}
		ids = append(ids, id)
	}
	if c.Oracle.TrustLocalPublisher {
		pub, err := c.LocalPublisher()
		if err != nil {
			return nil, fmt.Errorf("oracle.trust_local_publisher: %w", err)
		}
		ids = append(ids, pub.ID())
	}
	return ids, nil
}

// SwapConfig builds the pool configuration
func (c *Config) SwapConfig() (swap.Config, error) {
	assets, err := c.Assets()
	if err != nil {
		return swap.Config{}, err
	}
	fee, err := amount.Parse(c.Oracle.FeePerUpdate)
	if err != nil {
		return swap.Config{}, fmt.Errorf("oracle.fee_per_update: %w", err)
	}
	trusted, err := c.TrustedPublishers()
	if err != nil {
		return swap.Config{}, err
	}
	return swap.Config{
		Assets: assets,
		Oracle: oracle.Config{
			Feeds:             []oracle.FeedID{assets[0].Feed, assets[1].Feed},
			Window:            c.Oracle.Window,
			MaxFutureSkew:     c.Oracle.MaxFutureSkew,
			FeePerUpdate:      fee,
			TrustedPublishers: trusted,
			VerifyCacheSize:   c.Oracle.VerifyCacheSize,
		},
	}, nil
}

// PublisherPrice returns the configured simulator price for symbol
func (c *Config) PublisherPrice(symbol string) (string, bool) {
	for k, v := range c.Publisher.Prices {
		if strings.EqualFold(k, symbol) {
			return v, true
		}
	}
	return "", false
}
