package config

import (
	"github.com/spf13/viper"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
)

// setDefaults sets every default value. Each key must have a default for
// ORACLESWAP_ environment overrides to be picked up.
func setDefaults(v *viper.Viper) {
	// 1. Pool defaults: BTC/USD against ETH/USD
	v.SetDefault("pool.asset_a.symbol", "BTC")
	v.SetDefault("pool.asset_a.decimals", 18)
	v.SetDefault("pool.asset_a.feed", oracle.FeedBTCUSD.String())
	v.SetDefault("pool.asset_b.symbol", "ETH")
	v.SetDefault("pool.asset_b.decimals", 18)
	v.SetDefault("pool.asset_b.feed", oracle.FeedETHUSD.String())

	// 2. Oracle defaults
	v.SetDefault("oracle.window", oracle.DefaultWindow)
	v.SetDefault("oracle.max_future_skew", oracle.DefaultMaxFutureSkew)
	v.SetDefault("oracle.fee_per_update", "1")
	v.SetDefault("oracle.trusted_publishers", []string{})
	v.SetDefault("oracle.trust_local_publisher", true)
	v.SetDefault("oracle.verify_cache_size", oracle.DefaultVerifyCacheSize)

	// 3. Price service defaults (local simulator)
	v.SetDefault("price_service.endpoint", "http://127.0.0.1:5080")
	v.SetDefault("price_service.stream_endpoint", "")
	v.SetDefault("price_service.timeout", "10s")
	v.SetDefault("price_service.rate_limit", 5.0)
	v.SetDefault("price_service.burst", 5)
	v.SetDefault("price_service.stream", false)
	v.SetDefault("price_service.retry_interval", "5s")

	v.SetDefault("publisher.seed", DevPublisherSeed)
	v.SetDefault("publisher.key", "")
	v.SetDefault("publisher.bind", "127.0.0.1")
	v.SetDefault("publisher.port", 5080)
	v.SetDefault("publisher.interval", "1s")
	v.SetDefault("publisher.expo", -8)
	v.SetDefault("publisher.prices", map[string]string{
		"btc": "20000.00",
		"eth": "1800.00",
	})

	// 4. Storage defaults
	v.SetDefault("storage.backend", "pebble")
	v.SetDefault("storage.path", "data")
	v.SetDefault("storage.compression", "lz4")

	// Journal defaults (SQLite next to the state store)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.connection_string", "")
	v.SetDefault("journal.database", "data/journal.db")
	v.SetDefault("journal.host", "localhost")
	v.SetDefault("journal.port", 5432)
	v.SetDefault("journal.username", "")
	v.SetDefault("journal.password", "")
	v.SetDefault("journal.ssl_mode", "prefer")
	v.SetDefault("journal.max_open_conns", 1)
	v.SetDefault("journal.max_idle_conns", 1)
	v.SetDefault("journal.conn_max_lifetime", "1h")
	v.SetDefault("journal.default_timeout", "5s")
	v.SetDefault("journal.enable_wal_mode", true)

	// 5. RPC defaults
	v.SetDefault("rpc.bind", "127.0.0.1")
	v.SetDefault("rpc.port", 5005)
	v.SetDefault("rpc.timeout", "30s")
	v.SetDefault("rpc.max_body_size", 1<<20)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind", "127.0.0.1")
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
