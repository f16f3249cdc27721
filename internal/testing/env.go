package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/ledger"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/crypto"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
	"github.com/AntoineMrtl/oracle-swap-back/internal/publisher"
)

// TestEnv manages a pool with a manual clock and a trusted test publisher.
type TestEnv struct {
	t         *testing.T
	pool      *swap.Pool
	clock     *ManualClock
	publisher *Account
	cfg       swap.Config
}

type envConfig struct {
	pool    swap.Config
	trusted []*Account
	clock   *ManualClock
}

// Option customizes NewTestEnv.
type Option func(*envConfig)

// WithFeePerUpdate sets the price update fee.
func WithFeePerUpdate(fee amount.Amount) Option {
	return func(c *envConfig) { c.pool.Oracle.FeePerUpdate = fee }
}

// WithWindow sets the price freshness window.
func WithWindow(d time.Duration) Option {
	return func(c *envConfig) { c.pool.Oracle.Window = d }
}

// WithAssets replaces the default BTC/ETH assets.
func WithAssets(a, b swap.Asset) Option {
	return func(c *envConfig) { c.pool.Assets = [2]swap.Asset{a, b} }
}

// WithTrusted adds trusted publishers besides the default one.
func WithTrusted(accounts ...*Account) Option {
	return func(c *envConfig) { c.trusted = append(c.trusted, accounts...) }
}

// WithClock uses the given clock.
func WithClock(clock *ManualClock) Option {
	return func(c *envConfig) { c.clock = clock }
}

// DefaultAssets are the BTC (A) and ETH (B) test tokens.
func DefaultAssets() [2]swap.Asset {
	return [2]swap.Asset{
		{Symbol: "BTC", Decimals: TokenDecimals, Feed: oracle.FeedBTCUSD},
		{Symbol: "ETH", Decimals: TokenDecimals, Feed: oracle.FeedETHUSD},
	}
}

// NewTestEnv creates an empty pool trusting the "publisher" account.
// The update fee defaults to 1 base unit per price update.
func NewTestEnv(t *testing.T, opts ...Option) *TestEnv {
	t.Helper()

	pub := NewAccount("publisher")
	cfg := envConfig{
		pool: swap.Config{
			Assets: DefaultAssets(),
			Oracle: oracle.DefaultConfig(),
		},
		trusted: []*Account{pub},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = NewManualClock()
	}
	cfg.pool.Oracle.Feeds = []oracle.FeedID{cfg.pool.Assets[0].Feed, cfg.pool.Assets[1].Feed}
	cfg.pool.Oracle.TrustedPublishers = make([]crypto.PublisherID, 0, len(cfg.trusted))
	for _, a := range cfg.trusted {
		cfg.pool.Oracle.TrustedPublishers = append(cfg.pool.Oracle.TrustedPublishers, a.ID())
	}

	pool, err := swap.NewPool(cfg.pool, cfg.clock, log.NewDiscardLogger())
	require.NoError(t, err, "create pool")

	return &TestEnv{
		t:         t,
		pool:      pool,
		clock:     cfg.clock,
		publisher: pub,
		cfg:       cfg.pool,
	}
}

// Pool returns the pool under test.
func (e *TestEnv) Pool() *swap.Pool {
	return e.pool
}

// Clock returns the manual clock.
func (e *TestEnv) Clock() *ManualClock {
	return e.clock
}

// Now returns the current test time.
func (e *TestEnv) Now() time.Time {
	return e.clock.Now()
}

// AdvanceTime moves the clock forward.
func (e *TestEnv) AdvanceTime(d time.Duration) {
	e.clock.Advance(d)
}

// Publisher returns the default trusted publisher.
func (e *TestEnv) Publisher() *Account {
	return e.publisher
}

// Config returns the pool configuration.
func (e *TestEnv) Config() swap.Config {
	return e.cfg
}

// Sign signs updates with the default publisher.
func (e *TestEnv) Sign(updates ...oracle.PriceUpdate) []byte {
	e.t.Helper()
	payload, err := e.publisher.Publisher.Sign(updates...)
	require.NoError(e.t, err, "sign updates")
	return payload
}

// Updates returns a single-payload batch with fresh prices for both assets,
// given as decimal strings such as "20000.00".
func (e *TestEnv) Updates(priceA, priceB string) [][]byte {
	e.t.Helper()
	return e.UpdatesAt(e.Now(), priceA, priceB)
}

// UpdatesAt is like Updates but publishes at t.
func (e *TestEnv) UpdatesAt(t time.Time, priceA, priceB string) [][]byte {
	e.t.Helper()
	return [][]byte{e.Sign(
		publisher.Update(e.cfg.Assets[0].Feed, PriceMantissa(priceA), PriceExpo, t),
		publisher.Update(e.cfg.Assets[1].Feed, PriceMantissa(priceB), PriceExpo, t),
	)}
}

// UpdateFee returns the fee for batch and fails the test on error.
func (e *TestEnv) UpdateFee(batch [][]byte) amount.Amount {
	e.t.Helper()
	fee, err := e.pool.UpdateFee(batch)
	require.NoError(e.t, err, "update fee")
	return fee
}

// SetPrices ingests fresh prices for both assets, paying the exact fee.
func (e *TestEnv) SetPrices(priceA, priceB string) {
	e.t.Helper()
	batch := e.Updates(priceA, priceB)
	_, err := e.pool.IngestUpdates(batch, e.UpdateFee(batch))
	require.NoError(e.t, err, "ingest prices")
}

// Fund adds liquidity for provider, with token quantities such as "100".
func (e *TestEnv) Fund(provider *Account, amountA, amountB string) amount.Amount {
	e.t.Helper()
	shares, err := e.pool.AddLiquidity(provider.Name,
		UnitsAt(amountA, e.cfg.Assets[0].Decimals),
		UnitsAt(amountB, e.cfg.Assets[1].Decimals))
	require.NoError(e.t, err, "add liquidity for %s", provider.Name)
	return shares
}

// Reserves returns the current pool reserves.
func (e *TestEnv) Reserves() ledger.Reserves {
	return e.pool.Info().Reserves
}

// Shares returns the shares held by provider.
func (e *TestEnv) Shares(provider *Account) amount.Amount {
	for _, p := range e.pool.Info().Positions {
		if p.Provider == provider.Name {
			return p.Shares
		}
	}
	return amount.Zero()
}
