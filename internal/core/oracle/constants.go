package oracle

import "time"

const (
	// PayloadMagic prefixes every update body ("OSPU").
	PayloadMagic uint32 = 0x4f535055
	// PayloadVersion is the only body version accepted.
	PayloadVersion uint8 = 1

	// MaxPayloadSize bounds a single encoded envelope.
	MaxPayloadSize = 64 * 1024
	// MaxUpdatesPerPayload bounds the price updates inside one body.
	MaxUpdatesPerPayload = 64
	// MaxBatchSize bounds the payloads submitted with one operation.
	MaxBatchSize = 32

	// MinExpo and MaxExpo bound the price exponent.
	MinExpo int32 = -32
	MaxExpo int32 = 32

	// DefaultWindow is the freshness window for prices at use.
	DefaultWindow = 60 * time.Second
	// DefaultMaxFutureSkew is how far ahead of now a publish time may be.
	DefaultMaxFutureSkew = 10 * time.Second
	// DefaultVerifyCacheSize is the number of verified payload digests kept.
	DefaultVerifyCacheSize = 4096
)

// Feeds used by the default BTC/ETH pool.
var (
	FeedBTCUSD = MustParseFeedID("0xf9c0172ba10dfa4d19088d94f5bf61d3b54d5bd7483a322a982e1373ee8ea31b")
	FeedETHUSD = MustParseFeedID("0x651071f8c7ab2321b6bdd3bc79b94a50841a92a6e065f9e3b8b9926a8fb5a5d1")
)
