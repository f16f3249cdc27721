package oracle

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// FeedIDSize is the size of a price feed identifier in bytes.
const FeedIDSize = 32

// FeedID is an opaque price feed identifier, written as 0x-prefixed hex.
type FeedID [FeedIDSize]byte

// ParseFeedID decodes a 64 character hex feed id, with or without 0x prefix.
func ParseFeedID(s string) (FeedID, error) {
	var id FeedID
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return id, fmt.Errorf("invalid feed id %q: %w", s, err)
	}
	if len(raw) != FeedIDSize {
		return id, fmt.Errorf("invalid feed id %q: want %d bytes, got %d", s, FeedIDSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustParseFeedID is like ParseFeedID but panics on error.
func MustParseFeedID(s string) FeedID {
	id, err := ParseFeedID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id FeedID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// IsZero reports whether the id is all zeros.
func (id FeedID) IsZero() bool {
	return id == FeedID{}
}

// MarshalText encodes the id as 0x-prefixed hex.
func (id FeedID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a hex feed id.
func (id *FeedID) UnmarshalText(b []byte) error {
	parsed, err := ParseFeedID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Price is a fixed-point oracle price: Mantissa * 10^Expo, with a confidence
// interval in the same units as Mantissa.
type Price struct {
	Mantissa    int64     `json:"price"`
	Expo        int32     `json:"expo"`
	Conf        uint64    `json:"conf"`
	PublishTime time.Time `json:"publish_time"`
}

// PriceFeed is the latest trusted price for a feed.
type PriceFeed struct {
	ID    FeedID `json:"id"`
	Price Price  `json:"price"`
}

// Age returns how old the price is at now.
func (p Price) Age(now time.Time) time.Duration {
	return now.Sub(p.PublishTime)
}

// PriceUpdate is one signed observation inside an update payload.
type PriceUpdate struct {
	FeedID      FeedID `codec:"feed"`
	Mantissa    int64  `codec:"price"`
	Expo        int32  `codec:"expo"`
	Conf        uint64 `codec:"conf"`
	PublishTime int64  `codec:"publish_time"`
}

// Price converts the wire update to a Price.
func (u PriceUpdate) Price() Price {
	return Price{
		Mantissa:    u.Mantissa,
		Expo:        u.Expo,
		Conf:        u.Conf,
		PublishTime: time.Unix(u.PublishTime, 0).UTC(),
	}
}

// UpdateBody is the signed part of an update payload.
type UpdateBody struct {
	Magic   uint32        `codec:"magic"`
	Version uint8         `codec:"version"`
	Updates []PriceUpdate `codec:"updates"`
}

// Envelope carries an encoded UpdateBody, the publisher's compressed
// secp256k1 public key and a DER signature over Sha512Half(Body).
type Envelope struct {
	Body         []byte `codec:"body"`
	PublisherKey []byte `codec:"key"`
	Signature    []byte `codec:"sig"`
}
