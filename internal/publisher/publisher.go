// Package publisher signs price update payloads. It backs the local price
// service simulator and test fixtures.
package publisher

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/crypto"
	common "github.com/AntoineMrtl/oracle-swap-back/internal/crypto/common"
)

// Publisher holds a secp256k1 signing key.
type Publisher struct {
	key *btcec.PrivateKey
	pub []byte
	id  crypto.PublisherID
}

// New wraps an existing private key.
func New(key *btcec.PrivateKey) *Publisher {
	pub := key.PubKey().SerializeCompressed()
	return &Publisher{key: key, pub: pub, id: crypto.CalcPublisherID(pub)}
}

// Generate creates a publisher with a fresh random key.
func Generate() (*Publisher, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate publisher key: %w", err)
	}
	return New(key), nil
}

// FromSeed derives a deterministic publisher from a passphrase.
func FromSeed(seed string) *Publisher {
	digest := common.Sha512Half([]byte(seed))
	key, _ := btcec.PrivKeyFromBytes(digest[:])
	return New(key)
}

// FromHex loads a publisher from a 32-byte hex private key.
func FromHex(s string) (*Publisher, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid publisher key: %w", err)
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid publisher key: want %d bytes, got %d", btcec.PrivKeyBytesLen, len(raw))
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	return New(key), nil
}

// ID returns the publisher id derived from the public key.
func (p *Publisher) ID() crypto.PublisherID {
	return p.id
}

// PublicKey returns the compressed public key.
func (p *Publisher) PublicKey() []byte {
	return append([]byte(nil), p.pub...)
}

// PrivateKeyHex returns the private key as hex.
func (p *Publisher) PrivateKeyHex() string {
	return hex.EncodeToString(p.key.Serialize())
}

// SignBody signs an already encoded update body and returns the payload.
func (p *Publisher) SignBody(body []byte) ([]byte, error) {
	hash := oracle.SigningHash(body)
	sig := ecdsa.Sign(p.key, hash[:])
	return oracle.EncodeEnvelope(oracle.Envelope{
		Body:         body,
		PublisherKey: p.pub,
		Signature:    sig.Serialize(),
	})
}

// Sign encodes updates into a versioned body and signs it.
func (p *Publisher) Sign(updates ...oracle.PriceUpdate) ([]byte, error) {
	body, err := oracle.EncodeBody(oracle.UpdateBody{
		Magic:   oracle.PayloadMagic,
		Version: oracle.PayloadVersion,
		Updates: updates,
	})
	if err != nil {
		return nil, err
	}
	return p.SignBody(body)
}

// Update builds a price update for feed published at t.
func Update(feed oracle.FeedID, mantissa int64, expo int32, t time.Time) oracle.PriceUpdate {
	return oracle.PriceUpdate{
		FeedID:      feed,
		Mantissa:    mantissa,
		Expo:        expo,
		PublishTime: t.Unix(),
	}
}
