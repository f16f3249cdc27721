package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/crypto/ripemd160"
)

// PublisherIDSize is the size of a price publisher ID in bytes.
const PublisherIDSize = 20

// PublisherID identifies a trusted price publisher.
type PublisherID [PublisherIDSize]byte

// CalcPublisherID computes the publisher ID from a compressed secp256k1
// public key as RIPEMD160(SHA256(publicKey)).
func CalcPublisherID(publicKey []byte) PublisherID {
	sha256Hash := sha256.Sum256(publicKey)

	ripemd160Hasher := ripemd160.New()
	ripemd160Hasher.Write(sha256Hash[:])

	var result PublisherID
	copy(result[:], ripemd160Hasher.Sum(nil))
	return result
}

// ParsePublisherID decodes a 40 character hex publisher ID, with or without
// a 0x prefix.
func ParsePublisherID(s string) (PublisherID, error) {
	var id PublisherID
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return id, fmt.Errorf("invalid publisher id %q: %w", s, err)
	}
	if len(raw) != PublisherIDSize {
		return id, fmt.Errorf("invalid publisher id %q: want %d bytes, got %d", s, PublisherIDSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// IsZero returns true if the publisher ID is all zeros.
func (id PublisherID) IsZero() bool {
	return id == PublisherID{}
}

func (id PublisherID) String() string {
	return hex.EncodeToString(id[:])
}
