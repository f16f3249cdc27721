package oracle

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
	"github.com/AntoineMrtl/oracle-swap-back/internal/crypto"
	common "github.com/AntoineMrtl/oracle-swap-back/internal/crypto/common"
)

// Verifier checks payload signatures against a fixed set of trusted publishers.
type Verifier struct {
	trusted map[crypto.PublisherID]struct{}
	cache   *verifiedCache
}

// NewVerifier creates a verifier trusting the given publishers.
func NewVerifier(trusted []crypto.PublisherID, cacheSize int) (*Verifier, error) {
	if len(trusted) == 0 {
		return nil, fmt.Errorf("oracle: at least one trusted publisher is required")
	}
	cache, err := newVerifiedCache(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("oracle: verify cache: %w", err)
	}
	v := &Verifier{
		trusted: make(map[crypto.PublisherID]struct{}, len(trusted)),
		cache:   cache,
	}
	for _, id := range trusted {
		v.trusted[id] = struct{}{}
	}
	return v, nil
}

// SigningHash returns the digest a publisher signs for an encoded body.
func SigningHash(body []byte) [32]byte {
	return common.Sha512Half(body)
}

// Verify returns the publisher of env, or tefBAD_SIGNATURE if the key is not
// trusted or the signature does not verify.
func (v *Verifier) Verify(env Envelope) (crypto.PublisherID, error) {
	id := crypto.CalcPublisherID(env.PublisherKey)
	if !v.IsTrusted(id) {
		return id, tx.TefBAD_SIGNATURE
	}

	key := common.Sha512Half(env.Body, env.PublisherKey, env.Signature)
	if cached, ok := v.cache.Get(key); ok {
		return cached, nil
	}

	if !crypto.IsFullyCanonical(env.Signature) {
		return id, tx.TefBAD_SIGNATURE
	}
	pub, err := secp256k1.ParsePubKey(env.PublisherKey)
	if err != nil {
		return id, tx.TefBAD_SIGNATURE
	}
	sig, err := ecdsa.ParseDERSignature(env.Signature)
	if err != nil {
		return id, tx.TefBAD_SIGNATURE
	}
	hash := SigningHash(env.Body)
	if !sig.Verify(hash[:], pub) {
		return id, tx.TefBAD_SIGNATURE
	}

	v.cache.Add(key, id)
	return id, nil
}

// IsTrusted reports whether id is in the trusted publisher set.
func (v *Verifier) IsTrusted(id crypto.PublisherID) bool {
	_, ok := v.trusted[id]
	return ok
}

// CachedCount returns the number of memoized verifications.
func (v *Verifier) CachedCount() int {
	return v.cache.Len()
}
