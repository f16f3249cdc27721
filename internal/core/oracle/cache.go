package oracle

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AntoineMrtl/oracle-swap-back/internal/crypto"
)

// verifiedCache remembers payload digests whose signature has already been
// checked, keyed by Sha512Half(body, key, signature).
type verifiedCache struct {
	entries *lru.Cache[[32]byte, crypto.PublisherID]
}

func newVerifiedCache(size int) (*verifiedCache, error) {
	if size <= 0 {
		size = DefaultVerifyCacheSize
	}
	c, err := lru.New[[32]byte, crypto.PublisherID](size)
	if err != nil {
		return nil, err
	}
	return &verifiedCache{entries: c}, nil
}

func (c *verifiedCache) Get(digest [32]byte) (crypto.PublisherID, bool) {
	return c.entries.Get(digest)
}

func (c *verifiedCache) Add(digest [32]byte, id crypto.PublisherID) {
	c.entries.Add(digest, id)
}

func (c *verifiedCache) Len() int {
	return c.entries.Len()
}
