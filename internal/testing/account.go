package testing

import (
	"fmt"

	"github.com/AntoineMrtl/oracle-swap-back/internal/crypto"
	"github.com/AntoineMrtl/oracle-swap-back/internal/publisher"
)

// Account is a named test identity. Its name is the liquidity provider id and
// its key signs price updates.
type Account struct {
	// Name is a human-readable identifier, used as the provider id.
	Name string

	// Publisher is the deterministic signing key derived from Name.
	Publisher *publisher.Publisher
}

// NewAccount creates a test account with a keypair derived from the name.
// Using the same name always produces the same key.
func NewAccount(name string) *Account {
	return &Account{
		Name:      name,
		Publisher: publisher.FromSeed("oracleswap/test/" + name),
	}
}

// ID returns the publisher id of the account key.
func (a *Account) ID() crypto.PublisherID {
	return a.Publisher.ID()
}

func (a *Account) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.ID())
}
