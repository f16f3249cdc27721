package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
)

func TestNewAccount(t *testing.T) {
	alice1 := NewAccount("alice")
	alice2 := NewAccount("alice")

	// Same name should produce same key
	assert.Equal(t, alice1.ID(), alice2.ID())
	assert.Equal(t, alice1.Publisher.PublicKey(), alice2.Publisher.PublicKey())

	bob := NewAccount("bob")
	assert.NotEqual(t, alice1.ID(), bob.ID())
	assert.Contains(t, alice1.String(), "alice")
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock()
	start := clock.Now()

	clock.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), clock.Now())
	assert.Equal(t, start, clock.Ago(5*time.Second))

	target := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(target)
	assert.Equal(t, target, clock.Now())
}

func TestAmountHelpers(t *testing.T) {
	assert.Equal(t, "900000000000000000", Units("0.9").String())
	assert.Equal(t, "1000000", UnitsAt("1", 6).String())
	assert.Equal(t, int64(2000000000000), PriceMantissa("20000.00"))
	assert.Equal(t, int64(180000000000), PriceMantissa("1800"))
	assert.Equal(t, "7", Wei(7).String())
}

func TestEnvFundAndPrices(t *testing.T) {
	env := NewTestEnv(t)
	owner := NewAccount("owner")

	shares := env.Fund(owner, "100", "100")
	RequireAmount(t, Units("100"), shares)
	RequireReserves(t, env, "100", "100")
	RequireAmount(t, Units("100"), env.Shares(owner))

	env.SetPrices("20000", "1800")
	feed, err := env.Pool().Price(env.Config().Assets[0].Feed)
	require.NoError(t, err)
	assert.Equal(t, PriceMantissa("20000"), feed.Price.Mantissa)

	env.AdvanceTime(2 * time.Minute)
	_, err = env.Pool().Price(env.Config().Assets[0].Feed)
	RequireResult(t, err, tx.TecSTALE_PRICE)
	RequireClaimed(t, err)
}
