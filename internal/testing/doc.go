// Package testing provides test infrastructure for the oracle swap pool.
//
// It is modeled on a jtx-style environment: deterministic identities, a
// manual clock and helpers that fail the test on unexpected errors.
//
// # Basic Usage
//
//	func TestSwap(t *testing.T) {
//	    env := testing.NewTestEnv(t)
//	    owner := testing.NewAccount("owner")
//
//	    env.Fund(owner, "100", "100")
//	    updates := env.Updates("20000.00", "1800.00")
//
//	    receipt, err := env.Pool().Swap(swap.SwapRequest{
//	        Direction: swap.BToA,
//	        AmountIn:  testing.Units("10"),
//	        Updates:   updates,
//	        Fee:       env.UpdateFee(updates),
//	    })
//	    testing.RequireSuccess(t, err)
//	    testing.RequireAmount(t, testing.Units("0.9"), receipt.AmountOut)
//	}
//
// # TestEnv
//
// TestEnv wraps a swap.Pool tracking the BTC/USD and ETH/USD feeds with
// 18-decimal tokens. The "publisher" account is trusted by default; more
// publishers can be added with WithTrusted.
//
//	env.Fund(alice, "50", "50")          // add liquidity in token units
//	env.SetPrices("20000", "1800")       // ingest fresh prices
//	env.AdvanceTime(90 * time.Second)    // age the cached prices
//	env.Reserves()                       // current reserves
//
// # Accounts
//
// NewAccount derives a secp256k1 key from the account name, so the same name
// always yields the same publisher id.
//
// # Price Batches
//
// The oracle sub-package provides a fluent builder for batches with several
// publishers, stale or future publish times and tampered payloads:
//
//	batch := oracle.Batch(env.Publisher()).
//	    Price(feed, "20000", env.Now()).
//	    Build()
//
// # Assertions
//
//	testing.RequireSuccess(t, err)
//	testing.RequireResult(t, err, tx.TecSTALE_PRICE)
//	testing.RequireReserves(t, env, "99.1", "110")
package testing
