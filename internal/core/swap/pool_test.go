package swap_test

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
	jtx "github.com/AntoineMrtl/oracle-swap-back/internal/testing"
	oracletest "github.com/AntoineMrtl/oracle-swap-back/internal/testing/oracle"
)

func TestSwapBTCETH(t *testing.T) {
	env := jtx.NewTestEnv(t)
	owner := jtx.NewAccount("owner")
	env.Fund(owner, "100", "100")

	updates := env.Updates("20000.00", "1800.00")
	fee := env.UpdateFee(updates)
	jtx.RequireAmount(t, jtx.Wei(2), fee)

	receipt, err := env.Pool().Swap(swap.SwapRequest{
		Direction: swap.BToA,
		AmountIn:  jtx.Units("10"),
		Updates:   updates,
		Fee:       jtx.Wei(5),
	})
	jtx.RequireSuccess(t, err)
	jtx.RequireAmount(t, jtx.Units("0.9"), receipt.AmountOut)
	jtx.RequireAmount(t, jtx.Wei(2), receipt.Fee)
	jtx.RequireAmount(t, jtx.Wei(3), receipt.Refund)
	require.Equal(t, swap.BToA, receipt.Direction)
	require.Equal(t, swap.KindSwap, receipt.Kind)
	require.True(t, env.Now().Equal(receipt.Time))

	jtx.RequireReserves(t, env, "99.1", "110")
	require.Equal(t, env.Reserves(), receipt.Reserves)
	jtx.RequireAmount(t, jtx.Wei(2), env.Pool().Info().CollectedFees)
}

func TestSwapMovesReservesByQuote(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "100", "100")
	env.SetPrices("20000", "1800")

	for _, dir := range []swap.Direction{swap.AToB, swap.BToA, swap.AToB} {
		before := env.Reserves()
		q, err := env.Pool().Quote(dir, jtx.Units("0.37"))
		require.NoError(t, err)

		r, err := env.Pool().Swap(swap.SwapRequest{Direction: dir, AmountIn: jtx.Units("0.37")})
		jtx.RequireSuccess(t, err)
		jtx.RequireAmount(t, q.AmountOut, r.AmountOut)

		in, out := before.A.Big(), before.B.Big()
		after := env.Reserves()
		if dir == swap.AToB {
			require.Equal(t, new(big.Int).Add(in, jtx.Units("0.37").Big()), after.A.Big())
			require.Equal(t, new(big.Int).Sub(out, q.AmountOut.Big()), after.B.Big())
		} else {
			require.Equal(t, new(big.Int).Sub(in, q.AmountOut.Big()), after.A.Big())
			require.Equal(t, new(big.Int).Add(out, jtx.Units("0.37").Big()), after.B.Big())
		}
	}
}

func TestSwapSlippage(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "100", "100")
	updates := env.Updates("20000", "1800")

	_, err := env.Pool().Swap(swap.SwapRequest{
		Direction:    swap.BToA,
		AmountIn:     jtx.Units("10"),
		MinAmountOut: jtx.Units("0.91"),
		Updates:      updates,
		Fee:          env.UpdateFee(updates),
	})
	jtx.RequireResult(t, err, tx.TecSLIPPAGE)
	jtx.RequireReserves(t, env, "100", "100")

	// The rejected swap must not have committed its price updates or fee.
	_, err = env.Pool().PriceUnsafe(oracle.FeedBTCUSD)
	jtx.RequireResult(t, err, tx.TecUNKNOWN_FEED)
	require.True(t, env.Pool().Info().CollectedFees.IsZero())

	r, err := env.Pool().Swap(swap.SwapRequest{
		Direction:    swap.BToA,
		AmountIn:     jtx.Units("10"),
		MinAmountOut: jtx.Units("0.9"),
		Updates:      updates,
		Fee:          env.UpdateFee(updates),
	})
	jtx.RequireSuccess(t, err)
	jtx.RequireAmount(t, jtx.Units("0.9"), r.AmountOut)
}

func TestSwapInsolvent(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "1", "1")
	env.SetPrices("20000", "1800")

	// 1000 ETH buys 90 BTC, far more than the pool holds.
	_, err := env.Pool().Swap(swap.SwapRequest{Direction: swap.BToA, AmountIn: jtx.Units("1000")})
	jtx.RequireResult(t, err, tx.TecINSOLVENT)
	jtx.RequireReserves(t, env, "1", "1")
}

func TestSwapErrors(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "100", "100")

	t.Run("unknown feed", func(t *testing.T) {
		_, err := env.Pool().Swap(swap.SwapRequest{Direction: swap.AToB, AmountIn: jtx.Units("1")})
		jtx.RequireResult(t, err, tx.TecUNKNOWN_FEED)
	})

	t.Run("zero amount", func(t *testing.T) {
		_, err := env.Pool().Swap(swap.SwapRequest{Direction: swap.AToB, AmountIn: amount.Zero()})
		jtx.RequireResult(t, err, tx.TemZERO_AMOUNT)
	})

	t.Run("bad direction", func(t *testing.T) {
		_, err := env.Pool().Swap(swap.SwapRequest{Direction: swap.Direction(9), AmountIn: jtx.Units("1")})
		jtx.RequireResult(t, err, tx.TemMALFORMED)
	})

	t.Run("unpaid updates", func(t *testing.T) {
		_, err := env.Pool().Swap(swap.SwapRequest{
			Direction: swap.AToB,
			AmountIn:  jtx.Units("1"),
			Updates:   env.Updates("20000", "1800"),
		})
		jtx.RequireResult(t, err, tx.TecINSUFFICIENT_FEE)
	})

	t.Run("stale cached price", func(t *testing.T) {
		env.SetPrices("20000", "1800")
		env.AdvanceTime(61 * time.Second)
		_, err := env.Pool().Swap(swap.SwapRequest{Direction: swap.AToB, AmountIn: jtx.Units("1")})
		jtx.RequireResult(t, err, tx.TecSTALE_PRICE)
	})

	t.Run("only one feed refreshed", func(t *testing.T) {
		batch := oracletest.Batch(env.Publisher()).Price(oracle.FeedBTCUSD, "20000", env.Now()).Build()
		_, err := env.Pool().Swap(swap.SwapRequest{
			Direction: swap.AToB,
			AmountIn:  jtx.Units("1"),
			Updates:   batch,
			Fee:       env.UpdateFee(batch),
		})
		jtx.RequireResult(t, err, tx.TecSTALE_PRICE)
	})

	jtx.RequireReserves(t, env, "100", "100")
}

func TestArbitrate(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "100", "100")

	// 100 BTC is worth far more than 100 ETH, so the pool buys ETH.
	updates := env.Updates("20000", "1800")
	r, err := env.Pool().Arbitrate(swap.ArbitrageRequest{
		AmountIn: jtx.Units("10"),
		Updates:  updates,
		Fee:      env.UpdateFee(updates),
	})
	jtx.RequireSuccess(t, err)
	require.Equal(t, swap.KindArbitrage, r.Kind)
	require.Equal(t, swap.BToA, r.Direction)
	jtx.RequireAmount(t, jtx.Units("0.9"), r.AmountOut)
	jtx.RequireReserves(t, env, "99.1", "110")

	// Flip the prices: ETH is now the expensive leg, so the pool buys BTC.
	env.AdvanceTime(time.Second)
	env.SetPrices("1", "1800")
	r, err = env.Pool().Arbitrate(swap.ArbitrageRequest{AmountIn: jtx.Units("1")})
	jtx.RequireSuccess(t, err)
	require.Equal(t, swap.AToB, r.Direction)
}

func TestArbitrateBalancedIsNoop(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "9", "100")

	updates := env.Updates("20000", "1800")
	r, err := env.Pool().Arbitrate(swap.ArbitrageRequest{
		AmountIn: jtx.Units("1"),
		Updates:  updates,
		Fee:      env.UpdateFee(updates),
	})
	jtx.RequireSuccess(t, err)
	require.True(t, r.Noop)
	require.True(t, r.AmountOut.IsZero())
	jtx.RequireReserves(t, env, "9", "100")

	// Prices from the no-op are still committed.
	_, err = env.Pool().Price(oracle.FeedETHUSD)
	require.NoError(t, err)
	jtx.RequireAmount(t, jtx.Wei(2), env.Pool().Info().CollectedFees)
}

func TestArbitrateZeroAmount(t *testing.T) {
	env := jtx.NewTestEnv(t)
	_, err := env.Pool().Arbitrate(swap.ArbitrageRequest{})
	jtx.RequireResult(t, err, tx.TemZERO_AMOUNT)
}

func TestZeroOutputRejected(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "100", "100")
	env.SetPrices("20000", "1800")
	fees := env.Pool().Info().CollectedFees

	// 11 wei of ETH is worth 0.99 wei of BTC, which floors to zero.
	_, err := env.Pool().Swap(swap.SwapRequest{Direction: swap.BToA, AmountIn: jtx.Wei(11)})
	jtx.RequireResult(t, err, tx.TemZERO_AMOUNT)
	jtx.RequireReserves(t, env, "100", "100")

	// BTC is the richer leg, so arbitrage also sells ETH into the pool.
	updates := env.Updates("20000", "1800")
	_, err = env.Pool().Arbitrate(swap.ArbitrageRequest{
		AmountIn: jtx.Wei(11),
		Updates:  updates,
		Fee:      env.UpdateFee(updates),
	})
	jtx.RequireResult(t, err, tx.TemZERO_AMOUNT)
	jtx.RequireReserves(t, env, "100", "100")
	jtx.RequireAmount(t, fees, env.Pool().Info().CollectedFees)
}

func TestLiquidityThroughPool(t *testing.T) {
	env := jtx.NewTestEnv(t)
	owner := jtx.NewAccount("owner")
	alice := jtx.NewAccount("alice")

	jtx.RequireAmount(t, jtx.Units("100"), env.Fund(owner, "100", "100"))
	jtx.RequireReserves(t, env, "100", "100")

	// Proportional deposits scale shares linearly.
	jtx.RequireAmount(t, jtx.Units("50"), env.Fund(alice, "50", "50"))
	jtx.RequireAmount(t, jtx.Units("200"), env.Fund(alice, "200", "200"))
	jtx.RequireAmount(t, jtx.Units("250"), env.Shares(alice))

	a, b, err := env.Pool().RemoveLiquidity(alice.Name, jtx.Units("250"))
	jtx.RequireSuccess(t, err)
	jtx.RequireAmount(t, jtx.Units("250"), a)
	jtx.RequireAmount(t, jtx.Units("250"), b)

	_, _, err = env.Pool().RemoveLiquidity(alice.Name, jtx.Units("1"))
	jtx.RequireResult(t, err, tx.TecINSUFFICIENT_SHARES)

	_, err = env.Pool().AddLiquidity(alice.Name, amount.Zero(), jtx.Units("1"))
	jtx.RequireResult(t, err, tx.TemZERO_AMOUNT)
	jtx.RequireReserves(t, env, "100", "100")
}

func TestPoolEvents(t *testing.T) {
	env := jtx.NewTestEnv(t)
	var events []swap.Event
	env.Pool().Subscribe(func(ev swap.Event) { events = append(events, ev) })

	env.Fund(jtx.NewAccount("owner"), "100", "100")
	_, err := env.Pool().Swap(swap.SwapRequest{Direction: swap.AToB, AmountIn: jtx.Units("1")})
	require.Error(t, err)

	require.Len(t, events, 2)
	require.Equal(t, swap.OpAddLiquidity, events[0].Op)
	require.NoError(t, events[0].Err)
	require.NotNil(t, events[0].State)
	require.NotNil(t, events[0].Liquidity)

	require.Equal(t, swap.OpSwap, events[1].Op)
	require.True(t, errors.Is(events[1].Err, tx.TecUNKNOWN_FEED))
	require.Nil(t, events[1].State)
	require.Nil(t, events[1].Receipt)
}

func TestPoolStateRestore(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "100", "100")
	env.SetPrices("20000", "1800")
	state := env.Pool().State()

	other := jtx.NewTestEnv(t, jtx.WithClock(env.Clock()))
	other.Pool().Restore(state)
	require.Equal(t, env.Pool().Info(), other.Pool().Info())

	q, err := other.Pool().Quote(swap.BToA, jtx.Units("10"))
	require.NoError(t, err)
	jtx.RequireAmount(t, jtx.Units("0.9"), q.AmountOut)
}

func TestPoolConcurrentSwaps(t *testing.T) {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("owner"), "1000", "1000")
	env.SetPrices("1", "1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dir := swap.AToB
			if i%2 == 1 {
				dir = swap.BToA
			}
			_, err := env.Pool().Swap(swap.SwapRequest{Direction: dir, AmountIn: jtx.Units("1")})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Equal prices and equal counts per direction cancel out.
	jtx.RequireReserves(t, env, "1000", "1000")
}

func TestNewPoolValidation(t *testing.T) {
	cfg := jtx.NewTestEnv(t).Config()
	cfg.Assets[1].Feed = cfg.Assets[0].Feed
	_, err := swap.NewPool(cfg, nil, nil)
	require.Error(t, err)
}
