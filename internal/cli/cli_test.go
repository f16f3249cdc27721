package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/config"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
	"github.com/AntoineMrtl/oracle-swap-back/internal/pricesvc"
	"github.com/AntoineMrtl/oracle-swap-back/internal/rpc"
	jtx "github.com/AntoineMrtl/oracle-swap-back/internal/testing"
)

// setup points the CLI at an in-process pool and returns its environment.
func setup(t *testing.T) *jtx.TestEnv {
	t.Helper()
	env := jtx.NewTestEnv(t)
	ts := httptest.NewServer(rpc.NewServer(env.Pool(), 5*time.Second, log.NewDiscardLogger()))
	t.Cleanup(ts.Close)

	c, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg, logger = c, log.NewDiscardLogger()
	rpcEndpoint = ts.URL
	t.Cleanup(func() {
		cfg, logger, rpcEndpoint = nil, nil, ""
		rawAmounts, refresh, feePaid, minOut = false, false, "", ""
	})
	return env
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (map[string]interface{}, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	if err := cmd.RunE(cmd, args); err != nil {
		return nil, err
	}
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	return result, nil
}

func TestQuoteAndSwapCommands(t *testing.T) {
	env := setup(t)
	env.Fund(jtx.NewAccount("alice"), "100", "100")
	env.SetPrices("20000", "1800")

	result, err := run(t, quoteCmd, "b_to_a", "10")
	require.NoError(t, err)
	require.Equal(t, jtx.Units("0.9").String(), result["amount_out"])

	minOut = "1"
	_, err = run(t, swapCmd, "b_to_a", "10")
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	r, ok := rpcErr.Result()
	require.True(t, ok)
	require.Equal(t, tx.TecSLIPPAGE, r)

	minOut = "0.9"
	result, err = run(t, swapCmd, "b_to_a", "10")
	require.NoError(t, err)
	require.Equal(t, jtx.Units("0.9").String(), result["amount_out"])
	jtx.RequireReserves(t, env, "99.1", "110")
}

func TestLiquidityCommands(t *testing.T) {
	env := setup(t)

	result, err := run(t, addLiquidityCmd, "alice", "1.5", "2")
	require.NoError(t, err)
	require.Equal(t, jtx.Units("1.5").String(), result["shares"])
	jtx.RequireReserves(t, env, "1.5", "2")

	rawAmounts = true
	_, err = run(t, addLiquidityCmd, "bob", "15", "20")
	require.NoError(t, err)

	result, err = run(t, removeLiquidityCmd, "alice", jtx.Units("1.5").String())
	require.NoError(t, err)
	require.Equal(t, jtx.Units("1.5").String(), result["amount_a"])
	require.Equal(t, jtx.Units("2").String(), result["amount_b"])
}

func TestFetchCommand(t *testing.T) {
	env := setup(t)

	svc := pricesvc.NewServer(env.Publisher().Publisher, time.Second, log.NewDiscardLogger())
	svc.SetClock(env.Clock().Now)
	svc.SetPrice(oracle.FeedBTCUSD, jtx.PriceMantissa("20000"), jtx.PriceExpo)
	svc.SetPrice(oracle.FeedETHUSD, jtx.PriceMantissa("1800"), jtx.PriceExpo)
	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)
	cfg.PriceService.Endpoint = ts.URL

	result, err := run(t, fetchCmd)
	require.NoError(t, err)
	require.Equal(t, "2", result["fee"])

	feed, err := env.Pool().Price(oracle.FeedETHUSD)
	require.NoError(t, err)
	require.Equal(t, jtx.PriceMantissa("1800"), feed.Price.Mantissa)

	// --refresh attaches the same updates with the exact fee.
	env.Fund(jtx.NewAccount("alice"), "100", "100")
	refresh = true
	result, err = run(t, swapCmd, "a_to_b", "1")
	require.NoError(t, err)
	require.Equal(t, "2", result["fee"])
	require.Equal(t, "0", result["refund"])
}

func TestPriceMantissa(t *testing.T) {
	m, err := priceMantissa("20000.5", -8)
	require.NoError(t, err)
	require.Equal(t, int64(2000050000000), m)

	_, err = priceMantissa("0", -8)
	require.Error(t, err)

	_, err = priceMantissa("1.123", -2)
	require.Error(t, err)
}

func TestNewPriceServer(t *testing.T) {
	setup(t)
	priceOverrides = map[string]string{"BTC": "21000"}
	t.Cleanup(func() { priceOverrides = nil })

	srv, err := newPriceServer()
	require.NoError(t, err)
	require.ElementsMatch(t, []oracle.FeedID{oracle.FeedBTCUSD, oracle.FeedETHUSD}, srv.Feeds())

	cfg.Publisher.Expo = 2
	_, err = newPriceServer()
	require.Error(t, err)
}
