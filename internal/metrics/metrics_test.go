package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/metrics"
	jtx "github.com/AntoineMrtl/oracle-swap-back/internal/testing"
)

func TestObserverRecordsPoolEvents(t *testing.T) {
	m := metrics.New()
	env := jtx.NewTestEnv(t)
	env.Pool().Subscribe(m.Observer(env.Config().Assets))

	env.Fund(jtx.NewAccount("alice"), "100", "100")
	_, err := env.Pool().Swap(swap.SwapRequest{
		Direction: swap.BToA,
		AmountIn:  jtx.Units("10"),
		Updates:   env.Updates("20000", "1800"),
		Fee:       jtx.Wei(2),
	})
	jtx.RequireSuccess(t, err)
	_, _, err = env.Pool().RemoveLiquidity("nobody", jtx.Units("1"))
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues(swap.OpSwap, "tesSUCCESS")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues(swap.OpAddLiquidity, "tesSUCCESS")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues(swap.OpRemoveLiquidity, "tecINSUFFICIENT_SHARES")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.UpdateFees))
	require.Equal(t, 2.0, testutil.ToFloat64(m.CollectedFees))
	require.InDelta(t, 99.1e18, testutil.ToFloat64(m.Reserves.WithLabelValues("BTC")), 1e6)
	require.InDelta(t, 110e18, testutil.ToFloat64(m.Reserves.WithLabelValues("ETH")), 1e6)
	require.InDelta(t, 20000.0, testutil.ToFloat64(m.Prices.WithLabelValues(oracle.FeedBTCUSD.String())), 1e-6)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.ObserveRPC("quote", "success", 0)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `oracleswap_rpc_requests_total{method="quote",status="success"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}

func TestPriceFloat(t *testing.T) {
	require.InDelta(t, 1800.0, metrics.PriceFloat(oracle.Price{Mantissa: 180000000000, Expo: -8}), 1e-9)
	require.InDelta(t, 5e3, metrics.PriceFloat(oracle.Price{Mantissa: 5, Expo: 3}), 1e-9)
}
