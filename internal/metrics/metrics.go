// Package metrics exposes pool and RPC instrumentation to Prometheus.
package metrics

import (
	"math"
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
)

const namespace = "oracleswap"

// Config holds the metrics endpoint settings.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	UpdateFees        prometheus.Counter
	CollectedFees     prometheus.Gauge
	Reserves          *prometheus.GaugeVec
	TotalShares       prometheus.Gauge
	Prices            *prometheus.GaugeVec
	PricePublishTime  *prometheus.GaugeVec

	RPCRequests *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Pool operations, partitioned by operation and result code.",
		}, []string{"op", "result"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "How long pool operations take, partitioned by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		UpdateFees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_fees_paid_total",
			Help:      "Price update fees charged by committed operations, in base units.",
		}),
		CollectedFees: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collected_fees",
			Help:      "Price update fees held by the pool, in base units.",
		}),
		Reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reserve",
			Help:      "Pool reserves in base units, partitioned by asset symbol.",
		}, []string{"asset"}),
		TotalShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_shares",
			Help:      "Outstanding liquidity shares.",
		}),
		Prices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price",
			Help:      "Cached oracle price, partitioned by feed id.",
		}, []string{"feed"}),
		PricePublishTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_publish_time_seconds",
			Help:      "Publish time of the cached oracle price as a unix timestamp.",
		}, []string{"feed"}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC requests, partitioned by method and status.",
		}, []string{"method", "status"}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "How long RPC requests take, partitioned by method.",
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Operations, m.OperationDuration, m.UpdateFees, m.CollectedFees,
		m.Reserves, m.TotalShares, m.Prices, m.PricePublishTime,
		m.RPCRequests, m.RPCLatency,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observer returns a pool observer recording every event.
func (m *Metrics) Observer(assets [2]swap.Asset) swap.Observer {
	return func(ev swap.Event) {
		m.Operations.WithLabelValues(ev.Op, tx.ResultOf(ev.Err).String()).Inc()
		m.OperationDuration.WithLabelValues(ev.Op).Observe(ev.Duration.Seconds())
		if ev.Err != nil || ev.State == nil {
			return
		}

		m.UpdateFees.Add(toFloat(ev.Fee))
		st := ev.State
		m.CollectedFees.Set(toFloat(st.Gateway.Collected))
		m.Reserves.WithLabelValues(assets[0].Symbol).Set(toFloat(st.Ledger.Reserves.A))
		m.Reserves.WithLabelValues(assets[1].Symbol).Set(toFloat(st.Ledger.Reserves.B))
		m.TotalShares.Set(toFloat(st.Ledger.Total))
		for _, f := range st.Gateway.Feeds {
			m.Prices.WithLabelValues(f.ID.String()).Set(PriceFloat(f.Price))
			m.PricePublishTime.WithLabelValues(f.ID.String()).Set(float64(f.Price.PublishTime.Unix()))
		}
	}
}

// ObserveRPC records one RPC request.
func (m *Metrics) ObserveRPC(method, status string, elapsed time.Duration) {
	m.RPCRequests.WithLabelValues(method, status).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// PriceFloat approximates mantissa * 10^expo.
func PriceFloat(p oracle.Price) float64 {
	return float64(p.Mantissa) * math.Pow10(int(p.Expo))
}

func toFloat(a amount.Amount) float64 {
	f, _ := new(big.Float).SetInt(a.Big()).Float64()
	return f
}
