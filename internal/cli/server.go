package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/journal"
	"github.com/AntoineMrtl/oracle-swap-back/internal/metrics"
	"github.com/AntoineMrtl/oracle-swap-back/internal/pricesvc"
	"github.com/AntoineMrtl/oracle-swap-back/internal/rpc"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/compression"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database"
	"github.com/AntoineMrtl/oracle-swap-back/internal/store"
)

const shutdownTimeout = 5 * time.Second

// serverCmd represents the server command (default action)
var serverCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Run the swap pool",
	Long: `Run the swap pool, which provides:
- HTTP JSON-RPC API at /
- WebSocket RPC and pool event stream at /ws
- Prometheus metrics on the metrics address
- Optional price ingestion from the price service stream

Pool state is restored from storage on start and saved after every
committed operation.

This is the default command when no subcommand is specified.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Set server as the default command
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, args)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := newNode(ctx)
	if err != nil {
		return err
	}
	defer node.Close()

	return node.Run(ctx)
}

// node wires the pool to its storage, journal and network surfaces.
type node struct {
	pool    *swap.Pool
	manager database.Manager
	journal *journal.Journal
	metrics *metrics.Metrics
	rpc     *rpc.Server
	ws      *rpc.WebSocketServer
	log     *logrus.Entry
}

func newNode(ctx context.Context) (*node, error) {
	swapCfg, err := cfg.SwapConfig()
	if err != nil {
		return nil, err
	}
	pool, err := swap.NewPool(swapCfg, swap.SystemClock, logger)
	if err != nil {
		return nil, err
	}
	n := &node{pool: pool, log: logger.WithField("module", "node")}
	for _, w := range cfg.Warnings() {
		n.log.Warn(w)
	}

	if err := n.openStore(ctx); err != nil {
		n.Close()
		return nil, err
	}

	opts := []rpc.Option{rpc.WithMaxBodySize(cfg.RPC.MaxBodySize)}
	if cfg.Journal.Enabled {
		jcfg := cfg.Journal.Config
		if jcfg.Driver == journal.DriverSQLite {
			jcfg.Database = cfg.ResolvePath(jcfg.Database)
		}
		n.journal, err = journal.Open(ctx, &jcfg, logger)
		if err != nil {
			n.Close()
			return nil, err
		}
		pool.Subscribe(n.journal.Observer(ctx))
		opts = append(opts, rpc.WithJournal(n.journal))
	}
	if cfg.Metrics.Enabled {
		n.metrics = metrics.New()
		pool.Subscribe(n.metrics.Observer(pool.Assets()))
		opts = append(opts, rpc.WithRequestObserver(n.metrics))
	}

	n.rpc = rpc.NewServer(pool, cfg.RPC.Timeout, logger, opts...)
	n.ws = rpc.NewWebSocketServer(n.rpc)
	pool.Subscribe(n.ws.Observer())
	return n, nil
}

// openStore restores persisted state and saves after every commit.
func (n *node) openStore(ctx context.Context) error {
	backend, err := database.ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return err
	}
	path := cfg.ResolvePath(cfg.Storage.Path)
	n.manager, err = store.OpenManager(backend, path)
	if err != nil {
		return err
	}
	db, err := n.manager.OpenDB(store.DBName)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	compressor, err := compression.Get(cfg.Storage.Compression)
	if err != nil {
		return err
	}

	st := store.New(db, compressor, logger)
	state, ok, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load pool state: %w", err)
	}
	if ok {
		n.pool.Restore(state)
		n.log.WithFields(store.Fields(state)).Info("Pool state restored")
	} else {
		n.log.WithFields(logrus.Fields{"backend": backend, "path": path}).Info("Starting with an empty pool")
	}
	n.pool.Subscribe(st.Observer(ctx))
	return nil
}

// Run serves until ctx is cancelled.
func (n *node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", n.rpc)
	mux.Handle("/rpc", n.rpc)
	mux.Handle("/ws", n.ws)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"oracleswap"}`))
	})
	rpcServer := &http.Server{Addr: cfg.RPCAddress(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error { return serve(ctx, rpcServer, n.log.WithField("surface", "rpc")) })

	if n.metrics != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, n.metrics.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddress(), Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error { return serve(ctx, metricsServer, n.log.WithField("surface", "metrics")) })
	}

	if cfg.PriceService.Stream {
		g.Go(func() error { return n.ingestStream(ctx) })
	}

	n.log.WithFields(logrus.Fields{
		"rpc":     "http://" + cfg.RPCAddress() + "/",
		"ws":      "ws://" + cfg.RPCAddress() + "/ws",
		"methods": len(n.rpc.Methods()),
	}).Info("oracleswap started")

	err := g.Wait()
	n.ws.CloseAll()
	return err
}

// ingestStream ingests every pushed batch, paying exactly the required fee.
func (n *node) ingestStream(ctx context.Context) error {
	stream, err := pricesvc.NewStream(cfg.PriceService.Config, logger)
	if err != nil {
		return err
	}
	assets := n.pool.Assets()
	ids := []oracle.FeedID{assets[0].Feed, assets[1].Feed}
	log := n.log.WithField("surface", "stream")
	log.WithField("url", stream.URL()).Info("Subscribing to price stream")

	return stream.Run(ctx, ids, cfg.PriceService.RetryInterval, func(batch [][]byte) {
		fee, err := n.pool.UpdateFee(batch)
		if err == nil {
			_, err = n.pool.IngestUpdates(batch, fee)
		}
		if err != nil {
			log.WithError(err).Warn("Rejected streamed price updates")
		}
	})
}

func serve(ctx context.Context, srv *http.Server, log *logrus.Entry) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: %w", srv.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Close releases the journal and storage.
func (n *node) Close() {
	if n.journal != nil {
		if err := n.journal.Close(); err != nil {
			n.log.WithError(err).Warn("Failed to close journal")
		}
	}
	if n.manager != nil {
		if err := n.manager.Close(); err != nil {
			n.log.WithError(err).Warn("Failed to close storage")
		}
	}
}
