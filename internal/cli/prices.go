package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/pricesvc"
)

var priceOverrides map[string]string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Push the latest signed prices from the price service to the pool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := poolFeeds()
		if err != nil {
			return err
		}
		client, err := pricesvc.NewClient(cfg.PriceService.Config, logger)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		fee, err := pricesvc.Refresh(ctx, client, rpcIngester{ctx: ctx, client: clientFromConfig()}, ids)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"feeds": len(ids),
			"fee":   fee.String(),
		})
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Run a local price service signing the configured prices",
	Long: `Run a local price service that signs the configured [publisher] prices
with the publisher key. It serves the latest payloads over HTTP and pushes
fresh ones to WebSocket subscribers every interval.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(fetchCmd, publishCmd)
	publishCmd.Flags().StringToStringVar(&priceOverrides, "price", nil, "override a price, e.g. --price btc=21000")
}

func runPublish(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newPriceServer()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.PublisherAddress(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(ctx, httpServer, logger.WithField("surface", "publisher"))
}

// newPriceServer builds the simulator with a price for each pool asset.
func newPriceServer() (*pricesvc.Server, error) {
	pub, err := cfg.LocalPublisher()
	if err != nil {
		return nil, err
	}
	assets, err := cfg.Assets()
	if err != nil {
		return nil, err
	}
	expo := cfg.Publisher.Expo
	if expo > 0 || expo < -amount.MaxDecimals {
		return nil, fmt.Errorf("publisher.expo must be between -%d and 0, got %d", amount.MaxDecimals, expo)
	}

	srv := pricesvc.NewServer(pub, cfg.Publisher.Interval, logger)
	for _, a := range assets {
		price, ok := cfg.PublisherPrice(a.Symbol)
		for k, v := range priceOverrides {
			if strings.EqualFold(k, a.Symbol) {
				price, ok = v, true
			}
		}
		if !ok {
			return nil, fmt.Errorf("publisher.prices has no price for %s", a.Symbol)
		}
		mantissa, err := priceMantissa(price, expo)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", a.Symbol, err)
		}
		srv.SetPrice(a.Feed, mantissa, expo)
		logger.WithFields(logrus.Fields{
			"asset": a.Symbol,
			"feed":  a.Feed.String(),
			"price": price,
		}).Info("Publishing price")
	}
	logger.WithField("publisher", pub.ID().String()).Info("Price service key")
	return srv, nil
}

// priceMantissa converts a decimal price to a mantissa at expo.
func priceMantissa(price string, expo int32) (int64, error) {
	a, err := amount.ParseUnits(price, uint8(-expo))
	if err != nil {
		return 0, err
	}
	m, ok := a.Uint64()
	if !ok || m == 0 || m > 1<<63-1 {
		return 0, fmt.Errorf("price %q out of range", price)
	}
	return int64(m), nil
}
