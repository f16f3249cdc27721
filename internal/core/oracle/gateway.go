// Package oracle ingests signed price update payloads and serves the latest
// trusted price for each tracked feed.
package oracle

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
	"github.com/AntoineMrtl/oracle-swap-back/internal/crypto"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

// Config holds the gateway parameters.
type Config struct {
	// Feeds are the tracked feeds. Updates for other feeds are ignored.
	Feeds             []FeedID
	Window            time.Duration
	MaxFutureSkew     time.Duration
	FeePerUpdate      amount.Amount
	TrustedPublishers []crypto.PublisherID
	VerifyCacheSize   int
}

// DefaultConfig returns a config tracking the BTC/USD and ETH/USD feeds.
// TrustedPublishers must still be filled in.
func DefaultConfig() Config {
	return Config{
		Feeds:           []FeedID{FeedBTCUSD, FeedETHUSD},
		Window:          DefaultWindow,
		MaxFutureSkew:   DefaultMaxFutureSkew,
		FeePerUpdate:    amount.FromUint64(1),
		VerifyCacheSize: DefaultVerifyCacheSize,
	}
}

// Gateway owns the cached price feeds and the collected update fees.
// It is not safe for concurrent use; callers serialize access.
type Gateway struct {
	cfg       Config
	verifier  *Verifier
	tracked   map[FeedID]struct{}
	feeds     map[FeedID]Price
	collected amount.Amount
	log       *log.Logger
}

// NewGateway creates a gateway with an empty price cache.
func NewGateway(cfg Config, logger *log.Logger) (*Gateway, error) {
	if len(cfg.Feeds) == 0 {
		return nil, fmt.Errorf("oracle: no tracked feeds")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("oracle: freshness window must be positive")
	}
	if cfg.MaxFutureSkew < 0 {
		return nil, fmt.Errorf("oracle: max future skew must not be negative")
	}
	verifier, err := NewVerifier(cfg.TrustedPublishers, cfg.VerifyCacheSize)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:      cfg,
		verifier: verifier,
		tracked:  make(map[FeedID]struct{}, len(cfg.Feeds)),
		feeds:    make(map[FeedID]Price, len(cfg.Feeds)),
		log:      log.WithModule(logger, "oracle"),
	}
	for _, id := range cfg.Feeds {
		g.tracked[id] = struct{}{}
	}
	return g, nil
}

// IngestUpdates validates a batch of payloads, charges the update fee and
// refreshes the cached feeds. It returns the fee charged. On any error the
// cache and the fee balance are left unchanged.
func (g *Gateway) IngestUpdates(batch [][]byte, paid amount.Amount, now time.Time) (amount.Amount, error) {
	payloads, err := decodeBatch(batch)
	if err != nil {
		g.log.WithField("payloads", len(batch)).Warn("Rejected malformed price update batch")
		return amount.Zero(), err
	}

	for i, p := range payloads {
		if _, err := g.verifier.Verify(p.env); err != nil {
			g.log.WithFields(logrus.Fields{
				"payload":   i,
				"publisher": crypto.CalcPublisherID(p.env.PublisherKey).String(),
			}).Warn("Rejected price update signature")
			return amount.Zero(), err
		}
	}

	fee, err := g.feeFor(countUpdates(payloads))
	if err != nil {
		return amount.Zero(), err
	}
	if paid.Lt(fee) {
		return amount.Zero(), tx.TecINSUFFICIENT_FEE
	}

	oldest := now.Add(-g.cfg.Window)
	newest := now.Add(g.cfg.MaxFutureSkew)
	for _, p := range payloads {
		for _, u := range p.body.Updates {
			pt := u.Price().PublishTime
			if pt.After(newest) {
				g.log.WithFields(logrus.Fields{"feed": u.FeedID.String(), "publish_time": pt}).Warn("Rejected price update from the future")
				return amount.Zero(), tx.TemMALFORMED
			}
			if pt.Before(oldest) {
				g.log.WithFields(logrus.Fields{"feed": u.FeedID.String(), "publish_time": pt}).Warn("Rejected stale price update")
				return amount.Zero(), tx.TecSTALE_PRICE
			}
		}
	}

	collected, ok := g.collected.Add(fee)
	if !ok {
		return amount.Zero(), tx.TefINTERNAL
	}

	for _, p := range payloads {
		for _, u := range p.body.Updates {
			if !g.IsTracked(u.FeedID) {
				continue
			}
			price := u.Price()
			if cur, ok := g.feeds[u.FeedID]; ok && !price.PublishTime.After(cur.PublishTime) {
				continue
			}
			g.feeds[u.FeedID] = price
			g.log.WithFields(logrus.Fields{
				"feed":         u.FeedID.String(),
				"price":        price.Mantissa,
				"expo":         price.Expo,
				"publish_time": price.PublishTime,
			}).Debug("Price feed updated")
		}
	}
	g.collected = collected
	return fee, nil
}

// UpdateFee returns the fee IngestUpdates would charge for batch.
func (g *Gateway) UpdateFee(batch [][]byte) (amount.Amount, error) {
	payloads, err := decodeBatch(batch)
	if err != nil {
		return amount.Zero(), err
	}
	return g.feeFor(countUpdates(payloads))
}

func (g *Gateway) feeFor(updates uint64) (amount.Amount, error) {
	fee, ok := g.cfg.FeePerUpdate.MulDiv(amount.FromUint64(updates), amount.FromUint64(1))
	if !ok {
		return amount.Zero(), tx.TemMALFORMED
	}
	return fee, nil
}

// Price returns the cached price for id if it is within the freshness window at now.
func (g *Gateway) Price(id FeedID, now time.Time) (PriceFeed, error) {
	feed, err := g.PriceUnsafe(id)
	if err != nil {
		return feed, err
	}
	if feed.Price.PublishTime.Before(now.Add(-g.cfg.Window)) {
		return feed, tx.TecSTALE_PRICE
	}
	return feed, nil
}

// PriceUnsafe returns the cached price for id regardless of its age.
func (g *Gateway) PriceUnsafe(id FeedID) (PriceFeed, error) {
	p, ok := g.feeds[id]
	if !ok {
		return PriceFeed{ID: id}, tx.TecUNKNOWN_FEED
	}
	return PriceFeed{ID: id, Price: p}, nil
}

// IsTracked reports whether updates for id are cached.
func (g *Gateway) IsTracked(id FeedID) bool {
	_, ok := g.tracked[id]
	return ok
}

// CollectedFees returns the total fee charged so far.
func (g *Gateway) CollectedFees() amount.Amount {
	return g.collected
}

// FeePerUpdate returns the configured per-update fee.
func (g *Gateway) FeePerUpdate() amount.Amount {
	return g.cfg.FeePerUpdate
}

// Window returns the freshness window.
func (g *Gateway) Window() time.Duration {
	return g.cfg.Window
}

// Feeds returns every cached feed, ordered by id.
func (g *Gateway) Feeds() []PriceFeed {
	out := make([]PriceFeed, 0, len(g.feeds))
	for id, p := range g.feeds {
		out = append(out, PriceFeed{ID: id, Price: p})
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].ID[:]) < string(out[j].ID[:])
	})
	return out
}

// Snapshot is a copy of the gateway's mutable state.
type Snapshot struct {
	Feeds     []PriceFeed
	Collected amount.Amount
}

// Snapshot copies the cached feeds and the fee balance.
func (g *Gateway) Snapshot() Snapshot {
	return Snapshot{Feeds: g.Feeds(), Collected: g.collected}
}

// Restore replaces the gateway state with s. Feeds that are not tracked are dropped.
func (g *Gateway) Restore(s Snapshot) {
	g.feeds = make(map[FeedID]Price, len(s.Feeds))
	for _, f := range s.Feeds {
		if g.IsTracked(f.ID) {
			g.feeds[f.ID] = f.Price
		}
	}
	g.collected = s.Collected
}
