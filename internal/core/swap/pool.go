// Package swap prices two-asset swaps from oracle prices and applies them to
// the liquidity ledger.
package swap

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/ledger"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

// Clock supplies the block time for pool operations.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Config describes a pool.
type Config struct {
	Assets [2]Asset
	Oracle oracle.Config
}

// Operation names carried by events.
const (
	OpIngest          = "ingest"
	OpSwap            = "swap"
	OpArbitrate       = "arbitrate"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
)

// LiquidityChange describes a committed deposit or withdrawal.
type LiquidityChange struct {
	Provider string        `json:"provider"`
	AmountA  amount.Amount `json:"amount_a"`
	AmountB  amount.Amount `json:"amount_b"`
	Shares   amount.Amount `json:"shares"`
}

// Event is emitted after every mutating operation, committed or not.
type Event struct {
	Op        string
	Err       error
	Time      time.Time
	Duration  time.Duration
	Fee       amount.Amount
	Receipt   *Receipt
	Liquidity *LiquidityChange
	// State is the post-commit state; nil when Err is set.
	State *State
}

// Observer receives pool events. Observers run under the pool lock, in
// commit order, and must not call back into the pool.
type Observer func(Event)

// State is the persistable pool state.
type State struct {
	Gateway oracle.Snapshot
	Ledger  ledger.Snapshot
}

// Info summarizes the pool.
type Info struct {
	Assets        [2]Asset           `json:"assets"`
	Reserves      ledger.Reserves    `json:"reserves"`
	TotalShares   amount.Amount      `json:"total_shares"`
	Positions     []ledger.Position  `json:"positions"`
	Feeds         []oracle.PriceFeed `json:"feeds"`
	CollectedFees amount.Amount      `json:"collected_fees"`
	FeePerUpdate  amount.Amount      `json:"fee_per_update"`
	Window        time.Duration      `json:"window"`
}

// Pool owns the gateway, the ledger and the engine and applies one
// operation at a time. Every mutating operation is all-or-nothing.
type Pool struct {
	mu        sync.Mutex
	gateway   *oracle.Gateway
	ledger    *ledger.Ledger
	engine    *Engine
	clock     Clock
	observers []Observer
	log       *log.Logger
}

// NewPool creates an empty pool.
func NewPool(cfg Config, clock Clock, logger *log.Logger) (*Pool, error) {
	if cfg.Assets[0].Feed == cfg.Assets[1].Feed {
		return nil, fmt.Errorf("swap: both assets use feed %s", cfg.Assets[0].Feed)
	}
	for _, a := range cfg.Assets {
		if a.Feed.IsZero() {
			return nil, fmt.Errorf("swap: asset %q has no feed", a.Symbol)
		}
		if a.Decimals > amount.MaxDecimals {
			return nil, fmt.Errorf("swap: asset %q has %d decimals, max %d", a.Symbol, a.Decimals, amount.MaxDecimals)
		}
	}
	if clock == nil {
		clock = SystemClock
	}

	oracleCfg := cfg.Oracle
	oracleCfg.Feeds = ensureFeeds(oracleCfg.Feeds, cfg.Assets[0].Feed, cfg.Assets[1].Feed)
	gateway, err := oracle.NewGateway(oracleCfg, logger)
	if err != nil {
		return nil, err
	}
	l := ledger.New(logger)

	return &Pool{
		gateway: gateway,
		ledger:  l,
		engine:  NewEngine(gateway, l, cfg.Assets, logger),
		clock:   clock,
		log:     log.WithModule(logger, "pool"),
	}, nil
}

func ensureFeeds(feeds []oracle.FeedID, required ...oracle.FeedID) []oracle.FeedID {
	out := append([]oracle.FeedID(nil), feeds...)
	for _, r := range required {
		found := false
		for _, f := range out {
			if f == r {
				found = true
				break
			}
		}
		if !found {
			out = append(out, r)
		}
	}
	return out
}

// Subscribe registers an observer.
func (p *Pool) Subscribe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// apply runs fn against a snapshot of the gateway and the ledger and rolls
// both back if fn fails.
func (p *Pool) apply(op string, fn func(now time.Time, ev *Event) error) error {
	start := time.Now()
	now := p.clock.Now()
	gw := p.gateway.Snapshot()
	lg := p.ledger.Snapshot()

	ev := Event{Op: op, Time: now}
	err := fn(now, &ev)
	if err != nil {
		p.gateway.Restore(gw)
		p.ledger.Restore(lg)
		ev.Err = err
		ev.Receipt = nil
		ev.Liquidity = nil
		p.log.WithFields(logrus.Fields{"op": op, "result": err.Error()}).Debug("Operation rolled back")
	} else {
		st := p.state()
		ev.State = &st
	}
	ev.Duration = time.Since(start)

	for _, o := range p.observers {
		o(ev)
	}
	return err
}

// IngestUpdates refreshes the cached prices without swapping.
func (p *Pool) IngestUpdates(batch [][]byte, paid amount.Amount) (amount.Amount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fee amount.Amount
	err := p.apply(OpIngest, func(now time.Time, ev *Event) error {
		var err error
		fee, err = p.gateway.IngestUpdates(batch, paid, now)
		ev.Fee = fee
		return err
	})
	return fee, err
}

// Swap executes req atomically.
func (p *Pool) Swap(req SwapRequest) (Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var r Receipt
	err := p.apply(OpSwap, func(now time.Time, ev *Event) error {
		var err error
		r, err = p.engine.Swap(req, now)
		ev.Receipt, ev.Fee = &r, r.Fee
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// Arbitrate executes req atomically.
func (p *Pool) Arbitrate(req ArbitrageRequest) (Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var r Receipt
	err := p.apply(OpArbitrate, func(now time.Time, ev *Event) error {
		var err error
		r, err = p.engine.Arbitrate(req, now)
		ev.Receipt, ev.Fee = &r, r.Fee
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// AddLiquidity deposits both assets for provider and returns the minted shares.
func (p *Pool) AddLiquidity(provider string, amountA, amountB amount.Amount) (amount.Amount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var shares amount.Amount
	err := p.apply(OpAddLiquidity, func(_ time.Time, ev *Event) error {
		var err error
		shares, err = p.ledger.AddLiquidity(provider, amountA, amountB)
		ev.Liquidity = &LiquidityChange{Provider: provider, AmountA: amountA, AmountB: amountB, Shares: shares}
		return err
	})
	return shares, err
}

// RemoveLiquidity burns provider shares and returns the withdrawn amounts.
func (p *Pool) RemoveLiquidity(provider string, shares amount.Amount) (amount.Amount, amount.Amount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var outA, outB amount.Amount
	err := p.apply(OpRemoveLiquidity, func(_ time.Time, ev *Event) error {
		var err error
		outA, outB, err = p.ledger.RemoveLiquidity(provider, shares)
		ev.Liquidity = &LiquidityChange{Provider: provider, AmountA: outA, AmountB: outB, Shares: shares}
		return err
	})
	return outA, outB, err
}

// QuoteResult is a priced but unexecuted swap.
type QuoteResult struct {
	Direction Direction     `json:"direction"`
	AmountIn  amount.Amount `json:"amount_in"`
	AmountOut amount.Amount `json:"amount_out"`
	PriceA    oracle.Price  `json:"price_a"`
	PriceB    oracle.Price  `json:"price_b"`
}

// Quote prices a swap against the cached prices.
func (p *Pool) Quote(dir Direction, amountIn amount.Amount) (QuoteResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out, pa, pb, err := p.engine.Quote(dir, amountIn, p.clock.Now())
	if err != nil {
		return QuoteResult{}, err
	}
	return QuoteResult{Direction: dir, AmountIn: amountIn, AmountOut: out, PriceA: pa, PriceB: pb}, nil
}

// UpdateFee returns the fee required to ingest batch.
func (p *Pool) UpdateFee(batch [][]byte) (amount.Amount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gateway.UpdateFee(batch)
}

// Price returns the fresh price for id.
func (p *Pool) Price(id oracle.FeedID) (oracle.PriceFeed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gateway.Price(id, p.clock.Now())
}

// PriceUnsafe returns the cached price for id regardless of age.
func (p *Pool) PriceUnsafe(id oracle.FeedID) (oracle.PriceFeed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gateway.PriceUnsafe(id)
}

// Assets returns the pool assets.
func (p *Pool) Assets() [2]Asset {
	return p.engine.Assets()
}

// Info returns a summary of the pool.
func (p *Pool) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		Assets:        p.engine.Assets(),
		Reserves:      p.ledger.Reserves(),
		TotalShares:   p.ledger.TotalShares(),
		Positions:     p.ledger.Positions(),
		Feeds:         p.gateway.Feeds(),
		CollectedFees: p.gateway.CollectedFees(),
		FeePerUpdate:  p.gateway.FeePerUpdate(),
		Window:        p.gateway.Window(),
	}
}

// State returns a copy of the persistable state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state()
}

func (p *Pool) state() State {
	return State{Gateway: p.gateway.Snapshot(), Ledger: p.ledger.Snapshot()}
}

// Restore replaces the pool state, typically with one loaded from storage.
func (p *Pool) Restore(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gateway.Restore(s.Gateway)
	p.ledger.Restore(s.Ledger)
}
