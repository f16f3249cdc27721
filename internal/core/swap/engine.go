package swap

import (
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/ledger"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

// SwapRequest is a user swap. MinAmountOut of zero disables the slippage guard.
type SwapRequest struct {
	Direction    Direction
	AmountIn     amount.Amount
	MinAmountOut amount.Amount
	Updates      [][]byte
	Fee          amount.Amount
}

// ArbitrageRequest rebalances the pool toward the asset it is short of.
type ArbitrageRequest struct {
	AmountIn amount.Amount
	Updates  [][]byte
	Fee      amount.Amount
}

// Receipt describes a committed swap or arbitrage.
type Receipt struct {
	Kind      string          `json:"kind"`
	Direction Direction       `json:"direction"`
	AmountIn  amount.Amount   `json:"amount_in"`
	AmountOut amount.Amount   `json:"amount_out"`
	Fee       amount.Amount   `json:"fee"`
	Refund    amount.Amount   `json:"refund"`
	PriceA    oracle.Price    `json:"price_a"`
	PriceB    oracle.Price    `json:"price_b"`
	Reserves  ledger.Reserves `json:"reserves"`
	Time      time.Time       `json:"time"`
	// Noop is set when arbitrage found a balanced pool and moved nothing.
	Noop bool `json:"noop,omitempty"`
}

const (
	KindSwap      = "swap"
	KindArbitrage = "arbitrate"
)

// Engine prices swaps from the gateway and applies them to the ledger.
// It mutates state in place; Pool provides the all-or-nothing wrapper.
type Engine struct {
	gateway *oracle.Gateway
	ledger  *ledger.Ledger
	assets  [2]Asset
	log     *log.Logger
}

// NewEngine creates an engine over gateway and ledger.
func NewEngine(gateway *oracle.Gateway, l *ledger.Ledger, assets [2]Asset, logger *log.Logger) *Engine {
	return &Engine{
		gateway: gateway,
		ledger:  l,
		assets:  assets,
		log:     log.WithModule(logger, "swap"),
	}
}

// Assets returns the pool assets.
func (e *Engine) Assets() [2]Asset {
	return e.assets
}

// Prices reads both asset prices, failing if either is unknown or stale.
func (e *Engine) Prices(now time.Time) (oracle.Price, oracle.Price, error) {
	a, err := e.gateway.Price(e.assets[0].Feed, now)
	if err != nil {
		return oracle.Price{}, oracle.Price{}, err
	}
	b, err := e.gateway.Price(e.assets[1].Feed, now)
	if err != nil {
		return oracle.Price{}, oracle.Price{}, err
	}
	return a.Price, b.Price, nil
}

// Quote prices a swap against the cached prices without ingesting updates.
func (e *Engine) Quote(dir Direction, amountIn amount.Amount, now time.Time) (amount.Amount, oracle.Price, oracle.Price, error) {
	pa, pb, err := e.Prices(now)
	if err != nil {
		return amount.Zero(), pa, pb, err
	}
	out, err := Quote(dir, amountIn, pa, pb, e.assets)
	return out, pa, pb, err
}

// Swap ingests the attached updates, prices the swap, checks slippage and
// moves the reserves by (+in, -out). An output that floors to zero is
// rejected with temZERO_AMOUNT.
func (e *Engine) Swap(req SwapRequest, now time.Time) (Receipt, error) {
	if !req.Direction.Valid() {
		return Receipt{}, tx.TemMALFORMED
	}
	if req.AmountIn.IsZero() {
		return Receipt{}, tx.TemZERO_AMOUNT
	}

	fee, err := e.gateway.IngestUpdates(req.Updates, req.Fee, now)
	if err != nil {
		return Receipt{}, err
	}
	out, pa, pb, err := e.Quote(req.Direction, req.AmountIn, now)
	if err != nil {
		return Receipt{}, err
	}
	if !req.MinAmountOut.IsZero() && out.Lt(req.MinAmountOut) {
		e.log.WithFields(logrus.Fields{
			"amount_out": out.String(),
			"min_out":    req.MinAmountOut.String(),
		}).Debug("Swap rejected by slippage guard")
		return Receipt{}, tx.TecSLIPPAGE
	}
	if out.IsZero() {
		return Receipt{}, tx.TemZERO_AMOUNT
	}
	if err := e.move(req.Direction, req.AmountIn, out); err != nil {
		return Receipt{}, err
	}

	return e.receipt(KindSwap, req.Direction, req.AmountIn, out, fee, req.Fee, pa, pb, now), nil
}

// Arbitrate sells AmountIn of whichever asset has the smaller oracle-valued
// reserve. A balanced pool keeps the ingested prices and moves nothing.
func (e *Engine) Arbitrate(req ArbitrageRequest, now time.Time) (Receipt, error) {
	if req.AmountIn.IsZero() {
		return Receipt{}, tx.TemZERO_AMOUNT
	}

	fee, err := e.gateway.IngestUpdates(req.Updates, req.Fee, now)
	if err != nil {
		return Receipt{}, err
	}
	pa, pb, err := e.Prices(now)
	if err != nil {
		return Receipt{}, err
	}

	res := e.ledger.Reserves()
	vA, vB := reserveValues(res.A, res.B, pa, pb, e.assets)
	var dir Direction
	switch vA.Cmp(vB) {
	case 0:
		r := e.receipt(KindArbitrage, AToB, amount.Zero(), amount.Zero(), fee, req.Fee, pa, pb, now)
		r.Noop = true
		return r, nil
	case -1:
		dir = AToB
	default:
		dir = BToA
	}

	out, err := Quote(dir, req.AmountIn, pa, pb, e.assets)
	if err != nil {
		return Receipt{}, err
	}
	if out.IsZero() {
		return Receipt{}, tx.TemZERO_AMOUNT
	}
	if err := e.move(dir, req.AmountIn, out); err != nil {
		return Receipt{}, err
	}
	return e.receipt(KindArbitrage, dir, req.AmountIn, out, fee, req.Fee, pa, pb, now), nil
}

func (e *Engine) move(dir Direction, in, out amount.Amount) error {
	plus := in.Big()
	minus := new(big.Int).Neg(out.Big())
	if dir == AToB {
		return e.ledger.ApplySwapDelta(plus, minus)
	}
	return e.ledger.ApplySwapDelta(minus, plus)
}

func (e *Engine) receipt(kind string, dir Direction, in, out, fee, paid amount.Amount, pa, pb oracle.Price, now time.Time) Receipt {
	refund, _ := paid.Sub(fee)
	r := Receipt{
		Kind:      kind,
		Direction: dir,
		AmountIn:  in,
		AmountOut: out,
		Fee:       fee,
		Refund:    refund,
		PriceA:    pa,
		PriceB:    pb,
		Reserves:  e.ledger.Reserves(),
		Time:      now,
	}
	e.log.WithFields(logrus.Fields{
		"kind":       kind,
		"direction":  dir.String(),
		"amount_in":  in.String(),
		"amount_out": out.String(),
		"fee":        fee.String(),
	}).Debug("Swap applied")
	return r
}
