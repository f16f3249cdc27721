// Package ledger tracks pool reserves and liquidity provider shares.
package ledger

import (
	"math/big"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
)

// Reserves are the pool balances of asset A and asset B.
type Reserves struct {
	A amount.Amount `json:"a"`
	B amount.Amount `json:"b"`
}

// Position is a provider's share balance.
type Position struct {
	Provider string        `json:"provider"`
	Shares   amount.Amount `json:"shares"`
}

// Ledger holds reserves and shares. The sum of all positions always equals
// the total share supply. It is not safe for concurrent use.
type Ledger struct {
	reserves Reserves
	total    amount.Amount
	shares   map[string]amount.Amount
	log      *log.Logger
}

// New creates an empty ledger.
func New(logger *log.Logger) *Ledger {
	return &Ledger{
		shares: make(map[string]amount.Amount),
		log:    log.WithModule(logger, "ledger"),
	}
}

// AddLiquidity deposits amountA and amountB and mints shares to provider.
//
// The first deposit mints amountA shares. Later deposits mint
// min(amountA*T/reserveA, amountB*T/reserveB), skipping a leg whose reserve
// is zero.
func (l *Ledger) AddLiquidity(provider string, amountA, amountB amount.Amount) (amount.Amount, error) {
	if provider == "" {
		return amount.Zero(), tx.TemMALFORMED
	}
	if amountA.IsZero() || amountB.IsZero() {
		return amount.Zero(), tx.TemZERO_AMOUNT
	}

	minted, err := l.sharesFor(amountA, amountB)
	if err != nil {
		return amount.Zero(), err
	}
	if minted.IsZero() {
		return amount.Zero(), tx.TemZERO_AMOUNT
	}

	newA, okA := l.reserves.A.Add(amountA)
	newB, okB := l.reserves.B.Add(amountB)
	newTotal, okT := l.total.Add(minted)
	held, okH := l.shares[provider].Add(minted)
	if !okA || !okB || !okT || !okH {
		return amount.Zero(), tx.TemMALFORMED
	}

	l.reserves = Reserves{A: newA, B: newB}
	l.total = newTotal
	l.shares[provider] = held

	l.log.WithFields(logrus.Fields{
		"provider": provider,
		"amount_a": amountA.String(),
		"amount_b": amountB.String(),
		"shares":   minted.String(),
	}).Debug("Liquidity added")
	return minted, nil
}

func (l *Ledger) sharesFor(amountA, amountB amount.Amount) (amount.Amount, error) {
	if l.total.IsZero() || (l.reserves.A.IsZero() && l.reserves.B.IsZero()) {
		return amountA, nil
	}

	var (
		minted amount.Amount
		have   bool
	)
	for _, leg := range []struct{ in, reserve amount.Amount }{
		{amountA, l.reserves.A},
		{amountB, l.reserves.B},
	} {
		if leg.reserve.IsZero() {
			continue
		}
		s, ok := leg.in.MulDiv(l.total, leg.reserve)
		if !ok {
			return amount.Zero(), tx.TemMALFORMED
		}
		if !have || s.Lt(minted) {
			minted, have = s, true
		}
	}
	return minted, nil
}

// RemoveLiquidity burns shares from provider and returns the pro-rata
// reserves, rounded down.
func (l *Ledger) RemoveLiquidity(provider string, shares amount.Amount) (amount.Amount, amount.Amount, error) {
	if provider == "" {
		return amount.Zero(), amount.Zero(), tx.TemMALFORMED
	}
	if shares.IsZero() {
		return amount.Zero(), amount.Zero(), tx.TemZERO_AMOUNT
	}
	held := l.shares[provider]
	if held.Lt(shares) {
		return amount.Zero(), amount.Zero(), tx.TecINSUFFICIENT_SHARES
	}

	outA, okA := l.reserves.A.MulDiv(shares, l.total)
	outB, okB := l.reserves.B.MulDiv(shares, l.total)
	if !okA || !okB {
		return amount.Zero(), amount.Zero(), tx.TefINTERNAL
	}

	newA, _ := l.reserves.A.Sub(outA)
	newB, _ := l.reserves.B.Sub(outB)
	newTotal, _ := l.total.Sub(shares)
	left, _ := held.Sub(shares)

	l.reserves = Reserves{A: newA, B: newB}
	l.total = newTotal
	if left.IsZero() {
		delete(l.shares, provider)
	} else {
		l.shares[provider] = left
	}

	l.log.WithFields(logrus.Fields{
		"provider": provider,
		"shares":   shares.String(),
		"amount_a": outA.String(),
		"amount_b": outB.String(),
	}).Debug("Liquidity removed")
	return outA, outB, nil
}

// ApplySwapDelta adds signed deltas to both reserves. Either both are applied
// or neither is; a reserve that would go negative yields tecINSOLVENT.
func (l *Ledger) ApplySwapDelta(deltaA, deltaB *big.Int) error {
	newA, err := applyDelta(l.reserves.A, deltaA)
	if err != nil {
		return err
	}
	newB, err := applyDelta(l.reserves.B, deltaB)
	if err != nil {
		return err
	}
	l.reserves = Reserves{A: newA, B: newB}
	return nil
}

func applyDelta(reserve amount.Amount, delta *big.Int) (amount.Amount, error) {
	if delta == nil || delta.Sign() == 0 {
		return reserve, nil
	}
	next := new(big.Int).Add(reserve.Big(), delta)
	if next.Sign() < 0 {
		return amount.Zero(), tx.TecINSOLVENT
	}
	out, err := amount.FromBig(next)
	if err != nil {
		return amount.Zero(), tx.TemMALFORMED
	}
	return out, nil
}

// Reserves returns the current reserves.
func (l *Ledger) Reserves() Reserves {
	return l.reserves
}

// TotalShares returns the share supply.
func (l *Ledger) TotalShares() amount.Amount {
	return l.total
}

// Position returns the shares held by provider.
func (l *Ledger) Position(provider string) amount.Amount {
	return l.shares[provider]
}

// Positions returns every non-zero position ordered by provider.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.shares))
	for p, s := range l.shares {
		out = append(out, Position{Provider: p, Shares: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Snapshot is a copy of the ledger state.
type Snapshot struct {
	Reserves  Reserves
	Total     amount.Amount
	Positions []Position
}

// Snapshot copies the ledger state.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{Reserves: l.reserves, Total: l.total, Positions: l.Positions()}
}

// Restore replaces the ledger state with s.
func (l *Ledger) Restore(s Snapshot) {
	l.reserves = s.Reserves
	l.total = s.Total
	l.shares = make(map[string]amount.Amount, len(s.Positions))
	for _, p := range s.Positions {
		if !p.Shares.IsZero() {
			l.shares[p.Provider] = p.Shares
		}
	}
}
