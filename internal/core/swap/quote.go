package swap

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
)

// Direction is the side of a swap.
type Direction int

const (
	// AToB sells asset A into the pool for asset B.
	AToB Direction = iota
	// BToA sells asset B into the pool for asset A.
	BToA
)

func (d Direction) String() string {
	switch d {
	case AToB:
		return "a_to_b"
	case BToA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Valid reports whether d is AToB or BToA.
func (d Direction) Valid() bool {
	return d == AToB || d == BToA
}

// ParseDirection accepts "a_to_b" / "b_to_a" and the short forms "ab" / "ba".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a_to_b", "ab", "atob":
		return AToB, nil
	case "b_to_a", "ba", "btoa":
		return BToA, nil
	default:
		return 0, fmt.Errorf("invalid direction %q", s)
	}
}

// MarshalText encodes the direction name.
func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction name.
func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Asset describes one side of the pool.
type Asset struct {
	Symbol   string        `json:"symbol"`
	Decimals uint8         `json:"decimals"`
	Feed     oracle.FeedID `json:"feed"`
}

// Quote prices amountIn of the input asset in units of the output asset:
//
//	out = floor(in * pIn * 10^(eIn - eOut + decOut - decIn) / pOut)
//
// computed exactly on big integers.
func Quote(dir Direction, amountIn amount.Amount, priceA, priceB oracle.Price, assets [2]Asset) (amount.Amount, error) {
	if !dir.Valid() {
		return amount.Zero(), tx.TemMALFORMED
	}
	pIn, pOut := priceA, priceB
	decIn, decOut := assets[0].Decimals, assets[1].Decimals
	if dir == BToA {
		pIn, pOut = priceB, priceA
		decIn, decOut = decOut, decIn
	}
	if pIn.Mantissa <= 0 || pOut.Mantissa <= 0 {
		return amount.Zero(), tx.TemMALFORMED
	}

	num := new(big.Int).Mul(amountIn.Big(), big.NewInt(pIn.Mantissa))
	den := big.NewInt(pOut.Mantissa)

	shift := int64(pIn.Expo) - int64(pOut.Expo) + int64(decOut) - int64(decIn)
	if shift >= 0 {
		num.Mul(num, pow10(shift))
	} else {
		den.Mul(den, pow10(-shift))
	}

	out, err := amount.FromBig(num.Quo(num, den))
	if err != nil {
		return amount.Zero(), tx.TemMALFORMED
	}
	return out, nil
}

// reserveValues returns the oracle values of both reserves scaled to a
// common power of ten so they can be compared directly.
func reserveValues(reserveA, reserveB amount.Amount, priceA, priceB oracle.Price, assets [2]Asset) (*big.Int, *big.Int) {
	vA := new(big.Int).Mul(reserveA.Big(), big.NewInt(priceA.Mantissa))
	vB := new(big.Int).Mul(reserveB.Big(), big.NewInt(priceB.Mantissa))

	sA := int64(priceA.Expo) - int64(assets[0].Decimals)
	sB := int64(priceB.Expo) - int64(assets[1].Decimals)
	if sA > sB {
		vA.Mul(vA, pow10(sA-sB))
	} else if sB > sA {
		vB.Mul(vB, pow10(sB-sA))
	}
	return vA, vB
}

func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}
