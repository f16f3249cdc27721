package testing

import (
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
)

// TokenDecimals is the precision of the test tokens.
const TokenDecimals = 18

// PriceExpo is the exponent used for test prices, so "20000" becomes
// mantissa 2000000000000 at expo -8.
const PriceExpo int32 = -8

// Units converts a token quantity to base units at 18 decimals.
// For example, Units("0.9") returns 900000000000000000.
func Units(s string) amount.Amount {
	return UnitsAt(s, TokenDecimals)
}

// UnitsAt converts a token quantity to base units at the given decimals.
func UnitsAt(s string, decimals uint8) amount.Amount {
	a, err := amount.ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return a
}

// Wei returns n base units.
func Wei(n uint64) amount.Amount {
	return amount.FromUint64(n)
}

// PriceMantissa converts a decimal price such as "1800.00" to a mantissa at PriceExpo.
func PriceMantissa(s string) int64 {
	a, err := amount.ParseUnits(s, uint8(-PriceExpo))
	if err != nil {
		panic(err)
	}
	m, ok := a.Uint64()
	if !ok || m > 1<<63-1 {
		panic("price mantissa overflows int64: " + s)
	}
	return int64(m)
}
