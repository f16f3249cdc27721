package amount

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{"10", 18, "10000000000000000000", false},
		{"0.9", 18, "900000000000000000", false},
		{"1200", 18, "1200000000000000000000", false},
		{".5", 6, "500000", false},
		{"100", 0, "100", false},
		{"0", 18, "0", false},
		{"1.0000001", 6, "", true},
		{"abc", 6, "", true},
		{"", 6, "", true},
		{"1.2.3", 6, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseUnits(tc.in, tc.decimals)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got.String())
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.9", MustParse("900000000000000000").Format(18))
	assert.Equal(t, "10", MustParse("10000000000000000000").Format(18))
	assert.Equal(t, "0.000001", MustParse("1").Format(6))
	assert.Equal(t, "0", Zero().Format(18))
	assert.Equal(t, "12345", MustParse("12345").Format(0))
}

func TestArithmetic(t *testing.T) {
	a := FromUint64(100)
	b := FromUint64(30)

	sum, ok := a.Add(b)
	require.True(t, ok)
	require.Equal(t, "130", sum.String())

	diff, ok := a.Sub(b)
	require.True(t, ok)
	require.Equal(t, "70", diff.String())

	_, ok = b.Sub(a)
	require.False(t, ok, "underflow must be reported")

	max := MustParse("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	_, ok = max.Add(FromUint64(1))
	require.False(t, ok, "overflow must be reported")

	q, ok := a.MulDiv(FromUint64(7), FromUint64(3))
	require.True(t, ok)
	require.Equal(t, "233", q.String())

	_, ok = a.MulDiv(b, Zero())
	require.False(t, ok)

	// 512-bit intermediate product must not overflow.
	q, ok = max.MulDiv(max, max)
	require.True(t, ok)
	require.Equal(t, max, q)

	require.Equal(t, b, Min(a, b))
}

func TestFromBig(t *testing.T) {
	a, err := FromBig(big.NewInt(42))
	require.NoError(t, err)
	require.Equal(t, "42", a.String())

	_, err = FromBig(big.NewInt(-1))
	require.ErrorIs(t, err, ErrNegative)

	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = FromBig(huge)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		Value Amount `json:"value"`
	}
	in := wrapper{Value: MustParse("1200000000000000000000")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"value":"1200000000000000000000"}`, string(data))

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in, out)
}
