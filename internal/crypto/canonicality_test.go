package crypto

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lowSSignature = "304402206878b5690514437a2342405029426cc2b25b4a03fc396fef845d656cf62bad2c022018610a8d37f65ad02af907c8cb8f72becd0de43de7d5f42fefccb6c2a391a67c"

func TestECDSACanonicality(t *testing.T) {
	tests := []struct {
		name     string
		sig      string
		expected Canonicality
	}{
		{"Fully canonical signature", lowSSignature, CanonicityFullyCanonical},
		{"Minimal valid signature", "3006020101020101", CanonicityFullyCanonical},
		{"Invalid sequence tag", "3106020100020100", CanonicityNone},
		{"Wrong total length", "3007020100020100", CanonicityNone},
		{"Empty signature", "", CanonicityNone},
		{"Zero R", "300602010002010a", CanonicityNone},
		{"Negative R", "3006020180020101", CanonicityNone},
		{"Trailing bytes", "300702010102010100", CanonicityNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := hex.DecodeString(tt.sig)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ECDSACanonicality(sig))
		})
	}
}

func TestECDSACanonicality_HighS(t *testing.T) {
	sig, err := hex.DecodeString(lowSSignature)
	require.NoError(t, err)

	// Rebuild the signature with S' = N - S.
	r := sig[4 : 4+32]
	s := new(big.Int).SetBytes(sig[4+32+2:])
	highS := new(big.Int).Sub(secp256k1Order, s).Bytes()
	require.Len(t, highS, 32)
	require.NotZero(t, highS[0]&0x80, "N-S must need a padding byte")

	malleated := []byte{0x30, 0x45, 0x02, 0x20}
	malleated = append(malleated, r...)
	malleated = append(malleated, 0x02, 0x21, 0x00)
	malleated = append(malleated, highS...)

	assert.Equal(t, CanonicityCanonical, ECDSACanonicality(malleated))
	assert.False(t, IsFullyCanonical(malleated))
	assert.True(t, IsFullyCanonical(sig))
}

func TestParseDERInteger(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		expectValue bool
		expectLen   int
	}{
		{"Valid single byte integer", "020101", true, 1},
		{"Valid multi-byte integer", "02030102ff", true, 3},
		{"Valid integer with leading zero (high bit set)", "020200ff", true, 2},
		{"Invalid - unnecessary leading zero", "0202007f", false, 0},
		{"Invalid - wrong tag", "030101", false, 0},
		{"Invalid - too short", "02", false, 0},
		{"Invalid - length exceeds data", "020501", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := hex.DecodeString(tt.data)
			result, _, ok := parseDERInteger(data)
			assert.Equal(t, tt.expectValue, ok)
			if ok {
				assert.Equal(t, tt.expectLen, len(result))
			}
		})
	}
}
