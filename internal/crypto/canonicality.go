package crypto

import (
	"math/big"
)

// Canonicality represents the canonicality status of a DER-encoded ECDSA signature.
type Canonicality int

const (
	// CanonicityNone indicates the signature is not canonical (invalid format or out of range).
	CanonicityNone Canonicality = iota
	// CanonicityCanonical indicates both (R, S) and (R, N-S) would verify.
	CanonicityCanonical
	// CanonicityFullyCanonical indicates S <= N/2.
	CanonicityFullyCanonical
)

var (
	// secp256k1Order is the order N of the secp256k1 group.
	secp256k1Order = func() *big.Int {
		n, _ := new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
		return n
	}()

	secp256k1HalfOrder = new(big.Int).Rsh(secp256k1Order, 1)
)

// ECDSACanonicality checks a DER-encoded secp256k1 signature:
//
//	0x30 <total-len> 0x02 <r-len> <r> 0x02 <s-len> <s>
//
// R and S must be minimally encoded and in [1, N-1]. A fully canonical
// signature additionally has a low S value. Price payloads only accept fully
// canonical signatures so every update body has exactly one valid encoding.
func ECDSACanonicality(sig []byte) Canonicality {
	if len(sig) < 8 || len(sig) > 72 {
		return CanonicityNone
	}
	if sig[0] != 0x30 || int(sig[1]) != len(sig)-2 {
		return CanonicityNone
	}

	rBytes, rest, ok := parseDERInteger(sig[2:])
	if !ok {
		return CanonicityNone
	}
	sBytes, rest, ok := parseDERInteger(rest)
	if !ok || len(rest) != 0 {
		return CanonicityNone
	}

	r := new(big.Int).SetBytes(rBytes)
	s := new(big.Int).SetBytes(sBytes)
	if !inGroupRange(r) || !inGroupRange(s) {
		return CanonicityNone
	}
	if s.Cmp(secp256k1HalfOrder) <= 0 {
		return CanonicityFullyCanonical
	}
	return CanonicityCanonical
}

// IsFullyCanonical is shorthand for ECDSACanonicality(sig) == CanonicityFullyCanonical.
func IsFullyCanonical(sig []byte) bool {
	return ECDSACanonicality(sig) == CanonicityFullyCanonical
}

func inGroupRange(v *big.Int) bool {
	return v.Sign() > 0 && v.Cmp(secp256k1Order) < 0
}

// parseDERInteger parses 0x02 <length> <integer-bytes> and returns the integer
// bytes and the remaining data.
func parseDERInteger(data []byte) ([]byte, []byte, bool) {
	if len(data) < 2 || data[0] != 0x02 {
		return nil, nil, false
	}

	length := int(data[1])
	if length < 1 || length > 33 || len(data) < 2+length {
		return nil, nil, false
	}
	intBytes := data[2 : 2+length]

	// Negative integers are not allowed.
	if intBytes[0]&0x80 != 0 {
		return nil, nil, false
	}
	// A leading zero is only allowed when the next byte has its high bit set.
	if intBytes[0] == 0 && (length == 1 || intBytes[1]&0x80 == 0) {
		return nil, nil, false
	}

	return intBytes, data[2+length:], true
}
