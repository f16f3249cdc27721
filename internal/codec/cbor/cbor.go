// Package cbor wraps the canonical CBOR handle shared by price payloads and
// persisted pool snapshots.
package cbor

import (
	"fmt"

	"github.com/ugorji/go/codec"
)

var handle = newHandle()

func newHandle() *codec.CborHandle {
	h := &codec.CborHandle{}
	// Canonical mode sorts map keys so equal values always encode to equal bytes.
	h.Canonical = true
	h.ErrorIfNoField = true
	return h
}

// Marshal encodes v as canonical CBOR.
func Marshal(v any) ([]byte, error) {
	var out []byte
	if err := codec.NewEncoderBytes(&out, handle).Encode(v); err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	return out, nil
}

// Unmarshal decodes CBOR data into v. Unknown struct fields are rejected.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("cbor decode: empty input")
	}
	if err := codec.NewDecoderBytes(data, handle).Decode(v); err != nil {
		return fmt.Errorf("cbor decode: %w", err)
	}
	return nil
}
