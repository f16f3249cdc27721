package compression

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4"
)

// MaxDecompressedSize bounds the size a frame may claim.
const MaxDecompressedSize = 64 << 20

// ErrCorrupt is returned for frames that cannot be decoded.
var ErrCorrupt = errors.New("compression: corrupt frame")

// NoCompressor stores data unchanged.
type NoCompressor struct{}

func (NoCompressor) Name() string { return "none" }

func (NoCompressor) Compress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

func (NoCompressor) Decompress(data []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}

const (
	frameStored byte = 0
	frameLZ4    byte = 1
)

// LZ4Compressor writes LZ4 block frames:
//
//	[1 byte kind][uvarint decompressed size][payload]
//
// Incompressible input is stored raw.
type LZ4Compressor struct{}

func (LZ4Compressor) Name() string { return "lz4" }

func (LZ4Compressor) Compress(data []byte) ([]byte, error) {
	header := make([]byte, 1+binary.MaxVarintLen64)
	n := 1 + binary.PutUvarint(header[1:], uint64(len(data)))
	header = header[:n]

	var hashTable [1 << 16]int
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	size, err := lz4.CompressBlock(data, dst, hashTable[:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}

	if size == 0 || size >= len(data) {
		header[0] = frameStored
		return append(header, data...), nil
	}
	header[0] = frameLZ4
	return append(header, dst[:size]...), nil
}

func (LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, ErrCorrupt
	}
	size, n := binary.Uvarint(data[1:])
	if n <= 0 || size > MaxDecompressedSize {
		return nil, ErrCorrupt
	}
	payload := data[1+n:]

	switch data[0] {
	case frameStored:
		if uint64(len(payload)) != size {
			return nil, ErrCorrupt
		}
		return append([]byte(nil), payload...), nil
	case frameLZ4:
		out := make([]byte, size)
		got, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint64(got) != size {
			return nil, ErrCorrupt
		}
		return out, nil
	default:
		return nil, ErrCorrupt
	}
}
