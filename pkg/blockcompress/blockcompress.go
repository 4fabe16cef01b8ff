// Package blockcompress implements the "LZ4 block array" compressor spec.md
// names as the reference compressor (§4.2): each call compresses one
// payload as a single LZ4 block, framed with its uncompressed length so
// decompression can size its output buffer without guessing. The block API
// (not the frame/stream API) is used throughout, matching how the pack's
// other storage engines compress individual records or pages.
package blockcompress

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// headerSize is the 4-byte little-endian uncompressed-length prefix placed
// before every compressed block.
const headerSize = 4

// Compress returns data framed as [uncompressedLen uint32][lz4 block]. If
// LZ4 fails to shrink the input (e.g. already-compressed or tiny payloads),
// the block is stored as a verbatim copy behind the same framing so
// Decompress never needs to special-case it.
func Compress(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, bound)

	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(data, compressed)
	if err != nil {
		return nil, fmt.Errorf("blockcompress: compress: %w", err)
	}

	out := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(out, uint32(len(data)))

	if n == 0 || n >= len(data) {
		// Incompressible: store the raw bytes so Decompress's uncompressed
		// length always matches the payload that follows.
		return append(out, data...), nil
	}
	return append(out, compressed[:n]...), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("blockcompress: block too small for header")
	}

	rawLen := binary.LittleEndian.Uint32(data[:headerSize])
	body := data[headerSize:]

	if uint32(len(body)) == rawLen {
		// Stored verbatim (incompressible payload).
		out := make([]byte, rawLen)
		copy(out, body)
		return out, nil
	}

	out := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, fmt.Errorf("blockcompress: decompress: %w", err)
	}
	if uint32(n) != rawLen {
		return nil, fmt.Errorf("blockcompress: decompressed size mismatch: got %d want %d", n, rawLen)
	}
	return out, nil
}
