// Package walog implements two durable-persistence primitives: the
// coordinator's append-only terminal-transaction log and the bank
// participant's graceful-shutdown state snapshot. Both are zstd-compressed
// JSON on disk.
package walog

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compressor wraps a zstd encoder/decoder pair for whole-buffer compression.
type Compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCompressor creates a Compressor at the given zstd level (1-19; out of
// range values fall back to the balanced default).
func NewCompressor(level int) (*Compressor, error) {
	if level < 1 || level > 19 {
		level = 3
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Compressor{enc: enc, dec: dec}, nil
}

// Compress returns the zstd-compressed form of data.
func (c *Compressor) Compress(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	return c.enc.EncodeAll(data, nil)
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode zstd: %w", err)
	}
	return out, nil
}

// Close releases the encoder/decoder.
func (c *Compressor) Close() {
	if c.enc != nil {
		c.enc.Close()
	}
	if c.dec != nil {
		c.dec.Close()
	}
}
