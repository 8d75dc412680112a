// Package workload provides task bodies that exercise every helper task
// kind with real work: brotli source compression, bytecode decoding,
// lexical scanning, stepwise delazification and GC-style sweeping.
package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// MaxDecompressedSize bounds Decompress output.
const MaxDecompressedSize = 64 << 20

// ErrTooLarge is returned when decompressed output exceeds the limit.
var ErrTooLarge = errors.New("workload: decompressed output exceeds limit")

// compressChunk is how much source is written between cancellation checks.
const compressChunk = 64 << 10

// Compress brotli-compresses src. It matches helper.CompressFunc.
func Compress(ctx context.Context, src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)

	for off := 0; off < len(src); off += compressChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(off+compressChunk, len(src))
		if _, err := w.Write(src[off:end]); err != nil {
			return nil, fmt.Errorf("compress: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress, refusing output larger than
// MaxDecompressedSize.
func Decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if len(out) > MaxDecompressedSize {
		return nil, ErrTooLarge
	}
	return out, nil
}
