// Package codec handles optional stage-file compression and encryption.
// Compression is applied while a stage is written; encryption seals the
// finished file. Import recognizes both by file suffix and decodes
// transparently.
package codec

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies a stage-file compression algorithm.
type Compression string

const (
	// CompressionNone writes plain SQL text
	CompressionNone Compression = "none"
	// CompressionGzip uses the standard library gzip codec
	CompressionGzip Compression = "gzip"
	// CompressionLZ4 favors speed over ratio
	CompressionLZ4 Compression = "lz4"
	// CompressionZstd favors ratio at reasonable speed
	CompressionZstd Compression = "zstd"
)

// ParseCompression validates an operator-supplied algorithm name.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case CompressionNone, "":
		return CompressionNone, nil
	case CompressionGzip, CompressionLZ4, CompressionZstd:
		return Compression(name), nil
	default:
		return CompressionNone, fmt.Errorf("unsupported compression algorithm %q", name)
	}
}

// Suffix returns the file name suffix the algorithm appends to a stage file.
func (c Compression) Suffix() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionLZ4:
		return ".lz4"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// ForPath detects the compression algorithm from a file name, ignoring a
// trailing encryption suffix.
func ForPath(path string) Compression {
	base := strings.TrimSuffix(path, ".enc")
	switch {
	case strings.HasSuffix(base, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(base, ".lz4"):
		return CompressionLZ4
	case strings.HasSuffix(base, ".zst"):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// NewWriter wraps w with the compressing writer for the algorithm. The
// returned writer must be closed to flush the codec's trailer; closing it
// does not close w.
func (c Compression) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionNone, "":
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", c)
	}
}

// NewReader wraps r with the decompressing reader for the algorithm.
func (c Compression) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gr, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %q", c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
