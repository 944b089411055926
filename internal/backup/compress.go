package backup

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Compression methods selectable in config.
const (
	MethodZstd = "zstd"
	MethodGzip = "gzip"
	MethodNone = "none"
)

// CompressionExt returns the filename suffix for a method.
func CompressionExt(method string) string {
	switch method {
	case MethodZstd:
		return ".zst"
	case MethodGzip:
		return ".gz"
	default:
		return ""
	}
}

// MethodForFile derives the compression method from a filename, used on the
// restore path where only the manifest's backup_file is known.
func MethodForFile(name string) string {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return MethodZstd
	case strings.HasSuffix(name, ".gz"):
		return MethodGzip
	default:
		return MethodNone
	}
}

// NewCompressor wraps w with the requested compression method. The returned
// WriteCloser must be closed to flush; closing it does not close w.
func NewCompressor(method string, w io.Writer) (io.WriteCloser, error) {
	switch method {
	case MethodZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return enc, nil
	case MethodGzip:
		return pgzip.NewWriter(w), nil
	case MethodNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unknown compression method %q", method)
	}
}

// NewDecompressor wraps r with the decoder matching method.
func NewDecompressor(method string, r io.Reader) (io.ReadCloser, error) {
	switch method {
	case MethodZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case MethodGzip:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return gz, nil
	case MethodNone:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unknown compression method %q", method)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// countWriter counts bytes flowing through it; used to record uncompressed
// and compressed sizes in one pass.
type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
