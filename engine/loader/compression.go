package loader

import (
	"bytes"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Compression identifies the envelope a model payload is wrapped in.
type Compression int

const (
	// CompressionNone is a raw model payload.
	CompressionNone Compression = iota
	// CompressionZstd is a zstd frame.
	CompressionZstd
	// CompressionGzip is a gzip member.
	CompressionGzip
)

func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionGzip:
		return "gzip"
	default:
		return "none"
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// compressionSuffixes are stripped from a file name before the format is resolved.
var compressionSuffixes = []string{".zst", ".zstd", ".gz"}

// sniffCompression detects the compression envelope from the leading bytes of a payload.
func sniffCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// decompress unwraps data if it carries a known compression envelope.
//
// Parameters:
//   - data: the raw payload
//
// Returns:
//   - []byte: the uncompressed payload, data itself when uncompressed
//   - Compression: the detected envelope
//   - error: error if the envelope is corrupt
func decompress(data []byte) ([]byte, Compression, error) {
	c := sniffCompression(data)
	switch c {
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, c, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, c, errors.Wrap(err, "zstd")
		}
		return out, c, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, c, errors.Wrap(err, "gzip")
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, c, errors.Wrap(err, "gzip")
		}
		return out, c, nil
	default:
		return data, c, nil
	}
}

// peekCompression detects the compression envelope of a file from its leading bytes.
func peekCompression(path string) (Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return CompressionNone, err
	}
	defer f.Close()

	head := make([]byte, len(zstdMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return CompressionNone, err
	}
	return sniffCompression(head[:n]), nil
}
