// Package compress decodes compressed export files.
//
// Exports arrive as plain JSON or wrapped in gzip or ZSTD. The algorithm is
// taken from the file extension and, failing that, from the stream's magic
// bytes.
//
// Example usage:
//
//	rc, err := compress.NewReader(f, compress.DetectFromName(path))
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
package compress

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// AlgorithmZSTD is the Zstandard compression algorithm.
	AlgorithmZSTD Algorithm = "zstd"

	// AlgorithmGzip is the gzip compression algorithm.
	AlgorithmGzip Algorithm = "gzip"

	// AlgorithmNone indicates no compression.
	AlgorithmNone Algorithm = "none"

	// AlgorithmAuto sniffs the stream's magic bytes.
	AlgorithmAuto Algorithm = "auto"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Level represents compression level.
type Level int

const (
	LevelFastest Level = 1
	LevelDefault Level = 3
	LevelBest    Level = 9
)

// DetectFromName picks the algorithm from a path or object name extension.
// Unknown extensions yield AlgorithmAuto.
func DetectFromName(name string) Algorithm {
	switch strings.ToLower(path.Ext(name)) {
	case ".gz", ".gzip":
		return AlgorithmGzip
	case ".zst", ".zstd":
		return AlgorithmZSTD
	case ".json", ".jsonl":
		return AlgorithmNone
	default:
		return AlgorithmAuto
	}
}

// DetectFromMagic picks the algorithm from the first bytes of a stream.
func DetectFromMagic(header []byte) Algorithm {
	switch {
	case bytes.HasPrefix(header, zstdMagic):
		return AlgorithmZSTD
	case bytes.HasPrefix(header, gzipMagic):
		return AlgorithmGzip
	default:
		return AlgorithmNone
	}
}

// NewReader wraps r with a decoder for algo. Closing the returned reader
// releases the decoder but not r.
func NewReader(r io.Reader, algo Algorithm) (io.ReadCloser, error) {
	if algo == AlgorithmAuto {
		br := bufio.NewReader(r)
		header, err := br.Peek(len(zstdMagic))
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return nil, fmt.Errorf("sniff compression: %w", err)
		}
		algo = DetectFromMagic(header)
		r = br
	}

	switch algo {
	case AlgorithmZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader error: %w", err)
		}
		return dec.IOReadCloser(), nil
	case AlgorithmGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader error: %w", err)
		}
		return zr, nil
	case AlgorithmNone:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}

// Compressor compresses whole payloads. Used to write export fixtures and
// archived copies of ingested files.
type Compressor struct {
	algorithm Algorithm
	level     Level

	zstdEncoderPool sync.Pool
}

// NewCompressor creates a new compressor with the specified algorithm and level.
func NewCompressor(algorithm Algorithm, level Level) *Compressor {
	c := &Compressor{
		algorithm: algorithm,
		level:     level,
	}

	if algorithm == AlgorithmZSTD {
		c.zstdEncoderPool = sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(int(level))))
				return enc
			},
		}
	}

	return c
}

// Algorithm returns the compression algorithm.
func (c *Compressor) Algorithm() Algorithm {
	return c.algorithm
}

// Compress compresses the input data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZSTD:
		enc := c.zstdEncoderPool.Get().(*zstd.Encoder)
		defer c.zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil

	case AlgorithmGzip:
		var buf bytes.Buffer
		level := gzip.DefaultCompression
		if c.level <= LevelFastest {
			level = gzip.BestSpeed
		} else if c.level >= LevelBest {
			level = gzip.BestCompression
		}
		w, err := gzip.NewWriterLevel(&buf, level)
		if err != nil {
			return nil, fmt.Errorf("gzip writer error: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip write error: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close error: %w", err)
		}
		return buf.Bytes(), nil

	case AlgorithmNone:
		return data, nil

	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// Decompress decompresses the input data.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	rc, err := NewReader(bytes.NewReader(data), c.algorithm)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%s decompress error: %w", c.algorithm, err)
	}
	return out, nil
}
