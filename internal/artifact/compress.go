// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

// Package artifact turns a raw pg_dump output file into the stored backup
// artifact and back: optional compression (gzip, zstd, lz4), optional
// passphrase encryption, and the SHA-256 checksum recorded on every backup.
//
// The artifact's encoding is derivable from its filename suffixes
// (.gz/.zst/.lz4 then .enc), so an artifact can always be decoded after the
// configuration has changed.
package artifact

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression algorithm names.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

// compressor provides streaming compression for one algorithm.
type compressor interface {
	Compress(w io.Writer) (io.WriteCloser, error)
	Decompress(r io.Reader) (io.ReadCloser, error)
	Extension() string
}

func newCompressor(algorithm string, level int) (compressor, error) {
	switch algorithm {
	case CompressionNone, "":
		return noopCompressor{}, nil
	case CompressionGzip:
		return gzipCompressor{level: level}, nil
	case CompressionZstd:
		return zstdCompressor{level: level}, nil
	case CompressionLZ4:
		return lz4Compressor{level: level}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// ValidCompression reports whether algorithm is supported.
func ValidCompression(algorithm string) bool {
	_, err := newCompressor(algorithm, 0)
	return err == nil
}

type noopCompressor struct{}

func (noopCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (noopCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (noopCompressor) Extension() string { return "" }

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type gzipCompressor struct {
	level int
}

func (c gzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	level := c.level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return gzip.NewWriterLevel(w, level)
}

func (gzipCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (gzipCompressor) Extension() string { return ".gz" }

type zstdCompressor struct {
	level int
}

func (c zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	level := zstd.SpeedDefault
	switch {
	case c.level <= 0:
	case c.level <= 3:
		level = zstd.SpeedFastest
	case c.level <= 6:
		level = zstd.SpeedDefault
	case c.level <= 8:
		level = zstd.SpeedBetterCompression
	default:
		level = zstd.SpeedBestCompression
	}
	return zstd.NewWriter(w, zstd.WithEncoderLevel(level))
}

func (zstdCompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (zstdCompressor) Extension() string { return ".zst" }

type lz4Compressor struct {
	level int
}

func (c lz4Compressor) Compress(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if c.level > 0 {
		level := lz4.Fast
		switch {
		case c.level <= 3:
			level = lz4.Fast
		case c.level <= 6:
			level = lz4.Level5
		default:
			level = lz4.Level9
		}
		if err := zw.Apply(lz4.CompressionLevelOption(level)); err != nil {
			return nil, fmt.Errorf("failed to set lz4 compression level: %w", err)
		}
	}
	return zw, nil
}

func (lz4Compressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lz4Compressor) Extension() string { return ".lz4" }
