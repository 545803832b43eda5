// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package artifact

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EncryptedExtension is appended to encrypted artifacts.
const EncryptedExtension = ".enc"

// ErrKeyRequired is returned when decoding an encrypted artifact without a key.
var ErrKeyRequired = errors.New("artifact is encrypted but no encryption key is configured")

// Options selects how new artifacts are encoded.
type Options struct {
	Compression   string
	Level         int
	EncryptionKey string // empty disables encryption
}

// Encoding describes how a stored artifact was encoded.
type Encoding struct {
	Compression string
	Encrypted   bool
}

// Identity reports whether the artifact is the raw dump file.
func (e Encoding) Identity() bool {
	return (e.Compression == CompressionNone || e.Compression == "") && !e.Encrypted
}

// Codec encodes dumps into artifacts and decodes them back.
type Codec struct {
	opts Options
	comp compressor
}

// NewCodec validates opts and returns a Codec.
func NewCodec(opts Options) (*Codec, error) {
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}
	comp, err := newCompressor(opts.Compression, opts.Level)
	if err != nil {
		return nil, err
	}
	return &Codec{opts: opts, comp: comp}, nil
}

// Encoding returns the encoding applied to new artifacts.
func (c *Codec) Encoding() Encoding {
	return Encoding{Compression: c.opts.Compression, Encrypted: c.opts.EncryptionKey != ""}
}

// Extension returns the suffix appended to the dump extension, e.g. ".zst.enc".
func (c *Codec) Extension() string {
	ext := c.comp.Extension()
	if c.opts.EncryptionKey != "" {
		ext += EncryptedExtension
	}
	return ext
}

// Encode compresses then encrypts src into dst.
func (c *Codec) Encode(src io.Reader, dst io.Writer) error {
	var sink io.Writer = dst
	var enc *encryptWriter
	if c.opts.EncryptionKey != "" {
		var err error
		if enc, err = newEncryptWriter(dst, c.opts.EncryptionKey); err != nil {
			return err
		}
		sink = enc
	}

	cw, err := c.comp.Compress(sink)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	if _, err := io.Copy(cw, src); err != nil {
		cw.Close() //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to flush compressor: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return err
		}
	}
	return nil
}

// EncodeFile encodes srcPath into dstPath. dstPath is removed on failure.
func (c *Codec) EncodeFile(srcPath, dstPath string) (err error) {
	in, err := os.Open(srcPath) //nolint:gosec // Path built from the backup directory
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	defer in.Close() //nolint:errcheck // Read-only file

	return writeFileAtomic(dstPath, func(w io.Writer) error {
		return c.Encode(bufio.NewReaderSize(in, 256*1024), w)
	})
}

// DetectEncoding derives an artifact's encoding from its filename.
func DetectEncoding(filename string) Encoding {
	enc := Encoding{Compression: CompressionNone}
	name := filename
	if strings.HasSuffix(name, EncryptedExtension) {
		enc.Encrypted = true
		name = strings.TrimSuffix(name, EncryptedExtension)
	}
	switch filepath.Ext(name) {
	case ".gz":
		enc.Compression = CompressionGzip
	case ".zst":
		enc.Compression = CompressionZstd
	case ".lz4":
		enc.Compression = CompressionLZ4
	}
	return enc
}

// StripEncoding removes compression and encryption suffixes.
func StripEncoding(filename string) string {
	name := strings.TrimSuffix(filename, EncryptedExtension)
	for _, ext := range []string{".gz", ".zst", ".lz4"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

type decodedReader struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedReader) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open returns a reader over the plain dump stored at path. The encoding is
// taken from the filename.
func Open(path, key string) (io.ReadCloser, error) {
	enc := DetectEncoding(filepath.Base(path))
	if enc.Encrypted && key == "" {
		return nil, ErrKeyRequired
	}

	f, err := os.Open(path) //nolint:gosec // Path built from the backup directory
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	d := &decodedReader{Reader: bufio.NewReaderSize(f, 256*1024), closers: []io.Closer{f}}

	if enc.Encrypted {
		dr, err := newDecryptReader(d.Reader, key)
		if err != nil {
			d.Close() //nolint:errcheck // Best effort cleanup
			return nil, err
		}
		d.Reader = dr
	}

	comp, err := newCompressor(enc.Compression, 0)
	if err != nil {
		d.Close() //nolint:errcheck // Best effort cleanup
		return nil, err
	}
	rc, err := comp.Decompress(d.Reader)
	if err != nil {
		d.Close() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("failed to open decompressor: %w", err)
	}
	d.Reader = rc
	d.closers = append(d.closers, rc)

	return d, nil
}

// DecodeFile writes the plain dump stored at srcPath to dstPath.
func DecodeFile(srcPath, dstPath, key string) error {
	rc, err := Open(srcPath, key)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck // Read-only stream

	return writeFileAtomic(dstPath, func(w io.Writer) error {
		if _, err := io.Copy(w, rc); err != nil {
			return fmt.Errorf("failed to decode artifact: %w", err)
		}
		return nil
	})
}

func writeFileAtomic(path string, fill func(io.Writer) error) error {
	tmp := path + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // Path built from the backup directory
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}

	bw := bufio.NewWriterSize(out, 256*1024)
	if err := fill(bw); err != nil {
		out.Close()    //nolint:errcheck // Best effort cleanup
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return err
	}
	if err := bw.Flush(); err != nil {
		out.Close()    //nolint:errcheck // Best effort cleanup
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to flush %s: %w", filepath.Base(path), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Checksum returns the hex SHA-256 of everything read from r.
func Checksum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileChecksum returns the hex SHA-256 of the file at path.
func FileChecksum(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // Path built from the backup directory
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	sum, err := Checksum(f)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return sum, nil
}
