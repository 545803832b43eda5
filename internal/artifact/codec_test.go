// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package artifact

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func dumpLikeContent(size int) []byte {
	var b bytes.Buffer
	b.WriteString("--\n-- PostgreSQL database dump\n--\n\nSET statement_timeout = 0;\n")
	for b.Len() < size {
		b.WriteString("INSERT INTO public.orders VALUES (1, 'widget', 42.00);\n")
	}
	return b.Bytes()
}

func TestEncodeDecodeFile(t *testing.T) {
	t.Parallel()

	// Larger than one encryption chunk so the multi-chunk path is exercised.
	plain := dumpLikeContent(chunkSize + 4096)

	tests := []struct {
		name string
		opts Options
		ext  string
	}{
		{"gzip", Options{Compression: CompressionGzip}, ".gz"},
		{"zstd encrypted", Options{Compression: CompressionZstd, Level: 9, EncryptionKey: "correct horse battery staple"}, ".zst.enc"},
		{"lz4", Options{Compression: CompressionLZ4, Level: 5}, ".lz4"},
		{"encrypted only", Options{EncryptionKey: "k"}, ".enc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			src := writeTemp(t, dir, "dump.sql", plain)

			codec, err := NewCodec(tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if codec.Extension() != tt.ext {
				t.Errorf("expected extension %q, got %q", tt.ext, codec.Extension())
			}

			stored := filepath.Join(dir, "backup.sql"+codec.Extension())
			if err := codec.EncodeFile(src, stored); err != nil {
				t.Fatalf("encode failed: %v", err)
			}

			enc := DetectEncoding(filepath.Base(stored))
			if enc != codec.Encoding() {
				t.Errorf("expected detected encoding %+v, got %+v", codec.Encoding(), enc)
			}

			out := filepath.Join(dir, "restored.sql")
			if err := DecodeFile(stored, out, tt.opts.EncryptionKey); err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			got, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("failed to read decoded file: %v", err)
			}
			if !bytes.Equal(got, plain) {
				t.Errorf("decoded content differs: got %d bytes, want %d", len(got), len(plain))
			}
			if _, err := os.Stat(stored + ".part"); !os.IsNotExist(err) {
				t.Error("expected no leftover .part file")
			}
		})
	}
}

func TestDecryptWrongKey(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := writeTemp(t, dir, "dump.sql", []byte("SELECT 1;\n"))

	codec, _ := NewCodec(Options{EncryptionKey: "right"})
	stored := filepath.Join(dir, "dump.sql.enc")
	if err := codec.EncodeFile(src, stored); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	rc, err := Open(stored, "wrong")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer rc.Close()

	if _, err := io.ReadAll(rc); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("expected ErrDecryptFailed, got %v", err)
	}

	if _, err := Open(stored, ""); !errors.Is(err, ErrKeyRequired) {
		t.Errorf("expected ErrKeyRequired, got %v", err)
	}
}

func TestDecryptTruncated(t *testing.T) {
	t.Parallel()

	plain := make([]byte, chunkSize+100)
	rand.Read(plain)

	var buf bytes.Buffer
	w, err := newEncryptWriter(&buf, "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Write(plain)
	w.Close()

	full := buf.Bytes()
	// Drop the final chunk entirely; the first chunk alone must not read as complete.
	firstFrameEnd := len(encMagic) + saltSize + 5 + 12 + chunkSize + 16
	r, err := newDecryptReader(bytes.NewReader(full[:firstFrameEnd]), "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := io.ReadAll(r); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestEmptyPlaintextEncrypts(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, _ := newEncryptWriter(&buf, "pw")
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := newDecryptReader(&buf, "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty plaintext, got %d bytes (%v)", len(got), err)
	}
}

func TestNotEncrypted(t *testing.T) {
	t.Parallel()

	if _, err := newDecryptReader(strings.NewReader("PGDMP not encrypted at all"), "pw"); !errors.Is(err, ErrNotEncrypted) {
		t.Errorf("expected ErrNotEncrypted, got %v", err)
	}
}

func TestChecksumStability(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	data := dumpLikeContent(64 * 1024)
	path := writeTemp(t, dir, "backup.dump", data)

	first, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected stable checksum, got %s then %s", first, second)
	}

	data[len(data)/2] ^= 0x01
	writeTemp(t, dir, "backup.dump", data)
	mutated, err := FileChecksum(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mutated == first {
		t.Error("expected checksum to change after mutating one byte")
	}
}

func TestDetectEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want Encoding
		base string
	}{
		{"backup_1.0_pg16_host_20260101T000000Z.dump", Encoding{Compression: CompressionNone}, "backup_1.0_pg16_host_20260101T000000Z.dump"},
		{"x.sql.gz", Encoding{Compression: CompressionGzip}, "x.sql"},
		{"x.dump.zst.enc", Encoding{Compression: CompressionZstd, Encrypted: true}, "x.dump"},
		{"x.sql.lz4", Encoding{Compression: CompressionLZ4}, "x.sql"},
	}

	for _, tt := range tests {
		if got := DetectEncoding(tt.name); got != tt.want {
			t.Errorf("DetectEncoding(%s): expected %+v, got %+v", tt.name, tt.want, got)
		}
		if got := StripEncoding(tt.name); got != tt.base {
			t.Errorf("StripEncoding(%s): expected %s, got %s", tt.name, tt.base, got)
		}
	}

	if !DetectEncoding("a.sql").Identity() || DetectEncoding("a.sql.enc").Identity() {
		t.Error("unexpected Identity result")
	}
}

func TestUnsupportedCompression(t *testing.T) {
	t.Parallel()

	if _, err := NewCodec(Options{Compression: "brotli"}); err == nil {
		t.Error("expected error for unsupported compression")
	}
	if ValidCompression("brotli") || !ValidCompression(CompressionZstd) {
		t.Error("unexpected ValidCompression result")
	}
}
