// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

/*
crypt.go - Streaming Passphrase Encryption

Encrypted artifacts are written as a sequence of AES-256-GCM sealed chunks so
multi-gigabyte dumps never have to fit in memory.

Layout:

	magic "DBWENC1" | salt (16 bytes)
	repeated: flag (1) | length (4, big endian) | nonce (12) | ciphertext

The key is derived from the passphrase with Argon2id. Each chunk's additional
data is its sequence number plus the flag byte; the last chunk carries
flagFinal. Reordered, dropped or truncated chunks therefore fail
authentication.
*/

//nolint:staticcheck // File documentation, not package doc
package artifact

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	encMagic     = "DBWENC1"
	saltSize     = 16
	keySize      = 32
	chunkSize    = 1 << 20
	maxFrameSize = chunkSize + 64

	flagMore  byte = 0
	flagFinal byte = 1
)

// Errors returned while decrypting.
var (
	ErrNotEncrypted  = errors.New("artifact is not in the encrypted format")
	ErrDecryptFailed = errors.New("failed to decrypt artifact (wrong key or corrupted data)")
	ErrTruncated     = errors.New("encrypted artifact is truncated")
)

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, keySize)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func chunkAAD(index uint64, flag byte) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, index)
	aad[8] = flag
	return aad
}

// encryptWriter seals everything written to it.
type encryptWriter struct {
	w     io.Writer
	gcm   cipher.AEAD
	buf   []byte
	index uint64
	done  bool
}

func newEncryptWriter(w io.Writer, passphrase string) (*encryptWriter, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(append([]byte(encMagic), salt...)); err != nil {
		return nil, fmt.Errorf("failed to write encryption header: %w", err)
	}
	return &encryptWriter{w: w, gcm: gcm, buf: make([]byte, 0, chunkSize)}, nil
}

func (e *encryptWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		// A full buffer is only flushed once more data arrives, so the
		// final chunk is always emitted by Close.
		if len(e.buf) == chunkSize {
			if err := e.seal(flagMore); err != nil {
				return 0, err
			}
		}
		take := min(chunkSize-len(e.buf), len(p))
		e.buf = append(e.buf, p[:take]...)
		p = p[take:]
	}
	return n, nil
}

func (e *encryptWriter) seal(flag byte) error {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	ct := e.gcm.Seal(nil, nonce, e.buf, chunkAAD(e.index, flag))

	var hdr [5]byte
	hdr[0] = flag
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(ct))) //nolint:gosec // Bounded by chunkSize

	var frame bytes.Buffer
	frame.Grow(len(hdr) + len(nonce) + len(ct))
	frame.Write(hdr[:])
	frame.Write(nonce)
	frame.Write(ct)
	if _, err := e.w.Write(frame.Bytes()); err != nil {
		return fmt.Errorf("failed to write encrypted chunk: %w", err)
	}

	e.index++
	e.buf = e.buf[:0]
	return nil
}

func (e *encryptWriter) Close() error {
	if e.done {
		return nil
	}
	e.done = true
	return e.seal(flagFinal)
}

// decryptReader opens chunks written by encryptWriter.
type decryptReader struct {
	r     io.Reader
	gcm   cipher.AEAD
	plain []byte
	index uint64
	final bool
}

func newDecryptReader(r io.Reader, passphrase string) (*decryptReader, error) {
	hdr := make([]byte, len(encMagic)+saltSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, ErrNotEncrypted
	}
	if string(hdr[:len(encMagic)]) != encMagic {
		return nil, ErrNotEncrypted
	}
	gcm, err := newGCM(deriveKey(passphrase, hdr[len(encMagic):]))
	if err != nil {
		return nil, err
	}
	return &decryptReader{r: r, gcm: gcm}, nil
}

func (d *decryptReader) Read(p []byte) (int, error) {
	for len(d.plain) == 0 {
		if d.final {
			return 0, io.EOF
		}
		if err := d.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.plain)
	d.plain = d.plain[n:]
	return n, nil
}

func (d *decryptReader) next() error {
	var hdr [5]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncated
		}
		return err
	}
	flag := hdr[0]
	size := binary.BigEndian.Uint32(hdr[1:])
	if (flag != flagMore && flag != flagFinal) || size > maxFrameSize {
		return ErrDecryptFailed
	}

	frame := make([]byte, d.gcm.NonceSize()+int(size))
	if _, err := io.ReadFull(d.r, frame); err != nil {
		return ErrTruncated
	}
	nonce, ct := frame[:d.gcm.NonceSize()], frame[d.gcm.NonceSize():]

	plain, err := d.gcm.Open(nil, nonce, ct, chunkAAD(d.index, flag))
	if err != nil {
		return ErrDecryptFailed
	}

	d.index++
	d.plain = plain
	d.final = flag == flagFinal
	return nil
}
