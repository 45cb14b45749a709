// Package crypto implements password-based AES-256-GCM stream encryption
// for snapshot archives. Data is sealed in 64KB chunks, each with a nonce
// derived from a random base nonce and a chunk counter.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the size of the PBKDF2 salt.
	SaltSize = 32
	// KeySize is the AES-256 key size.
	KeySize = 32
	// NonceSize is the GCM nonce size.
	NonceSize = 12
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100000

	chunkSize = 64 * 1024
)

// magic identifies encrypted snapshot archives.
var magic = []byte("BCTL-ENC")

// Header carries the key-derivation salt and the base nonce of an
// encrypted archive.
type Header struct {
	Salt  []byte
	Nonce []byte
}

// DeriveKey derives an AES key from a password using PBKDF2-SHA256.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}

// chunkNonce derives the per-chunk nonce by XORing the chunk counter into
// the tail of the base nonce. Encryption and decryption must use the same
// derivation.
func chunkNonce(base []byte, counter uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[len(nonce)-1-i] ^= byte(counter >> (8 * i))
	}
	return nonce
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptReader wraps a plaintext reader and yields sealed chunks.
type EncryptReader struct {
	reader    io.Reader
	gcm       cipher.AEAD
	baseNonce []byte
	counter   uint64
	buffer    []byte
	pending   []byte
	eof       bool
}

// NewEncryptReader creates an encrypting reader and the header that must be
// written before the encrypted stream.
func NewEncryptReader(r io.Reader, password string) (*EncryptReader, *Header, error) {
	salt, err := randomBytes(SaltSize)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return nil, nil, err
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, nil, err
	}

	return &EncryptReader{
		reader:    r,
		gcm:       gcm,
		baseNonce: nonce,
		buffer:    make([]byte, chunkSize),
	}, &Header{Salt: salt, Nonce: nonce}, nil
}

// Read implements io.Reader over the sealed stream.
func (er *EncryptReader) Read(p []byte) (int, error) {
	if er.eof && len(er.pending) == 0 {
		return 0, io.EOF
	}

	if len(er.pending) > 0 {
		n := copy(p, er.pending)
		er.pending = er.pending[n:]
		return n, nil
	}

	// Fill a whole chunk regardless of how the source fragments its
	// reads, so every sealed chunk except the last has a fixed size.
	n, err := io.ReadFull(er.reader, er.buffer)
	switch err {
	case nil:
	case io.ErrUnexpectedEOF:
		er.eof = true
	case io.EOF:
		er.eof = true
		return 0, io.EOF
	default:
		return 0, err
	}

	er.pending = er.gcm.Seal(nil, chunkNonce(er.baseNonce, er.counter), er.buffer[:n], nil)
	er.counter++

	copied := copy(p, er.pending)
	er.pending = er.pending[copied:]
	return copied, nil
}

// DecryptReader wraps a sealed stream and yields plaintext chunks.
type DecryptReader struct {
	reader    io.Reader
	gcm       cipher.AEAD
	baseNonce []byte
	counter   uint64
	buffer    []byte
	pending   []byte
	eof       bool
}

// NewDecryptReader creates a decrypting reader using the salt and nonce
// from a previously read header.
func NewDecryptReader(r io.Reader, password string, header *Header) (*DecryptReader, error) {
	gcm, err := newGCM(password, header.Salt)
	if err != nil {
		return nil, err
	}

	baseNonce := make([]byte, len(header.Nonce))
	copy(baseNonce, header.Nonce)

	return &DecryptReader{
		reader:    r,
		gcm:       gcm,
		baseNonce: baseNonce,
		buffer:    make([]byte, chunkSize+gcm.Overhead()),
	}, nil
}

// Read implements io.Reader over the plaintext stream. Sealed chunks are
// reassembled with io.ReadFull, so the source may fragment its reads at
// any boundary (buffered peeks, network readers).
func (dr *DecryptReader) Read(p []byte) (int, error) {
	if dr.eof && len(dr.pending) == 0 {
		return 0, io.EOF
	}

	if len(dr.pending) > 0 {
		n := copy(p, dr.pending)
		dr.pending = dr.pending[n:]
		return n, nil
	}

	n, err := io.ReadFull(dr.reader, dr.buffer)
	switch err {
	case nil:
	case io.ErrUnexpectedEOF:
		// Final short chunk.
		dr.eof = true
	case io.EOF:
		dr.eof = true
		return 0, io.EOF
	default:
		return 0, err
	}

	plain, err := dr.gcm.Open(nil, chunkNonce(dr.baseNonce, dr.counter), dr.buffer[:n], nil)
	if err != nil {
		return 0, fmt.Errorf("decryption failed: %w", err)
	}
	dr.pending = plain
	dr.counter++

	copied := copy(p, dr.pending)
	dr.pending = dr.pending[copied:]
	return copied, nil
}

// WriteHeader writes the magic bytes, format version and header fields.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(magic); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if _, err := w.Write(header.Salt); err != nil {
		return fmt.Errorf("failed to write salt: %w", err)
	}
	if _, err := w.Write(header.Nonce); err != nil {
		return fmt.Errorf("failed to write nonce: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the encryption header.
func ReadHeader(r io.Reader) (*Header, error) {
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(r, got); err != nil {
		return nil, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(got) != string(magic) {
		return nil, fmt.Errorf("not an encrypted snapshot archive")
	}

	version := make([]byte, 1)
	if _, err := io.ReadFull(r, version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version[0] != 1 {
		return nil, fmt.Errorf("unsupported encryption version: %d", version[0])
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	return &Header{Salt: salt, Nonce: nonce}, nil
}

// IsEncrypted reports whether data starts with the encryption magic.
func IsEncrypted(data []byte) bool {
	return len(data) >= len(magic) && string(data[:len(magic)]) == string(magic)
}
