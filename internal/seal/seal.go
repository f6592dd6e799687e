// Package seal wraps XChaCha20-Poly1305 authenticated encryption and argon2id
// key derivation for values persisted at rest by keystore backends and the
// reference service.
package seal

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of a sealing key in bytes.
const KeySize = chacha20poly1305.KeySize

// SaltSize is the salt length used by DeriveKey callers.
const SaltSize = 16

var (
	// ErrKeySize is returned when a key is not exactly KeySize bytes.
	ErrKeySize = errors.New("seal: invalid key size")
	// ErrCiphertext is returned when a box is truncated or fails authentication.
	ErrCiphertext = errors.New("seal: ciphertext invalid")
)

// KDFParams tunes argon2id. Zero values fall back to DefaultKDFParams.
type KDFParams struct {
	Time        uint32
	MemoryKB    uint32
	Parallelism uint8
}

// DefaultKDFParams are sized for interactive unlock on a laptop-class device.
var DefaultKDFParams = KDFParams{
	Time:        2,
	MemoryKB:    64 * 1024,
	Parallelism: 2,
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveKey stretches a passphrase into a sealing key.
func DeriveKey(passphrase, salt []byte, p KDFParams) []byte {
	if p.Time == 0 {
		p.Time = DefaultKDFParams.Time
	}
	if p.MemoryKB == 0 {
		p.MemoryKB = DefaultKDFParams.MemoryKB
	}
	if p.Parallelism == 0 {
		p.Parallelism = DefaultKDFParams.Parallelism
	}
	return argon2.IDKey(passphrase, salt, p.Time, p.MemoryKB, p.Parallelism, KeySize)
}

// Seal encrypts plaintext and returns nonce||ciphertext. aad is bound to the
// box but not stored in it.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out, plaintext, aad), nil
}

// Open reverses Seal.
func Open(key, box, aad []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(box) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCiphertext
	}

	nonce, ct := box[:aead.NonceSize()], box[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, ErrCiphertext
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	return chacha20poly1305.NewX(key)
}
