// Package phi provides authenticated field-level encryption for Protected
// Health Information, key material handling and decrypt-access auditing.
package phi

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/ehr/recordstore/internal/platform/storeerr"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce (IV) length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// Cipher seals plaintext into an opaque, storable envelope and opens it again.
// Implementations must be safe for concurrent use.
type Cipher interface {
	Seal(plaintext []byte) (string, error)
	Open(envelope string) ([]byte, error)
}

// Envelope is the decoded form of a stored PHI value.
type Envelope struct {
	IV         []byte
	Tag        []byte
	Ciphertext []byte
}

// Encode returns the base64 blob iv || tag || ciphertext.
func (e Envelope) Encode() string {
	buf := make([]byte, 0, len(e.IV)+len(e.Tag)+len(e.Ciphertext))
	buf = append(buf, e.IV...)
	buf = append(buf, e.Tag...)
	buf = append(buf, e.Ciphertext...)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeEnvelope parses a base64 blob produced by Envelope.Encode. Malformed or
// truncated input is reported as an integrity failure.
func DecodeEnvelope(blob string) (Envelope, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return Envelope{}, storeerr.Integrity("envelope is not valid base64", err)
	}
	if len(data) < NonceSize+TagSize {
		return Envelope{}, storeerr.Integrity(fmt.Sprintf("envelope truncated to %d bytes", len(data)), nil)
	}
	return Envelope{
		IV:         data[:NonceSize],
		Tag:        data[NonceSize : NonceSize+TagSize],
		Ciphertext: data[NonceSize+TagSize:],
	}, nil
}

// EnvelopeCipher implements Cipher with AES-256-GCM, a fresh 96-bit random IV
// per Seal and a 128-bit tag.
type EnvelopeCipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewEnvelopeCipher creates a cipher for the given 32-byte key.
func NewEnvelopeCipher(key []byte) (*EnvelopeCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("phi cipher: key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("phi cipher: create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, fmt.Errorf("phi cipher: create GCM: %w", err)
	}

	return &EnvelopeCipher{aead: aead, rand: rand.Reader}, nil
}

// Seal encrypts plaintext and returns the encoded envelope.
func (c *EnvelopeCipher) Seal(plaintext []byte) (string, error) {
	env, err := c.SealEnvelope(plaintext)
	if err != nil {
		return "", err
	}
	return env.Encode(), nil
}

// SealEnvelope encrypts plaintext and returns the envelope parts.
func (c *EnvelopeCipher) SealEnvelope(plaintext []byte) (Envelope, error) {
	iv := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return Envelope{}, fmt.Errorf("phi seal: generate iv: %w", err)
	}

	// GCM appends the tag to the ciphertext.
	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - TagSize
	return Envelope{
		IV:         iv,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

// Open decodes and authenticates an envelope and returns the plaintext.
func (c *EnvelopeCipher) Open(blob string) ([]byte, error) {
	env, err := DecodeEnvelope(blob)
	if err != nil {
		return nil, err
	}
	return c.OpenEnvelope(env)
}

// OpenEnvelope authenticates and decrypts env.
func (c *EnvelopeCipher) OpenEnvelope(env Envelope) ([]byte, error) {
	if len(env.IV) != NonceSize || len(env.Tag) != TagSize {
		return nil, storeerr.Integrity("envelope has wrong iv or tag length", nil)
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := c.aead.Open(nil, env.IV, sealed, nil)
	if err != nil {
		return nil, storeerr.Integrity("authentication failed", err)
	}
	return plaintext, nil
}
