package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// keySalt is fixed so the same secret always yields the same key across restarts.
var keySalt = []byte("az-grouppost/documents/v1")

// ErrUnavailable is returned by Encrypt/Decrypt when no secret was configured.
var ErrUnavailable = errors.New("encryption is not configured")

// Provider encrypts and decrypts opaque byte payloads with AES-256-GCM.
type Provider struct {
	key []byte
}

// NewProvider derives the AES key from secret with argon2id. An empty secret
// yields a provider whose Available reports false.
func NewProvider(secret string) *Provider {
	if secret == "" {
		return &Provider{}
	}
	return &Provider{key: argon2.IDKey([]byte(secret), keySalt, 1, 64*1024, 4, 32)}
}

// Available reports whether payloads can actually be encrypted.
func (p *Provider) Available() bool {
	return p != nil && len(p.key) == 32
}

// Encrypt returns nonce||ciphertext.
func (p *Provider) Encrypt(plain []byte) ([]byte, error) {
	if !p.Available() {
		return nil, ErrUnavailable
	}

	gcm, err := p.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plain, nil), nil
}

// Decrypt reverses Encrypt.
func (p *Provider) Decrypt(data []byte) ([]byte, error) {
	if !p.Available() {
		return nil, ErrUnavailable
	}

	gcm, err := p.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short (%d bytes)", len(data))
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (p *Provider) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
