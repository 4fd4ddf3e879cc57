package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the master key length (AES-256).
const KeySize = 32

const derivationInfo = "shopseo-access-token-v1"

// Config carries the master key, base64 encoded.
type Config struct {
	MasterKey string `env:"TOKEN_ENCRYPTION_KEY,required"`
}

// Sealer encrypts short secrets (shop access tokens) with AES-GCM under a
// key derived per scope from a master key. A ciphertext sealed for one shop
// cannot be opened under another.
type Sealer struct {
	master []byte
}

// NewSealer validates the master key and returns a Sealer.
func NewSealer(master []byte) (*Sealer, error) {
	if len(master) != KeySize {
		return nil, ErrInvalidKey
	}
	key := make([]byte, KeySize)
	copy(key, master)
	return &Sealer{master: key}, nil
}

// NewSealerFromConfig decodes cfg.MasterKey and builds a Sealer.
func NewSealerFromConfig(cfg Config) (*Sealer, error) {
	raw, err := base64.StdEncoding.DecodeString(cfg.MasterKey)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return NewSealer(raw)
}

// Seal encrypts plaintext for scope and returns base64(nonce|ciphertext|tag).
func (s *Sealer) Seal(scope, plaintext string) (string, error) {
	aead, err := s.aead(scope)
	if err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Join(ErrEncryptionFailed, err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(scope))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(scope, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}
	aead, err := s.aead(scope)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, []byte(scope))
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

func (s *Sealer) aead(scope string) (cipher.AEAD, error) {
	if scope == "" {
		return nil, ErrEmptyScope
	}
	key := make([]byte, KeySize)
	defer clear(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.master, []byte(scope), []byte(derivationInfo)), key); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateKey returns a random master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
