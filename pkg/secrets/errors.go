package secrets

import "errors"

var (
	ErrInvalidKey          = errors.New("invalid encryption key: must be 32 bytes")
	ErrEmptyScope          = errors.New("encryption scope must not be empty")
	ErrEncryptionFailed    = errors.New("encryption failed")
	ErrDecryptionFailed    = errors.New("decryption failed")
	ErrInvalidCiphertext   = errors.New("invalid ciphertext format")
	ErrKeyDerivationFailed = errors.New("key derivation failed")
)
