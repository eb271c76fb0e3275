package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// NewAEADFromPEM derives an AEAD cipher from client cert PEM content.
// The local cache is only readable by the holder of the certificate.
func NewAEADFromPEM(certPEM []byte) (cipher.AEAD, error) {
	key := sha256.Sum256(certPEM)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}

// Seal encrypts value with a fresh nonce, returning nonce||ciphertext.
func Seal(aead cipher.AEAD, value []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, value, nil), nil
}

// Open decrypts a nonce||ciphertext blob produced by Seal.
func Open(aead cipher.AEAD, blob []byte) ([]byte, error) {
	ns := aead.NonceSize()
	if len(blob) < ns {
		return nil, fmt.Errorf("blob too short")
	}
	value, err := aead.Open(nil, blob[:ns], blob[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return value, nil
}
