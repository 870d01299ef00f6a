package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// KeySize is the size of every symmetric key (AES-256).
const KeySize = 32

// ErrCiphertextTooShort is returned when a blob cannot even hold a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with AES-256-GCM under key. A random nonce is
// prepended to the ciphertext. aad is authenticated but not stored, so the
// same aad must be supplied to Decrypt.
//
// Example:
//
//	blob, err := cryptox.Encrypt(roleKey, []byte("hello"), []byte("field:42"))
//	if err != nil {
//	    return err
//	}
//	plain, err := cryptox.Decrypt(roleKey, blob, []byte("field:42"))
func Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(key, blob, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// EncryptJSON serializes v to JSON and encrypts it with Encrypt.
func EncryptJSON(v any, key, aad []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Encrypt(key, plaintext, aad)
}

// DecryptJSON decrypts blob and unmarshals the JSON into v.
func DecryptJSON(blob, key, aad []byte, v any) error {
	plaintext, err := Decrypt(key, blob, aad)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}
