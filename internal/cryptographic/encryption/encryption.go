package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the conversation key length: AES-256.
const KeySize = 32

// ErrUndecryptable is the sentinel for any decryption failure: bad key, bad
// tag, malformed input. Callers render a placeholder instead of failing.
var ErrUndecryptable = errors.New("undecryptable")

func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("rand.Read key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext under key with a fresh random 96-bit IV and returns
// ciphertext and IV as separate base64 strings, the form the wire carries.
// The IV is never reused for a key: it is drawn from crypto/rand per call.
func Encrypt(plaintext string, key []byte) (ciphertext, iv string, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return "", "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", fmt.Errorf("rand.Read nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed),
		base64.StdEncoding.EncodeToString(nonce), nil
}

// Decrypt is the inverse of Encrypt. Every failure mode collapses into
// ErrUndecryptable: ciphertext correctness cannot be remedied here.
func Decrypt(ciphertext, iv string, key []byte) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrUndecryptable
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", ErrUndecryptable
	}
	aead, err := newGCM(key)
	if err != nil {
		return "", ErrUndecryptable
	}
	if len(nonce) != aead.NonceSize() {
		return "", ErrUndecryptable
	}
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrUndecryptable
	}
	return string(plain), nil
}

// Seal encrypts data under key and returns nonce || ciphertext as one blob.
// Used for at-rest storage where the nonce travels with the record.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand.Read nonce: %w", err)
	}
	return append(nonce, aead.Seal(nil, nonce, plaintext, nil)...), nil
}

func Open(key, nonceAndCiphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ns := aead.NonceSize()
	if len(nonceAndCiphertext) < ns {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plain, err := aead.Open(nil, nonceAndCiphertext[:ns], nonceAndCiphertext[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("aead.Open: %w", err)
	}
	return plain, nil
}
