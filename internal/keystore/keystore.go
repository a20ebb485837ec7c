package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lrnchat/internal/cryptographic/encryption"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/hkdf"
)

// Keystore holds one symmetric conversation key per conversation id,
// generated on this device and never sent to the relay. Keys are wrapped at
// rest with a key derived from the user's passphrase.
type Keystore struct {
	db      *bolt.DB
	wrapKey []byte
}

var (
	bucketKeys = []byte("conversation_keys")
	bucketMeta = []byte("meta")
	saltKey    = []byte("kdf_salt")
)

var ErrBadKeyEncoding = errors.New("keystore: bad key encoding")

// DefaultPath places the keystore under the user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lrnchat", "keystore.db"), nil
}

func Open(path, passphrase string) (*Keystore, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("keystore: open %s: %w", path, err)
	}

	var salt []byte
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketKeys); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if existing := meta.Get(saltKey); existing != nil {
			salt = append([]byte(nil), existing...)
			return nil
		}
		salt = make([]byte, 16)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return err
		}
		return meta.Put(saltKey, salt)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("keystore: init: %w", err)
	}

	wrapKey := make([]byte, encryption.KeySize)
	h := hkdf.New(sha256.New, []byte(passphrase), salt, []byte("lrnchat keystore"))
	if _, err := io.ReadFull(h, wrapKey); err != nil {
		db.Close()
		return nil, fmt.Errorf("keystore: derive wrap key: %w", err)
	}

	return &Keystore{db: db, wrapKey: wrapKey}, nil
}

func (k *Keystore) Close() error {
	return k.db.Close()
}

// KeyFor returns the conversation's key, generating and persisting a fresh
// 256-bit key on first use.
func (k *Keystore) KeyFor(conversationID string) ([]byte, error) {
	var key []byte
	err := k.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketKeys)
		if wrapped := bucket.Get([]byte(conversationID)); wrapped != nil {
			unwrapped, err := encryption.Open(k.wrapKey, wrapped)
			if err != nil {
				return fmt.Errorf("unwrap key for %s: %w", conversationID, err)
			}
			key = unwrapped
			return nil
		}

		fresh, err := encryption.GenerateKey()
		if err != nil {
			return err
		}
		wrapped, err := encryption.Seal(k.wrapKey, fresh)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(conversationID), wrapped); err != nil {
			return err
		}
		key = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// ExportKey returns the conversation key in its portable base64 encoding, so
// it can be carried to another device out of band.
func (k *Keystore) ExportKey(conversationID string) (string, error) {
	key, err := k.KeyFor(conversationID)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// ImportKey installs a key exported elsewhere, replacing any local key for
// that conversation.
func (k *Keystore) ImportKey(conversationID, encoded string) error {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != encryption.KeySize {
		return ErrBadKeyEncoding
	}
	wrapped, err := encryption.Seal(k.wrapKey, key)
	if err != nil {
		return err
	}
	return k.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeys).Put([]byte(conversationID), wrapped)
	})
}
