package secretstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfInfo   = "keyscrub-local-file-v1"
	minKeySize = 16
)

// deriveKey stretches arbitrary key material into an AES-256 key with HKDF.
func deriveKey(material []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, material, nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func loadKeyMaterial(cfg *EncryptionConfig) ([]byte, error) {
	if cfg.KeyEnv != "" {
		if v := os.Getenv(cfg.KeyEnv); v != "" {
			return []byte(v), nil
		}
		return nil, fmt.Errorf("key env var %s is empty or not set", cfg.KeyEnv)
	}
	if cfg.KeyFile == "" {
		return nil, errors.New("no key source provided; set encryption.key_env or encryption.key_file")
	}
	info, err := os.Stat(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("stat key file: %w", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("key file %s is too permissive (%#o); run: chmod 600 %s", cfg.KeyFile, info.Mode().Perm(), cfg.KeyFile)
	}
	data, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if len(data) < minKeySize {
		return nil, fmt.Errorf("key file %s is too short (%d bytes); use at least %d bytes of random data", cfg.KeyFile, len(data), minKeySize)
	}
	return data, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	size := gcm.NonceSize()
	if len(ciphertext) < size {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, ciphertext[:size], ciphertext[size:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// GenerateKeyFile writes 32 random bytes to path with owner-only permissions.
func GenerateKeyFile(path string) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate random key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
