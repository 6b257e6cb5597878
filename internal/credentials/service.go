// Package credentials seals repository secrets (tokens, passwords, SSH
// keys) with AES-GCM before they reach the store.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	EncryptionKeyEnv     = "SPECSYNC_ENCRYPTION_KEY"
	EncryptionKeyFileEnv = "SPECSYNC_ENCRYPTION_KEY_FILE"

	keySize = 32
)

// Service seals and opens repository secrets. The zero value is disabled;
// construct one with NewServiceFromEnv.
type Service struct {
	aead   cipher.AEAD
	source string
}

// NewServiceFromEnv resolves the key and builds the service. An explicit
// SPECSYNC_ENCRYPTION_KEY wins; otherwise the key lives in a file
// (SPECSYNC_ENCRYPTION_KEY_FILE, falling back to defaultKeyPath) that is
// generated with a fresh random key the first time the service starts.
func NewServiceFromEnv(defaultKeyPath string) (*Service, error) {
	key, source, err := resolveKey(defaultKeyPath)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption key rejected: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm setup: %w", err)
	}
	return &Service{aead: aead, source: source}, nil
}

// Enabled reports whether a key was configured.
func (s *Service) Enabled() bool {
	return s != nil && s.aead != nil
}

// KeySource identifies where the key came from, for startup logging.
func (s *Service) KeySource() string {
	if s == nil {
		return ""
	}
	return s.source
}

// Encrypt seals plaintext under a fresh nonce. Ciphertext and nonce are
// stored side by side.
func (s *Service) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	if !s.Enabled() {
		return nil, nil, fmt.Errorf("no encryption key configured (set %s)", EncryptionKeyEnv)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("nonce generation: %w", err)
	}
	return s.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens a sealed secret. Tampered ciphertext fails authentication.
func (s *Service) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("no encryption key configured (set %s)", EncryptionKeyEnv)
	}
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secret could not be opened: %w", err)
	}
	return plaintext, nil
}

func resolveKey(defaultKeyPath string) ([]byte, string, error) {
	if raw := strings.TrimSpace(os.Getenv(EncryptionKeyEnv)); raw != "" {
		key, err := decodeKey(raw, EncryptionKeyEnv)
		if err != nil {
			return nil, "", err
		}
		return key, "env:" + EncryptionKeyEnv, nil
	}

	path := strings.TrimSpace(os.Getenv(EncryptionKeyFileEnv))
	if path == "" {
		path = defaultKeyPath
	}
	if path == "" {
		return nil, "", fmt.Errorf("no encryption key file path configured")
	}
	key, err := keyFromFile(path)
	if err != nil {
		return nil, "", err
	}
	return key, "file:" + path, nil
}

// decodeKey accepts the key as base64 or as raw bytes, either way exactly
// keySize bytes of material.
func decodeKey(value, origin string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) == keySize {
		return decoded, nil
	}
	if len(value) == keySize {
		return []byte(value), nil
	}
	return nil, fmt.Errorf("%s: want %d key bytes, raw or base64", origin, keySize)
}

// keyFromFile reads the key file, creating it with a random key when it
// does not exist yet. Creation is exclusive so two racing processes agree
// on one key.
func keyFromFile(path string) ([]byte, error) {
	existing, err := os.ReadFile(path)
	if err == nil {
		return decodeKey(strings.TrimSpace(string(existing)), path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating key directory: %w", err)
		}
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return keyFromFile(path)
		}
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	_, writeErr := file.WriteString(base64.StdEncoding.EncodeToString(key) + "\n")
	closeErr := file.Close()
	if writeErr != nil {
		return nil, fmt.Errorf("writing key file: %w", writeErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("closing key file: %w", closeErr)
	}
	return key, nil
}

func zeroBytes(value []byte) {
	for i := range value {
		value[i] = 0
	}
}
