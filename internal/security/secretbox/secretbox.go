// Package secretbox seals short secrets (the provider client_secret in
// config files) with AES-256-GCM. The cipher key is derived from the
// master key with HKDF-SHA256 using a fixed purpose label, so the same
// master key can later serve other purposes without key reuse.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	masterKeyEnvVar   = "SECRETBOX_MASTER_KEY"
	nonceSizeGCM      = 12 // recommended AES-GCM nonce size (96 bits)
	requiredKeyLength = 32 // 32 bytes => AES-256
	sep               = "|" // base64(nonce)|base64(ciphertext)

	purposeConfigSecrets = "fedgate/config-secrets/v1"
)

var (
	masterKey     []byte
	masterKeyOnce sync.Once
	loadErr       error
	mu            sync.RWMutex
)

// ensureLoaded reads the master key from SECRETBOX_MASTER_KEY (base64) once.
func ensureLoaded() error {
	masterKeyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(masterKeyEnvVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s not set; generate one with: openssl rand -base64 32", masterKeyEnvVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", masterKeyEnvVar, err)
			return
		}
		if len(k) != requiredKeyLength {
			loadErr = fmt.Errorf("%s must decode to %d bytes, got %d", masterKeyEnvVar, requiredKeyLength, len(k))
			return
		}
		mu.Lock()
		masterKey = make([]byte, len(k))
		copy(masterKey, k)
		mu.Unlock()
	})
	return loadErr
}

// Ready reports whether the master key is loaded (for config diagnostics).
func Ready() bool {
	mu.RLock()
	defer mu.RUnlock()
	return len(masterKey) == requiredKeyLength
}

// deriveKey expands the master key into a purpose-bound AES key.
func deriveKey(purpose string) ([]byte, error) {
	mu.RLock()
	master := make([]byte, len(masterKey))
	copy(master, masterKey)
	mu.RUnlock()

	out := make([]byte, requiredKeyLength)
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}

// Encrypt seals plainText and returns base64(nonce)|base64(ciphertext).
func Encrypt(plainText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	key, err := deriveKey(purposeConfigSecrets)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	ct := aesgcm.Seal(nil, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt opens base64(nonce)|base64(ciphertext) and returns the plaintext.
func Decrypt(cipherText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}

	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", errors.New("invalid format: expected base64(nonce)|base64(ciphertext)")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return "", fmt.Errorf("invalid nonce: expected %d bytes, got %d", nonceSizeGCM, len(nonce))
	}

	key, err := deriveKey(purposeConfigSecrets)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	pt, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// IsSealed reports whether a config value looks like a sealed secret.
// Plain secrets never contain the separator.
func IsSealed(v string) bool { return strings.Contains(v, sep) }

// --- test helpers ---

// UnsafeResetForTests clears internal state. Tests only.
func UnsafeResetForTests() {
	mu.Lock()
	masterKey = nil
	mu.Unlock()
	masterKeyOnce = sync.Once{}
	loadErr = nil
}

// UnsafeSetMasterKeyForTests installs a raw 32-byte key. Tests only.
func UnsafeSetMasterKeyForTests(k []byte) error {
	if len(k) != requiredKeyLength {
		return fmt.Errorf("test key must be %d bytes", requiredKeyLength)
	}
	UnsafeResetForTests()
	mu.Lock()
	masterKey = make([]byte, len(k))
	copy(masterKey, k)
	mu.Unlock()
	// Mark the env load as done so ensureLoaded keeps the injected key.
	masterKeyOnce.Do(func() {})
	return nil
}
