// Package secrets provides the AES-256-GCM sealing used for credential
// envelopes at rest. The on-disk wrapper is { encrypted, iv, authTag } with
// base64 values; plaintext JSON passes through unwrapped for installs that
// run without an encryption key.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const keyFileName = "master.key"

// EnvKey names the environment variable holding the operator-supplied
// base64 master key.
const EnvKey = "WAHARVEST_CREDS_KEY"

// ErrNoKey is returned when sealed content is found on disk but no key is
// available to open it. Callers treat this as recoverable (start fresh).
var ErrNoKey = errors.New("sealed blob found but no encryption key configured")

// ErrBadSeal is returned when the integrity tag fails to verify.
var ErrBadSeal = errors.New("sealed blob failed authentication")

type sealedBlob struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	AuthTag   string `json:"authTag"`
}

// IsSealed reports whether data looks like a sealed blob wrapper.
func IsSealed(data []byte) bool {
	var wrapped sealedBlob
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return false
	}
	return wrapped.Encrypted != "" && wrapped.IV != "" && wrapped.AuthTag != ""
}

// SealWithKey encrypts plain bytes using the given 32-byte AES key.
func SealWithKey(plain, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, plain, nil)
	// GCM appends the tag; the wire format keeps it in a separate field.
	tagStart := len(sealed) - gcm.Overhead()
	out := sealedBlob{
		Encrypted: base64.RawStdEncoding.EncodeToString(sealed[:tagStart]),
		IV:        base64.RawStdEncoding.EncodeToString(nonce),
		AuthTag:   base64.RawStdEncoding.EncodeToString(sealed[tagStart:]),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// OpenWithKey decrypts a sealed blob using the given 32-byte AES key.
// Plaintext JSON is returned as-is. A nil key against sealed content
// returns ErrNoKey; a tampered blob returns ErrBadSeal.
func OpenWithKey(data, key []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty blob")
	}
	var wrapped sealedBlob
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return data, nil
	}
	if wrapped.Encrypted == "" || wrapped.IV == "" || wrapped.AuthTag == "" {
		return data, nil
	}
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(wrapped.Encrypted))
	if err != nil {
		return nil, err
	}
	nonce, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(wrapped.IV))
	if err != nil {
		return nil, err
	}
	tag, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(wrapped.AuthTag))
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrBadSeal
	}
	return plain, nil
}

// DecodeMasterKey base64-decodes a master key and validates its length (32 bytes).
func DecodeMasterKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	decoded := make([]byte, base64.RawStdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.RawStdEncoding.Decode(decoded, []byte(trimmed))
	if err != nil {
		return nil, err
	}
	if n != 32 {
		return nil, fmt.Errorf("invalid master key length: %d", n)
	}
	return decoded[:n], nil
}

// LoadMasterKey resolves the master key. Priority: WAHARVEST_CREDS_KEY env,
// then a key file under stateDir. Returns nil without error when neither
// exists — sealing is optional.
func LoadMasterKey(stateDir string) ([]byte, error) {
	if envKey := strings.TrimSpace(os.Getenv(EnvKey)); envKey != "" {
		key, err := DecodeMasterKey(envKey)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvKey, err)
		}
		return key, nil
	}
	keyPath := filepath.Join(stateDir, keyFileName)
	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeMasterKey(strings.TrimSpace(string(data)))
}

// CreateMasterKey generates a fresh key under stateDir and returns it.
func CreateMasterKey(stateDir string) ([]byte, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	encoded := base64.RawStdEncoding.EncodeToString(key)
	keyPath := filepath.Join(stateDir, keyFileName)
	if err := os.WriteFile(keyPath, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
