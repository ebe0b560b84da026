package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix identifies Lumen API keys
	KeyPrefix = "lumen_"
	// KeyLength is the number of random bytes (32 bytes = 256 bits)
	KeyLength = 32
	// DisplayPrefixLength is how much of a key is kept for display
	DisplayPrefixLength = 12
)

// GenerateKey creates a new API key
// Format: lumen_<base64url(32 random bytes)>
// The plaintext is returned once; only its hash is stored.
func GenerateKey() (key string, keyHash string, displayPrefix string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// URL-safe, no padding
	key = KeyPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return key, HashKey(key), key[:DisplayPrefixLength], nil
}

// HashKey computes the SHA256 hash of a key for storage and lookup
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ValidateKeyFormat checks if a key has the correct format
func ValidateKeyFormat(key string) error {
	if !strings.HasPrefix(key, KeyPrefix) {
		return fmt.Errorf("key must start with %q", KeyPrefix)
	}

	encoded := strings.TrimPrefix(key, KeyPrefix)
	if len(encoded) == 0 {
		return fmt.Errorf("key is too short")
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(raw) != KeyLength {
		return fmt.Errorf("key has %d random bytes, want %d", len(raw), KeyLength)
	}
	return nil
}
