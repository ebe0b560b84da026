package webhooks

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Delivery headers
const (
	SignatureHeader = "X-Lumen-Signature"
	EventHeader     = "X-Lumen-Event"
	DeliveryHeader  = "X-Lumen-Delivery"
)

const secretPrefix = "whsec_"

// Sign returns the lowercase hex HMAC-SHA256 of body keyed by secret
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time. Receivers must verify against
// the raw request body, before any JSON decoding.
func Verify(body []byte, signature, secret string) bool {
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// GenerateSecret returns a new signing secret: whsec_ followed by 64 hex chars
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate webhook secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

// MaskSecret shows only the last four characters of a secret
func MaskSecret(secret string) string {
	if len(secret) <= len(secretPrefix)+4 {
		return secretPrefix + "…"
	}
	return secretPrefix + "…" + secret[len(secret)-4:]
}
