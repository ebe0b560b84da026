package apikeys

import (
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/lumen/pkg/httputil"
)

var (
	ErrNotFound     = httputil.NewStatusError(http.StatusNotFound, "api key not found")
	ErrLimitReached = httputil.NewStatusError(http.StatusConflict, "api key limit reached for organization")
	// ErrInvalidKey covers malformed, unknown and revoked keys alike
	ErrInvalidKey = httputil.NewStatusError(http.StatusUnauthorized, "invalid or revoked api key")
)

// APIKey is an organization's API key. The plaintext is never stored.
type APIKey struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"-"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"` // Never expose hash
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the key has been revoked
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// Created is returned once, at creation, with the plaintext key
type Created struct {
	APIKey
	Key string `json:"key"`
}

// CreateRequest creates an API key
type CreateRequest struct {
	Name string `json:"name"`
}

// ValidationError rejects a request before anything is stored
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}
