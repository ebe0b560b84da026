package webhooks

import (
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/lumen/pkg/httputil"
)

var (
	ErrNotFound     = httputil.NewStatusError(http.StatusNotFound, "webhook not found")
	ErrLimitReached = httputil.NewStatusError(http.StatusConflict, "webhook limit reached for organization")
)

// Webhook is a registered receiver
type Webhook struct {
	ID              string
	OrgID           string
	URL             string
	Events          []EventType
	Secret          string
	Description     string
	Active          bool
	FailureCount    int
	LastTriggeredAt *time.Time
	LastStatus      DeliveryStatus // empty until the first delivery
	LastStatusCode  int
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Subscribed reports whether the webhook receives event
func (w *Webhook) Subscribed(event EventType) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// View is the public form of a webhook; the secret is masked
type View struct {
	ID              string         `json:"id"`
	URL             string         `json:"url"`
	Events          []EventType    `json:"events"`
	Description     string         `json:"description,omitempty"`
	Active          bool           `json:"active"`
	FailureCount    int            `json:"failure_count"`
	SecretHint      string         `json:"secret_hint"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty"`
	LastStatus      DeliveryStatus `json:"last_status,omitempty"`
	LastStatusCode  int            `json:"last_status_code,omitempty"`
	LastError       string         `json:"last_error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// View returns the public form of w
func (w *Webhook) View() View {
	return View{
		ID:              w.ID,
		URL:             w.URL,
		Events:          w.Events,
		Description:     w.Description,
		Active:          w.Active,
		FailureCount:    w.FailureCount,
		SecretHint:      MaskSecret(w.Secret),
		LastTriggeredAt: w.LastTriggeredAt,
		LastStatus:      w.LastStatus,
		LastStatusCode:  w.LastStatusCode,
		LastError:       w.LastError,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}
}

// Created is returned once, at registration. It is the only response that
// carries the full secret.
type Created struct {
	View
	Secret string `json:"secret"`
}

// CreateRequest registers a webhook
type CreateRequest struct {
	URL         string   `json:"url"`
	Events      []string `json:"events"`
	Description string   `json:"description,omitempty"`
}

// ValidationError rejects a registration before anything is stored
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
