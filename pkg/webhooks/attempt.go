package webhooks

import (
	"fmt"
	"time"
)

// DeliveryStatus is the outcome of one delivery
type DeliveryStatus string

const (
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusThrottled DeliveryStatus = "throttled"
)

// DeliveryAttempt records one delivery of one event to one webhook,
// including its retries
type DeliveryAttempt struct {
	ID         string         `json:"id"`
	WebhookID  string         `json:"webhook_id"`
	Event      EventType      `json:"event"`
	Status     DeliveryStatus `json:"status"`
	StatusCode int            `json:"status_code,omitempty"`
	Attempts   int            `json:"attempts"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration_ns"`
	Disabled   bool           `json:"webhook_disabled,omitempty"`
	StartedAt  time.Time      `json:"started_at"`

	err error
}

// Success reports whether the receiver answered 2xx
func (a *DeliveryAttempt) Success() bool {
	return a.Status == DeliveryStatusSuccess
}

// Err returns a *DeliveryError for a failed or throttled delivery
func (a *DeliveryAttempt) Err() error {
	if a.Success() {
		return nil
	}
	return &DeliveryError{WebhookID: a.WebhookID, StatusCode: a.StatusCode, Err: a.err}
}

// DeliveryError is a per-webhook failure. It never reaches the request that
// triggered the event.
type DeliveryError struct {
	WebhookID  string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("webhook %s delivery failed: %v", e.WebhookID, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("webhook %s delivery failed: status %d", e.WebhookID, e.StatusCode)
	default:
		return fmt.Sprintf("webhook %s delivery failed", e.WebhookID)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
