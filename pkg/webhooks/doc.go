// Package webhooks delivers signed event notifications to customer endpoints.
//
// # Registration
//
// Each organization may register up to five active webhooks. The URL must
// be http or https. Unknown event names are dropped, and an empty list
// subscribes to scan_complete. The signing secret (whsec_ + 64 hex chars)
// is returned only once, at creation; afterwards only its last four
// characters are shown.
//
// # Delivery
//
// Every delivery is a POST of
//
//	{"event": "...", "timestamp": "2026-03-01T12:00:00Z", "data": {...}}
//
// with headers
//
//	X-Lumen-Event:     the event name
//	X-Lumen-Signature: hex HMAC-SHA256 of the exact body, keyed by the secret
//	X-Lumen-Delivery:  a unique id per HTTP attempt
//
// Receivers verify the raw body before decoding it:
//
//	if !webhooks.Verify(body, r.Header.Get(webhooks.SignatureHeader), secret) {
//		http.Error(w, "bad signature", http.StatusUnauthorized)
//		return
//	}
//
// Dispatcher.Deliver is fire-and-forget. Receivers are contacted
// concurrently and one failing never affects another. Transport errors,
// 5xx and 429 are retried with exponential backoff. Each delivery records
// one outcome: a 2xx resets the failure count, anything else increments it.
// Ten consecutive failures deactivate the webhook until it is re-activated.
package webhooks
