package webhooks

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a webhook event
type EventType string

const (
	EventScanComplete      EventType = "scan_complete"
	EventAuditComplete     EventType = "audit_complete"
	EventPageGenerated     EventType = "page_generated"
	EventArticlePublished  EventType = "article_published"
	EventUsageLimitReached EventType = "usage_limit_reached"
	EventWebhookTest       EventType = "webhook_test"
)

// AllEvents lists the events a webhook can subscribe to
var AllEvents = []EventType{
	EventScanComplete,
	EventAuditComplete,
	EventPageGenerated,
	EventArticlePublished,
	EventUsageLimitReached,
	EventWebhookTest,
}

// DefaultEvents is the subscription used when a request names no valid event
var DefaultEvents = []EventType{EventScanComplete}

// Valid reports whether e is a known event
func (e EventType) Valid() bool {
	for _, known := range AllEvents {
		if e == known {
			return true
		}
	}
	return false
}

// FilterEvents keeps the known events in names, dropping unknown names and
// duplicates. If nothing is left the baseline DefaultEvents are returned.
func FilterEvents(names []string) []EventType {
	seen := make(map[EventType]bool, len(names))
	out := make([]EventType, 0, len(names))
	for _, name := range names {
		e := EventType(name)
		if !e.Valid() || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	if len(out) == 0 {
		return append([]EventType(nil), DefaultEvents...)
	}
	return out
}

// Payload is the data of one event
type Payload interface {
	Event() EventType
	Validate() error
}

// Envelope is the JSON body posted to receivers
type Envelope struct {
	Event     EventType `json:"event"`
	Timestamp string    `json:"timestamp"`
	Data      Payload   `json:"data"`
}

// Encode renders the envelope for p. The returned bytes are exactly what
// gets signed and sent.
func Encode(p Payload, at time.Time) ([]byte, error) {
	body, err := json.Marshal(Envelope{
		Event:     p.Event(),
		Timestamp: at.UTC().Format(time.RFC3339),
		Data:      p,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.Event(), err)
	}
	return body, nil
}

// ScanComplete is sent when a site scan finishes
type ScanComplete struct {
	ScanID      string `json:"scan_id"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	IssuesFound int    `json:"issues_found"`
}

func (ScanComplete) Event() EventType { return EventScanComplete }

func (p ScanComplete) Validate() error {
	if p.ScanID == "" || p.URL == "" {
		return fmt.Errorf("scan_complete requires scan_id and url")
	}
	return nil
}

// AuditComplete is sent when an audit finishes
type AuditComplete struct {
	AuditID string `json:"audit_id"`
	URL     string `json:"url"`
	Score   int    `json:"score"`
}

func (AuditComplete) Event() EventType { return EventAuditComplete }

func (p AuditComplete) Validate() error {
	if p.AuditID == "" {
		return fmt.Errorf("audit_complete requires audit_id")
	}
	return nil
}

// PageGenerated is sent for each generated page
type PageGenerated struct {
	PageID  string `json:"page_id"`
	Keyword string `json:"keyword"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
}

func (PageGenerated) Event() EventType { return EventPageGenerated }

func (p PageGenerated) Validate() error {
	if p.PageID == "" || p.Keyword == "" {
		return fmt.Errorf("page_generated requires page_id and keyword")
	}
	return nil
}

// ArticlePublished is sent when an article goes live
type ArticlePublished struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
}

func (ArticlePublished) Event() EventType { return EventArticlePublished }

func (p ArticlePublished) Validate() error {
	if p.ArticleID == "" {
		return fmt.Errorf("article_published requires article_id")
	}
	return nil
}

// UsageLimitReached is sent when an organization uses its last included unit
type UsageLimitReached struct {
	Resource string `json:"resource"`
	Period   string `json:"period"`
	Used     int64  `json:"used"`
	Limit    int64  `json:"limit"`
}

func (UsageLimitReached) Event() EventType { return EventUsageLimitReached }

func (p UsageLimitReached) Validate() error {
	if p.Resource == "" {
		return fmt.Errorf("usage_limit_reached requires resource")
	}
	return nil
}

// WebhookTest is the body of a test delivery
type WebhookTest struct {
	WebhookID string `json:"webhook_id"`
	Message   string `json:"message"`
}

func (WebhookTest) Event() EventType { return EventWebhookTest }

func (WebhookTest) Validate() error { return nil }

// Data is a free-form payload for events without a typed shape
type Data struct {
	Type   EventType
	Fields map[string]any
}

func (d Data) Event() EventType { return d.Type }

func (d Data) Validate() error {
	if !d.Type.Valid() {
		return fmt.Errorf("unknown event %q", d.Type)
	}
	return nil
}

func (d Data) MarshalJSON() ([]byte, error) {
	if d.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.Fields)
}
