package webhooks

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultMaxPerOrg caps active webhooks per organization
const DefaultMaxPerOrg = 5

// Registry manages webhook registrations
type Registry struct {
	store     Store
	maxPerOrg int
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewRegistry creates a registry; maxPerOrg <= 0 uses DefaultMaxPerOrg
func NewRegistry(store Store, maxPerOrg int, logger logrus.FieldLogger) *Registry {
	if maxPerOrg <= 0 {
		maxPerOrg = DefaultMaxPerOrg
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{store: store, maxPerOrg: maxPerOrg, logger: logger, now: time.Now}
}

// ValidateURL accepts absolute http and https URLs only
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: "url", Message: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Message: "is not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "must use http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Message: "must include a host"}
	}
	return nil
}

// Create registers a webhook. Unknown events are dropped; an empty result
// falls back to DefaultEvents. The returned value is the only place the
// full secret is ever exposed.
func (r *Registry) Create(ctx context.Context, orgID string, req CreateRequest) (*Created, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}
	if len(req.Description) > 500 {
		return nil, &ValidationError{Field: "description", Message: "must be at most 500 characters"}
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	w := &Webhook{
		ID:          uuid.NewString(),
		OrgID:       orgID,
		URL:         req.URL,
		Events:      FilterEvents(req.Events),
		Secret:      secret,
		Description: req.Description,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.Create(ctx, w, r.maxPerOrg); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"org_id":     orgID,
		"webhook_id": w.ID,
		"events":     w.Events,
	}).Info("Webhook registered")
	return &Created{View: w.View(), Secret: secret}, nil
}

// List returns the organization's webhooks with masked secrets
func (r *Registry) List(ctx context.Context, orgID string) ([]View, error) {
	hooks, err := r.store.List(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]View, len(hooks))
	for i, w := range hooks {
		out[i] = w.View()
	}
	return out, nil
}

// Get returns one webhook
func (r *Registry) Get(ctx context.Context, orgID, id string) (*Webhook, error) {
	return r.store.Get(ctx, orgID, id)
}

// Delete removes a webhook
func (r *Registry) Delete(ctx context.Context, orgID, id string) error {
	if err := r.store.Delete(ctx, orgID, id); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{"org_id": orgID, "webhook_id": id}).Info("Webhook deleted")
	return nil
}

// Activate re-enables a webhook and clears its failure count. Re-enabling
// is refused when the organization is already at its cap.
func (r *Registry) Activate(ctx context.Context, orgID, id string) (*Webhook, error) {
	w, err := r.store.Activate(ctx, orgID, id, r.maxPerOrg)
	if err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{"org_id": orgID, "webhook_id": id}).Info("Webhook activated")
	return w, nil
}

// Deactivate stops deliveries to a webhook
func (r *Registry) Deactivate(ctx context.Context, orgID, id string) (*Webhook, error) {
	return r.store.SetActive(ctx, orgID, id, false)
}
