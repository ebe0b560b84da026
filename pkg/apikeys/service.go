package apikeys

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultMaxPerOrg caps unrevoked keys per organization
const DefaultMaxPerOrg = 10

const touchTimeout = 2 * time.Second

// Service manages API key lifecycle
type Service struct {
	store     Store
	maxPerOrg int
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewService creates a service; maxPerOrg <= 0 uses DefaultMaxPerOrg
func NewService(store Store, maxPerOrg int, logger logrus.FieldLogger) *Service {
	if maxPerOrg <= 0 {
		maxPerOrg = DefaultMaxPerOrg
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{store: store, maxPerOrg: maxPerOrg, logger: logger, now: time.Now}
}

// Create issues a key. The plaintext is in the result and nowhere else.
func (s *Service) Create(ctx context.Context, orgID string, req CreateRequest) (*Created, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if len(name) > 100 {
		return nil, &ValidationError{Field: "name", Message: "must be at most 100 characters"}
	}

	key, keyHash, prefix, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	k := &APIKey{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Name:      name,
		Prefix:    prefix,
		KeyHash:   keyHash,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, k, s.maxPerOrg); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"org_id": orgID,
		"key_id": k.ID,
		"prefix": prefix,
	}).Info("API key created")
	return &Created{APIKey: *k, Key: key}, nil
}

// List returns the organization's keys
func (s *Service) List(ctx context.Context, orgID string) ([]*APIKey, error) {
	return s.store.List(ctx, orgID)
}

// Revoke revokes a key; it stops authenticating immediately
func (s *Service) Revoke(ctx context.Context, orgID, id string) error {
	if err := s.store.Revoke(ctx, orgID, id, s.now().UTC()); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"org_id": orgID, "key_id": id}).Info("API key revoked")
	return nil
}

// Authenticate resolves a presented key. Malformed, unknown and revoked
// keys all yield ErrInvalidKey.
func (s *Service) Authenticate(ctx context.Context, key string) (*APIKey, error) {
	if err := ValidateKeyFormat(key); err != nil {
		return nil, ErrInvalidKey
	}

	k, err := s.store.GetByHash(ctx, HashKey(key))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, err
	}
	if k.Revoked() {
		return nil, ErrInvalidKey
	}

	now := s.now().UTC()
	touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
	defer cancel()
	if err := s.store.Touch(touchCtx, k.ID, now); err != nil {
		s.logger.WithError(err).WithField("key_id", k.ID).Warn("Failed to record api key use")
	} else {
		k.LastUsedAt = &now
	}
	return k, nil
}
