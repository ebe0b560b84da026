package apikeys

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(id, orgID string, created time.Time) *APIKey {
	return &APIKey{
		ID:        id,
		OrgID:     orgID,
		Name:      "key " + id,
		Prefix:    "lumen_abcdef",
		KeyHash:   HashKey("lumen_" + id),
		CreatedAt: created,
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Create(ctx, newKey(fmt.Sprintf("k%d", i), "org_1", base.Add(time.Duration(i)*time.Minute)), 3))
	}
	assert.ErrorIs(t, s.Create(ctx, newKey("k3", "org_1", base), 3), ErrLimitReached)

	keys, err := s.List(ctx, "org_1")
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, "k2", keys[0].ID, "newest first")

	got, err := s.GetByHash(ctx, HashKey("lumen_k1"))
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)
	_, err = s.GetByHash(ctx, HashKey("lumen_nope"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Revoke(ctx, "org_2", "k1", base), ErrNotFound)
	require.NoError(t, s.Revoke(ctx, "org_1", "k1", base))
	require.NoError(t, s.Revoke(ctx, "org_1", "k1", base.Add(time.Hour)))
	got, _ = s.GetByHash(ctx, HashKey("lumen_k1"))
	require.True(t, got.Revoked())
	assert.True(t, got.RevokedAt.Equal(base), "first revocation time is kept")

	// revoked keys free a slot
	require.NoError(t, s.Create(ctx, newKey("k3", "org_1", base), 3))

	require.NoError(t, s.Touch(ctx, "k0", base.Add(time.Hour)))
	got, _ = s.GetByHash(ctx, HashKey("lumen_k0"))
	require.NotNil(t, got.LastUsedAt)
	assert.ErrorIs(t, s.Touch(ctx, "missing", base), ErrNotFound)
}
