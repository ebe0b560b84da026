package apikeys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	key, keyHash, prefix, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	// 32 bytes base64url without padding is 43 chars
	assert.Len(t, key, len(KeyPrefix)+43)
	assert.Len(t, keyHash, 64)
	assert.Equal(t, HashKey(key), keyHash)
	assert.Len(t, prefix, DisplayPrefixLength)
	assert.True(t, strings.HasPrefix(key, prefix))
	assert.NoError(t, ValidateKeyFormat(key))
}

func TestGenerateKey_Uniqueness(t *testing.T) {
	keys := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, _, _, err := GenerateKey()
		require.NoError(t, err)
		assert.False(t, keys[key], "duplicate key generated")
		keys[key] = true
	}
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, HashKey("lumen_abc"), HashKey("lumen_abc"))
	assert.NotEqual(t, HashKey("lumen_abc"), HashKey("lumen_abd"))
}

func TestValidateKeyFormat(t *testing.T) {
	valid, _, _, err := GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", valid, false},
		{"wrong prefix", "sk_" + strings.TrimPrefix(valid, KeyPrefix), true},
		{"prefix only", KeyPrefix, true},
		{"bad encoding", KeyPrefix + "not base64!!", true},
		{"too short", KeyPrefix + "YWJj", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeyFormat(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
