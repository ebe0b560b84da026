package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPresets_Valid(t *testing.T) {
	for name, cfg := range DefaultPresets() {
		assert.Equal(t, name, cfg.Name)
		assert.NoError(t, cfg.Validate(), name)
	}
}

func TestLoadPresets(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		presets, err := LoadPresets("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPresets(), presets)
	})

	t.Run("file overrides and adds", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "limits.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
limiters:
  bulk_scan:
    window: 2m
    max: 12
  exports:
    window: 1h
    max: 3
`), 0o600))

		presets, err := LoadPresets(path)
		require.NoError(t, err)
		assert.Equal(t, Config{Name: BulkScan, Window: 2 * time.Minute, Max: 12}, presets[BulkScan])
		assert.Equal(t, Config{Name: "exports", Window: time.Hour, Max: 3}, presets["exports"])
		assert.Equal(t, DefaultPresets()[Auth], presets[Auth])
	})

	t.Run("invalid override is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "limits.yaml")
		require.NoError(t, os.WriteFile(path, []byte("limiters:\n  api:\n    window: 1m\n    max: 0\n"), 0o600))

		_, err := LoadPresets(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestRegistry_LimitersDoNotShareState(t *testing.T) {
	r := NewRegistry(map[string]Config{
		"a": {Window: time.Minute, Max: 1},
		"b": {Window: time.Minute, Max: 1},
	})

	a, ok := r.Local("a")
	require.True(t, ok)
	b, ok := r.Local("b")
	require.True(t, ok)

	assert.True(t, a.Check("same-id").Allowed)
	assert.False(t, a.Check("same-id").Allowed)
	assert.True(t, b.Check("same-id").Allowed)
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_GetAndMustGet(t *testing.T) {
	r := NewRegistry(DefaultPresets())

	c, ok := r.Get(API)
	require.True(t, ok)
	assert.Equal(t, API, c.Config().Name)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
	assert.Panics(t, func() { r.MustGet("unknown") })
}

func TestRegistry_SweepAll(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(map[string]Config{
		"short": {Window: time.Second, Max: 5},
		"long":  {Window: time.Hour, Max: 5},
	}, WithClock(clock.Now))

	short, _ := r.Local("short")
	long, _ := r.Local("long")
	short.Check("x")
	long.Check("x")

	clock.Advance(2 * time.Second)
	evicted, tracked := r.SweepAll()
	assert.Equal(t, 1, evicted["short"])
	assert.Equal(t, 0, evicted["long"])
	assert.Equal(t, 0, tracked["short"])
	assert.Equal(t, 1, tracked["long"])
}
