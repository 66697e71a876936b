package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a running memcached instance; skipped otherwise
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")

	if _, err := mc.Get("availability_probe"); err != nil && !errors.Is(err, ErrCacheMiss) {
		t.Skip("memcached is not available, skipping test")
	}

	key := "proesi_rate_limited"
	require.NoError(t, mc.Set(key, []byte("blocked"), 2*time.Second))

	value, err := mc.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "blocked", string(value))

	require.NoError(t, mc.Delete(key))

	_, err = mc.Get(key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Deleting an absent key is not an error
	assert.NoError(t, mc.Delete(key))
}
