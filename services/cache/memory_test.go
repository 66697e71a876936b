package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryService(t *testing.T) {
	m := NewMemoryService()

	// Set a value
	err := m.Set("test_key", []byte("test_value"), time.Minute)
	assert.NoError(t, err)

	// Get the value
	value, err := m.Get("test_key")
	assert.NoError(t, err)
	assert.Equal(t, "test_value", string(value))

	// Delete the value
	err = m.Delete("test_key")
	assert.NoError(t, err)

	// Try to get the deleted value
	_, err = m.Get("test_key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryServiceExpiration(t *testing.T) {
	m := NewMemoryService()

	err := m.Set("short_lived", []byte("v"), 10*time.Millisecond)
	assert.NoError(t, err)

	_, err = m.Get("short_lived")
	assert.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = m.Get("short_lived")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryServiceZeroExpiration(t *testing.T) {
	m := NewMemoryService()

	// Zero expiration means no expiry
	err := m.Set("pinned", []byte("v"), 0)
	assert.NoError(t, err)

	value, err := m.Get("pinned")
	assert.NoError(t, err)
	assert.Equal(t, "v", string(value))
}
