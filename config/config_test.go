package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "products.json", config.CatalogPath)
	assert.Equal(t, "scrape_progress.db", config.ProgressDBPath)
	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, 100.0, config.MinPrice)
	assert.Equal(t, 1500*time.Millisecond, config.RequestDelay)
	assert.Equal(t, 30*time.Second, config.FetchTimeout)
	assert.Equal(t, 3, config.FetchRetries)
	assert.Equal(t, 10, config.SaveInterval)
	assert.Equal(t, "", config.MemcacheAddr)
	assert.Equal(t, "", config.RedisAddr)
	assert.Equal(t, "https://www.proesi.com.br", config.ProesiBaseURL)

	// Test with environment variables
	os.Setenv("CATALOG_FILE", "/tmp/catalog.json")
	os.Setenv("CATALOG_WORKERS", "8")
	os.Setenv("CATALOG_MIN_PRICE", "50.5")
	os.Setenv("CATALOG_REQUEST_DELAY_MS", "200")
	os.Setenv("MEMCACHE_ADDR", "memcache.example.com:11211")
	os.Setenv("PROESI_SITEMAP_URL", "https://example.com/sitemap.xml")

	config = LoadConfig()
	assert.Equal(t, "/tmp/catalog.json", config.CatalogPath)
	assert.Equal(t, 8, config.Workers)
	assert.Equal(t, 50.5, config.MinPrice)
	assert.Equal(t, 200*time.Millisecond, config.RequestDelay)
	assert.Equal(t, "memcache.example.com:11211", config.MemcacheAddr)
	assert.Equal(t, "https://example.com/sitemap.xml", config.ProesiSitemapURL)

	// Clean up
	os.Unsetenv("CATALOG_FILE")
	os.Unsetenv("CATALOG_WORKERS")
	os.Unsetenv("CATALOG_MIN_PRICE")
	os.Unsetenv("CATALOG_REQUEST_DELAY_MS")
	os.Unsetenv("MEMCACHE_ADDR")
	os.Unsetenv("PROESI_SITEMAP_URL")
}

func TestValidate(t *testing.T) {
	cfg := LoadConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.Workers = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.FetchRetries = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.CatalogPath = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SaveInterval = 0
	assert.Error(t, bad.Validate())
}
