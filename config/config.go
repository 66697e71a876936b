package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Output artifacts
	CatalogPath    string
	ProgressDBPath string
	StoreURL       string

	// Crawl tuning
	Workers      int
	MinPrice     float64
	RequestDelay time.Duration
	FetchTimeout time.Duration
	FetchRetries int
	SaveInterval int
	TestLimit    int

	// Optional infrastructure
	MemcacheAddr         string
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Supplier endpoints
	ProesiBaseURL      string
	ProesiSitemapURL   string
	LojaValeBaseURL    string
	LojaValeSitemapURL string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	workers, _ := strconv.Atoi(getEnv("CATALOG_WORKERS", "4"))
	minPrice, _ := strconv.ParseFloat(getEnv("CATALOG_MIN_PRICE", "100"), 64)
	delayMs, _ := strconv.Atoi(getEnv("CATALOG_REQUEST_DELAY_MS", "1500"))
	timeoutSec, _ := strconv.Atoi(getEnv("CATALOG_FETCH_TIMEOUT_SECONDS", "30"))
	retries, _ := strconv.Atoi(getEnv("CATALOG_FETCH_RETRIES", "3"))
	saveInterval, _ := strconv.Atoi(getEnv("CATALOG_SAVE_INTERVAL", "10"))
	testLimit, _ := strconv.Atoi(getEnv("CATALOG_TEST_LIMIT", "10"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisStreamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))

	return Config{
		CatalogPath:          getEnv("CATALOG_FILE", "products.json"),
		ProgressDBPath:       getEnv("CATALOG_PROGRESS_DB", "scrape_progress.db"),
		StoreURL:             getEnv("STORE_URL", ""),
		Workers:              workers,
		MinPrice:             minPrice,
		RequestDelay:         time.Duration(delayMs) * time.Millisecond,
		FetchTimeout:         time.Duration(timeoutSec) * time.Second,
		FetchRetries:         retries,
		SaveInterval:         saveInterval,
		TestLimit:            testLimit,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "catalog"),
		RedisStreamMaxLength: redisStreamMaxLength,
		ProesiBaseURL:        getEnv("PROESI_BASE_URL", "https://www.proesi.com.br"),
		ProesiSitemapURL:     getEnv("PROESI_SITEMAP_URL", "https://www.proesi.com.br/sitemap-produto.xml"),
		LojaValeBaseURL:      getEnv("LOJAVALE_BASE_URL", "https://www.lojavale.com.br"),
		LojaValeSitemapURL:   getEnv("LOJAVALE_SITEMAP_URL", "https://www.lojavale.com.br/sitemap-produto.xml"),
		Environment:          getEnv("CATALOG_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c Config) Validate() error {
	if c.CatalogPath == "" {
		return fmt.Errorf("catalog file path must not be empty")
	}
	if c.ProgressDBPath == "" {
		return fmt.Errorf("progress database path must not be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.Workers)
	}
	if c.FetchRetries < 1 {
		return fmt.Errorf("fetch retries must be at least 1, got %d", c.FetchRetries)
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay must not be negative")
	}
	if c.SaveInterval < 1 {
		return fmt.Errorf("save interval must be at least 1, got %d", c.SaveInterval)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
