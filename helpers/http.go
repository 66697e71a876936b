package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"net/http/cookiejar"
	"slices"
	"time"

	"golang.org/x/net/html/charset"

	"blumenau/catalogworker/pkg/errors"
	"blumenau/catalogworker/services/cache"
)

// Browser-like header pools
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Safari/605.1.15",
	}

	referers = []string{
		"https://www.google.com/",
		"https://www.google.com.br/",
		"https://www.bing.com/",
	}
)

// Fetcher is one worker's HTTP session. Each worker owns its own Fetcher so
// connection state and cookies are never shared across goroutines.
type Fetcher struct {
	client    *http.Client
	cacheSvc  cache.CacheService
	supplier  string
	blockKey  string
	blockTime time.Duration
	rnd       *mathrand.Rand
}

// NewFetcher creates a fetcher with its own client and cookie jar
func NewFetcher(supplier string, timeout time.Duration, cacheSvc cache.CacheService, blockTime time.Duration) *Fetcher {
	jar, _ := cookiejar.New(nil)
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		cacheSvc:  cacheSvc,
		supplier:  supplier,
		blockKey:  supplier + "_rate_limited",
		blockTime: blockTime,
		rnd:       mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

// Get sends an HTTP GET request with browser-like headers, converts the
// response body to UTF-8 (if needed), and returns it as an io.Reader.
func (f *Fetcher) Get(ctx context.Context, url string) (io.Reader, error) {
	// Honor an active rate-limit block window for this supplier
	if f.cacheSvc != nil {
		if _, err := f.cacheSvc.Get(f.blockKey); err == nil {
			return nil, errors.NewRateLimit(f.supplier, f.blockTime)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgents[f.rnd.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", referers[f.rnd.Intn(len(referers))])
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewNetwork(f.supplier, fmt.Sprintf("failed to fetch %s", url), err)
	}
	defer resp.Body.Close()

	// Check for rate limiting
	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		if f.cacheSvc != nil {
			f.cacheSvc.Set(f.blockKey, []byte(fmt.Sprintf("%d", f.blockTime/time.Second)), f.blockTime)
		}
		return nil, errors.NewRateLimit(f.supplier, f.blockTime)
	}

	// Check for other error status codes
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewNetwork(f.supplier, fmt.Sprintf("fetch %s unexpected status code: %d", url, resp.StatusCode), nil)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetwork(f.supplier, "failed to read response body", err)
	}

	// Determine the encoding from Content-Type header and body content
	encoding, name, _ := charset.DetermineEncoding(bodyBytes, resp.Header.Get("Content-Type"))

	// If already UTF-8, return as is
	if name == "utf-8" || name == "UTF-8" {
		return bytes.NewReader(bodyBytes), nil
	}

	// Convert to UTF-8 if necessary
	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(bodyBytes))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, fmt.Errorf("failed to read converted UTF-8 body: %w", err)
	}

	return &buf, nil
}
