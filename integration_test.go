package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blumenau/catalogworker/internal/catalog"
	"blumenau/catalogworker/internal/engine"
	"blumenau/catalogworker/internal/progress"
	"blumenau/catalogworker/internal/supplier"
	"blumenau/catalogworker/services/cache"
)

func productPage(name, sku string, price float64) string {
	return fmt.Sprintf(`<html><body><script>
		var dataProduct = {"nome": %q, "codigo": %q, "precoVenda": %.2f, "estoque": 3, "categorias": ["Componentes"]};
	</script></body></html>`, name, sku, price)
}

// Exercises the whole flow: sitemap discovery, the concurrent crawl, the
// progress ledger, and the merged catalog file on disk.
func TestIntegrationScrapeAndMerge(t *testing.T) {
	pages := map[string]string{
		"/rele-5v":      productPage("Módulo Relé 5V", "RELE-5V", 14.90),
		"/fonte-12v":    productPage("Fonte 12V 5A", "FNT-125", 89.90),
		"/jumper-breve": productPage("Jumper Macho-Fêmea", "JMP-MF", 0.90),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap-produto.xml" {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><urlset>`)
			for path := range pages {
				fmt.Fprintf(w, "<url><loc>%s%s</loc></url>", serverURL(r), path)
			}
			fmt.Fprint(w, `</urlset>`)
			return
		}
		if page, ok := pages[r.URL.Path]; ok {
			fmt.Fprint(w, page)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	ctx := context.Background()
	dir := t.TempDir()

	store, err := progress.NewStore(ctx, filepath.Join(dir, "progress.db"))
	require.NoError(t, err)
	defer store.Close()

	sup := supplier.NewMagazord(supplier.Config{
		Name:       "proesi",
		IDPrefix:   "proesi",
		BaseURL:    server.URL,
		SitemapURL: server.URL + "/sitemap-produto.xml",
	})

	eng := engine.New(store, cache.NewMemoryService(), engine.Options{
		MinPrice: 5,
		Workers:  2,
		Mode:     engine.ModeFresh,
		Retries:  2,
		Delay:    time.Millisecond,
		Timeout:  5 * time.Second,
	}, nil)

	accepted, summary, err := eng.ScrapeAll(ctx, sup)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.URLs)
	assert.Equal(t, 2, summary.Accepted)
	assert.Equal(t, 1, summary.BelowMin, "the jumper sits under the minimum price")

	catalogPath := filepath.Join(dir, "products.json")
	merger := catalog.NewMerger(catalogPath)
	cat, err := merger.MergeAndSave(accepted, []string{"proesi"})
	require.NoError(t, err)
	assert.Equal(t, 2, cat.TotalProducts)
	assert.Equal(t, []string{"proesi"}, cat.Sources)
	require.Len(t, cat.Categories, 1)
	assert.Equal(t, "componentes", cat.Categories[0].ID)
	assert.Equal(t, 2, cat.Categories[0].Count)

	// The file on disk round-trips
	data, err := os.ReadFile(catalogPath)
	require.NoError(t, err)
	var reloaded catalog.Catalog
	require.NoError(t, json.Unmarshal(data, &reloaded))
	assert.Equal(t, cat.TotalProducts, reloaded.TotalProducts)

	// A second, fully unchanged incremental run accepts nothing
	eng = engine.New(store, cache.NewMemoryService(), engine.Options{
		MinPrice:    5,
		Workers:     2,
		Mode:        engine.ModeFresh,
		Incremental: true,
		Retries:     2,
		Delay:       time.Millisecond,
		Timeout:     5 * time.Second,
	}, nil)
	accepted, summary, err = eng.ScrapeAll(ctx, sup)
	require.NoError(t, err)
	assert.Empty(t, accepted)
	assert.Equal(t, 2, summary.Unchanged)

	// Incremental merge input carries the unchanged records over
	merged := mergeInput(merger, accepted, "proesi", true)
	assert.Len(t, merged, 2)
	cat, err = merger.MergeAndSave(merged, []string{"proesi"})
	require.NoError(t, err)
	assert.Equal(t, 2, cat.TotalProducts)
}

func serverURL(r *http.Request) string {
	return "http://" + r.Host
}
