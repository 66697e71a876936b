package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"blumenau/catalogworker/internal/supplier"
	"blumenau/catalogworker/logger"
)

// Category is one aggregated product group
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Catalog is the externally published artifact consumed by the feed
// generators and marketplace sync jobs
type Catalog struct {
	LastUpdated   time.Time          `json:"lastUpdated"`
	Sources       []string           `json:"sources"`
	TotalProducts int                `json:"totalProducts"`
	Products      []supplier.Product `json:"products"`
	Categories    []Category         `json:"categories"`
}

// Merger combines freshly scraped records with the previously persisted
// catalog and rewrites the catalog file atomically.
type Merger struct {
	path string
	mu   sync.Mutex
	log  *logger.Logger
}

// NewMerger creates a merger writing to the given catalog file path
func NewMerger(path string) *Merger {
	return &Merger{path: path, log: logger.ForCatalog()}
}

// Load reads the existing catalog file. A missing file yields an empty
// catalog; a corrupt file is logged and treated as empty rather than
// aborting the run.
func (m *Merger) Load() (*Catalog, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return &Catalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		m.log.Warn().Err(err).Str("path", m.path).Msg("Catalog file is corrupt, starting from empty")
		return &Catalog{}, nil
	}
	return &cat, nil
}

// MergeAndSave merges newProducts into the persisted catalog. Records of the
// touched suppliers are replaced wholesale; every other supplier's records
// are carried over unchanged. The resulting file is rewritten atomically.
func (m *Merger) MergeAndSave(newProducts []supplier.Product, touched []string) (*Catalog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.Load()
	if err != nil {
		return nil, err
	}

	touchedSet := make(map[string]struct{}, len(touched))
	for _, name := range touched {
		touchedSet[name] = struct{}{}
	}

	retained := make([]supplier.Product, 0, len(old.Products))
	for _, p := range old.Products {
		if _, ok := touchedSet[p.Supplier]; !ok {
			retained = append(retained, p)
		}
	}

	m.logChanges(old.Products, newProducts, touchedSet)

	all := make([]supplier.Product, 0, len(retained)+len(newProducts))
	all = append(all, retained...)
	all = append(all, newProducts...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].Name != all[j].Name {
			return all[i].Name < all[j].Name
		}
		return all[i].ID < all[j].ID
	})

	cat := &Catalog{
		LastUpdated:   time.Now().UTC(),
		Sources:       unionSources(old.Sources, touched, all),
		TotalProducts: len(all),
		Products:      all,
		Categories:    BuildCategories(all),
	}

	if err := m.writeAtomic(cat); err != nil {
		return nil, err
	}

	m.log.Info().
		Int("total", cat.TotalProducts).
		Int("merged", len(newProducts)).
		Strs("touched", touched).
		Msg("Catalog saved")

	return cat, nil
}

// logChanges reports added/removed/price-changed products for the touched
// suppliers, mirroring what operators watch between runs
func (m *Merger) logChanges(oldProducts, newProducts []supplier.Product, touched map[string]struct{}) {
	oldByID := make(map[string]supplier.Product)
	for _, p := range oldProducts {
		if _, ok := touched[p.Supplier]; ok {
			oldByID[p.ID] = p
		}
	}

	var added, priceChanged int
	for _, p := range newProducts {
		old, ok := oldByID[p.ID]
		if !ok {
			added++
			continue
		}
		if old.Price != p.Price {
			priceChanged++
			m.log.Info().
				Str("product", p.Name).
				Float64("old_price", old.Price).
				Float64("new_price", p.Price).
				Msg("Price changed")
		}
		delete(oldByID, p.ID)
	}
	// Whatever is left was not re-scraped this run
	removed := len(oldByID)

	if added > 0 || removed > 0 || priceChanged > 0 {
		m.log.Info().
			Int("added", added).
			Int("removed", removed).
			Int("price_changed", priceChanged).
			Msg("Catalog changes")
	}
}

func unionSources(oldSources, touched []string, products []supplier.Product) []string {
	set := make(map[string]struct{})
	for _, s := range oldSources {
		set[s] = struct{}{}
	}
	for _, s := range touched {
		set[s] = struct{}{}
	}
	for _, p := range products {
		set[p.Supplier] = struct{}{}
	}

	sources := make([]string, 0, len(set))
	for s := range set {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

// BuildCategories groups products by category id and sorts the groups by
// descending count, ties broken by id for deterministic output
func BuildCategories(products []supplier.Product) []Category {
	counts := make(map[string]int)
	for _, p := range products {
		if p.Category != "" {
			counts[p.Category]++
		}
	}

	categories := make([]Category, 0, len(counts))
	for id, count := range counts {
		categories = append(categories, Category{
			ID:    id,
			Name:  categoryDisplayName(id),
			Count: count,
		})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Count != categories[j].Count {
			return categories[i].Count > categories[j].Count
		}
		return categories[i].ID < categories[j].ID
	})
	return categories
}

// categoryDisplayName rebuilds a human-readable name from a category id:
// "componentes-eletronicos" becomes "Componentes Eletronicos"
func categoryDisplayName(id string) string {
	words := strings.Split(id, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// writeAtomic writes the catalog to a temp file in the target directory and
// renames it into place, so readers never observe a partial file
func (m *Merger) writeAtomic(cat *Catalog) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp catalog file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp catalog file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp catalog file: %w", err)
	}

	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace catalog file: %w", err)
	}
	return nil
}
