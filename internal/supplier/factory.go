package supplier

import (
	"blumenau/catalogworker/config"
)

// CreateSuppliers creates all supplier adapters based on the configuration.
// The slice order is the fixed processing order used by an "all" run.
func CreateSuppliers(cfg config.Config) []Supplier {
	configurations := []Config{
		{
			Name:       "proesi",
			IDPrefix:   "proesi",
			BaseURL:    cfg.ProesiBaseURL,
			SitemapURL: cfg.ProesiSitemapURL,
		},
		{
			Name:       "lojavale",
			IDPrefix:   "lojavale",
			BaseURL:    cfg.LojaValeBaseURL,
			SitemapURL: cfg.LojaValeSitemapURL,
		},
	}

	suppliers := make([]Supplier, 0, len(configurations))
	for _, c := range configurations {
		suppliers = append(suppliers, NewMagazord(c))
	}
	return suppliers
}

// FindSupplier returns the adapter with the given name, or nil
func FindSupplier(suppliers []Supplier, name string) Supplier {
	for _, s := range suppliers {
		if s.Name() == name {
			return s
		}
	}
	return nil
}
