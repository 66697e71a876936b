package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"blumenau/catalogworker/helpers"
)

// Product represents one normalized catalog item scraped from a supplier page.
// A Product is built once per successful parse and never mutated afterwards;
// a later scrape of the same (supplier, sku) replaces it wholesale.
type Product struct {
	ID             string   `json:"id"`
	SKU            string   `json:"sku,omitempty"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug,omitempty"`
	Brand          string   `json:"brand,omitempty"`
	Price          float64  `json:"price"`
	PriceFormatted string   `json:"priceFormatted,omitempty"`
	PricePix       float64  `json:"pricePix,omitempty"`
	Stock          *int     `json:"stock,omitempty"`
	InStock        bool     `json:"inStock"`
	Description    string   `json:"description,omitempty"`
	Specs          Specs    `json:"specs,omitempty"`
	Category       string   `json:"category,omitempty"`
	CategoryPath   []string `json:"categoryPath,omitempty"`
	Image          string   `json:"image,omitempty"`
	Images         []string `json:"images,omitempty"`
	Videos         []Video  `json:"videos,omitempty"`
	Datasheet      string   `json:"datasheet,omitempty"`
	Warranty       string   `json:"warranty,omitempty"`
	SourceURL      string   `json:"sourceUrl"`
	Supplier       string   `json:"supplier"`
}

// Video is one embedded product video normalized to its canonical embed URL
type Video struct {
	URL      string `json:"url"`
	Platform string `json:"platform"`
}

// Spec is a single technical attribute of a product
type Spec struct {
	Name  string
	Value string
}

// Specs is an ordered list of technical attributes. It serializes as a JSON
// object whose keys keep the order they were extracted in.
type Specs []Spec

// Get returns the value of the named attribute
func (s Specs) Get(name string) (string, bool) {
	for _, spec := range s {
		if spec.Name == name {
			return spec.Value, true
		}
	}
	return "", false
}

// MarshalJSON renders the specs as an object in extraction order
func (s Specs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, spec := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(spec.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(spec.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order
func (s *Specs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("specs: expected JSON object")
	}

	var out Specs
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("specs: expected string key")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, Spec{Name: key, Value: value})
	}
	*s = out
	return nil
}

// Supplier is the contract every storefront adapter implements
type Supplier interface {
	// Name returns the supplier's display name
	Name() string

	// ListProductURLs discovers the supplier's product URL universe
	ListProductURLs(ctx context.Context, fetcher *helpers.Fetcher) ([]string, error)

	// ParsePage extracts one product from raw page content. A page without a
	// usable name or price yields (nil, nil): no data, not an error.
	ParsePage(url string, body io.Reader) (*Product, error)
}

// Config describes one storefront deployment of the shared platform adapter
type Config struct {
	// Name is the supplier display name recorded on every product
	Name string

	// IDPrefix namespaces product ids so SKUs can't collide across suppliers
	IDPrefix string

	// BaseURL is the storefront root, e.g. https://www.proesi.com.br
	BaseURL string

	// SitemapURL points at the product sitemap (XML with <loc> entries)
	SitemapURL string
}
