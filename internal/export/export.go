package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"blumenau/catalogworker/helpers"
	"blumenau/catalogworker/internal/catalog"
	"blumenau/catalogworker/internal/supplier"
	"blumenau/catalogworker/logger"
)

// Feed formats understood by the exporter
const (
	FormatGoogleMerchant = "google"
	FormatMercadoLivre   = "mercadolivre"
	FormatMeli           = "meli"
	FormatShopee         = "shopee"
)

const (
	googleTitleMax       = 150
	googleDescriptionMax = 5000
	defaultBrand         = "Importado"
)

// Exporter renders the merged catalog into marketplace feed files
type Exporter struct {
	storeURL string
	log      *logger.Logger
}

// NewExporter creates an exporter. storeURL is the public storefront base used
// to build product links in the feeds.
func NewExporter(storeURL string) *Exporter {
	return &Exporter{
		storeURL: strings.TrimRight(storeURL, "/"),
		log:      logger.ForCatalog(),
	}
}

// Export writes the catalog as the requested feed format to outPath
func (e *Exporter) Export(cat *catalog.Catalog, format, outPath string) error {
	switch format {
	case FormatGoogleMerchant:
		return e.exportGoogle(cat, outPath)
	case FormatMercadoLivre, FormatMeli, FormatShopee:
		return e.exportMarketplace(cat, outPath)
	default:
		return fmt.Errorf("unknown export format: %s", format)
	}
}

// exportGoogle writes a Google Merchant Center TSV feed. Every catalog record
// is included; availability carries the stock state.
func (e *Exporter) exportGoogle(cat *catalog.Catalog, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create feed file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	header := []string{
		"id", "title", "description", "link", "image_link",
		"availability", "price", "brand", "condition",
		"identifier_exists", "product_type",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write feed header: %w", err)
	}

	for _, p := range cat.Products {
		description := p.Description
		if description == "" {
			description = p.Name
		}
		availability := "in_stock"
		if !p.InStock {
			availability = "out_of_stock"
		}
		brand := p.Brand
		if brand == "" {
			brand = defaultBrand
		}

		row := []string{
			p.ID,
			helpers.Ellipsis(flatten(p.Name), googleTitleMax),
			helpers.Ellipsis(flatten(description), googleDescriptionMax),
			e.productLink(p),
			p.Image,
			availability,
			fmt.Sprintf("%.2f BRL", p.Price),
			brand,
			"new",
			"false",
			strings.Join(p.CategoryPath, " > "),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write feed row for %s: %w", p.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush feed: %w", err)
	}

	e.log.Info().Int("products", len(cat.Products)).Str("path", outPath).Msg("Google Merchant feed written")
	return nil
}

// exportMarketplace writes the semicolon-delimited CSV the Mercado Livre and
// Shopee bulk uploaders consume. Out-of-stock and zero-priced records are
// excluded since those listings would be rejected on upload.
func (e *Exporter) exportMarketplace(cat *catalog.Catalog, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create feed file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'

	header := []string{"sku", "titulo", "descricao", "preco", "estoque", "categoria", "imagens", "link"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write feed header: %w", err)
	}

	var written int
	for _, p := range cat.Products {
		if !p.InStock || p.Price <= 0 {
			continue
		}
		stock := 1
		if p.Stock != nil {
			stock = *p.Stock
		}

		row := []string{
			p.SKU,
			flatten(p.Name),
			helpers.Ellipsis(flatten(p.Description), googleDescriptionMax),
			fmt.Sprintf("%.2f", p.Price),
			fmt.Sprintf("%d", stock),
			strings.Join(p.CategoryPath, " > "),
			strings.Join(p.Images, ","),
			e.productLink(p),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write feed row for %s: %w", p.ID, err)
		}
		written++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush feed: %w", err)
	}

	e.log.Info().Int("products", written).Str("path", outPath).Msg("Marketplace feed written")
	return nil
}

// productLink points at the storefront product page, falling back to the
// supplier's source URL when no storefront base is configured
func (e *Exporter) productLink(p supplier.Product) string {
	if e.storeURL == "" {
		return p.SourceURL
	}
	return e.storeURL + "/produto.html?slug=" + p.Slug
}

// flatten collapses newlines and tabs so multi-line descriptions stay on one
// feed row
func flatten(s string) string {
	return helpers.CleanText(s)
}
