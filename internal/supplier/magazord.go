package supplier

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/kennygrant/sanitize"

	"blumenau/catalogworker/helpers"
	"blumenau/catalogworker/logger"
	"blumenau/catalogworker/pkg/errors"
)

// Description length cap applied after all fallbacks
const maxDescriptionLen = 2000

// Magazord is the shared adapter for every supplier running the Magazord
// storefront platform. Suppliers differ only in their Config; page template
// versions differ per deployment, which is why every field is extracted
// through a prioritized waterfall of sources.
type Magazord struct {
	cfg     Config
	cdnHost string
	baseURL *url.URL
	log     *logger.Logger
}

// NewMagazord creates an adapter for one storefront deployment
func NewMagazord(cfg Config) *Magazord {
	base, _ := url.Parse(cfg.BaseURL)
	return &Magazord{
		cfg:     cfg,
		cdnHost: cdnHostFor(base),
		baseURL: base,
		log:     logger.ForSupplier(cfg.Name),
	}
}

// cdnHostFor derives the platform CDN hostname from the storefront hostname:
// www.proesi.com.br serves its media from proesi.cdn.magazord.com.br.
func cdnHostFor(base *url.URL) string {
	if base == nil {
		return ""
	}
	host := strings.TrimPrefix(base.Hostname(), "www.")
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return ""
	}
	return label + ".cdn.magazord.com.br"
}

// Name returns the supplier display name
func (m *Magazord) Name() string {
	return m.cfg.Name
}

// Media resources that show up in product sitemaps but are not product pages
var mediaSuffixes = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// ListProductURLs downloads the product sitemap and extracts product URLs,
// filtering out media files and CDN asset paths.
func (m *Magazord) ListProductURLs(ctx context.Context, fetcher *helpers.Fetcher) ([]string, error) {
	m.log.Info().Str("sitemap", m.cfg.SitemapURL).Msg("Downloading sitemap")

	body, err := fetcher.Get(ctx, m.cfg.SitemapURL)
	if err != nil {
		return nil, errors.NewSitemap(m.cfg.Name, "failed to download sitemap", err)
	}

	doc, err := xmlquery.Parse(body)
	if err != nil {
		return nil, errors.NewSitemap(m.cfg.Name, "failed to parse sitemap", err)
	}

	locs := xmlquery.Find(doc, "//loc")
	urls := make([]string, 0, len(locs))
	for _, loc := range locs {
		u := strings.TrimSpace(loc.InnerText())
		if m.isProductURL(u) {
			urls = append(urls, u)
		}
	}

	m.log.Info().
		Int("product_urls", len(urls)).
		Int("sitemap_entries", len(locs)).
		Msg("Extracted product URLs")

	return urls, nil
}

func (m *Magazord) isProductURL(u string) bool {
	if !strings.HasPrefix(u, m.cfg.BaseURL+"/") {
		return false
	}
	lower := strings.ToLower(u)
	for _, suffix := range mediaSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return !strings.Contains(u, "cdn.magazord")
}

// ParsePage extracts one product from raw page content. Each field walks its
// own source waterfall: embedded dataProduct object, Schema.org JSON-LD,
// HTML selectors, then meta tags. Returns (nil, nil) when no usable name or
// price is found.
func (m *Magazord) ParsePage(pageURL string, body io.Reader) (*Product, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.NewParsing(m.cfg.Name, "failed to read page body", err)
	}
	page := string(raw)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, errors.NewParsing(m.cfg.Name, "failed to parse HTML", err)
	}

	dp := extractDataProduct(page)
	sd := extractStructuredData(doc)

	name := m.extractName(dp, sd, doc)
	price := m.extractPrice(dp, sd, doc)
	if name == "" || price <= 0 {
		return nil, nil
	}

	sku := m.extractSKU(dp, doc)
	slug := m.slugFromURL(pageURL)
	stock, inStock := m.extractStock(dp, sd, doc)
	images := m.extractImages(dp, sd, doc)
	specs := m.extractSpecs(dp, doc)
	category, categoryPath := m.extractCategory(dp, doc)

	p := &Product{
		ID:             m.productID(sku, slug),
		SKU:            sku,
		Name:           name,
		Slug:           slug,
		Brand:          m.extractBrand(dp, sd, doc),
		Price:          price,
		PriceFormatted: FormatBRL(price),
		PricePix:       m.extractPricePix(dp, doc),
		Stock:          stock,
		InStock:        inStock,
		Description:    m.extractDescription(dp, sd, doc),
		Specs:          specs,
		Category:       category,
		CategoryPath:   categoryPath,
		Images:         images,
		Videos:         m.extractVideos(dp, doc),
		Datasheet:      m.extractDatasheet(dp, doc),
		Warranty:       m.extractWarranty(dp, specs),
		SourceURL:      pageURL,
		Supplier:       m.cfg.Name,
	}
	if len(p.Images) > 0 {
		p.Image = p.Images[0]
	}
	return p, nil
}

func (m *Magazord) productID(sku, slug string) string {
	key := sku
	if key == "" {
		key = slug
	}
	return m.cfg.IDPrefix + "-" + key
}

func (m *Magazord) slugFromURL(pageURL string) string {
	return strings.Trim(strings.TrimPrefix(pageURL, m.cfg.BaseURL), "/")
}

func (m *Magazord) extractName(dp *dataProduct, sd *structuredData, doc *goquery.Document) string {
	if dp != nil && dp.Name != "" {
		return strings.TrimSpace(dp.Name)
	}
	if sd != nil && sd.Name != "" {
		return strings.TrimSpace(sd.Name)
	}
	if name := strings.TrimSpace(doc.Find(`h1.product-name, h1[itemprop="name"], .product-title h1`).First().Text()); name != "" {
		return name
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		name, _, _ := strings.Cut(title, "|")
		return strings.TrimSpace(name)
	}
	return ""
}

var skuPrefixRe = regexp.MustCompile(`(?i)^(modelo|sku|ref|referência|código):\s*`)
var itemIDRe = regexp.MustCompile(`"item_id"\s*:\s*"([^"]+)"`)

func (m *Magazord) extractSKU(dp *dataProduct, doc *goquery.Document) string {
	if dp != nil && dp.Code != "" {
		return strings.TrimSpace(dp.Code)
	}
	if sku := strings.TrimSpace(doc.Find(".caract-referencia dd, .product-sku dd").First().Text()); sku != "" {
		return sku
	}
	if text := strings.TrimSpace(doc.Find(`[itemprop="sku"], .sku-value`).First().Text()); text != "" {
		return strings.TrimSpace(skuPrefixRe.ReplaceAllString(text, ""))
	}
	// Last resort: the analytics script carries the SKU as item_id
	var sku string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if match := itemIDRe.FindStringSubmatch(s.Text()); match != nil {
			sku = match[1]
			return false
		}
		return true
	})
	return sku
}

func (m *Magazord) extractPrice(dp *dataProduct, sd *structuredData, doc *goquery.Document) float64 {
	if dp != nil && dp.Price > 0 {
		return dp.Price
	}
	if sd != nil && sd.Price > 0 {
		return sd.Price
	}
	text := doc.Find(`.price-value, .product-price, [itemprop="price"], .primary-price .valor-big`).First().Text()
	if v, ok := ParseBRL(text); ok && v > 0 {
		return v
	}
	if content, exists := doc.Find(`meta[itemprop="price"], meta[property="product:price:amount"]`).First().Attr("content"); exists {
		if v, ok := ParseDecimal(content); ok && v > 0 {
			return v
		}
	}
	return 0
}

func (m *Magazord) extractPricePix(dp *dataProduct, doc *goquery.Document) float64 {
	if dp != nil && dp.PricePix > 0 {
		return dp.PricePix
	}
	text := doc.Find(".price-pix .valor, .pix-price").First().Text()
	if v, ok := ParseBRL(text); ok && v > 0 {
		return v
	}
	return 0
}

var stockCountRe = regexp.MustCompile(`(\d+)`)

func (m *Magazord) extractStock(dp *dataProduct, sd *structuredData, doc *goquery.Document) (*int, bool) {
	if dp != nil && dp.Stock != nil {
		qty := *dp.Stock
		return &qty, qty > 0
	}
	if sd != nil && sd.Availability != "" {
		if strings.Contains(sd.Availability, "OutOfStock") {
			zero := 0
			return &zero, false
		}
		if strings.Contains(sd.Availability, "InStock") {
			return nil, true
		}
	}
	text := strings.ToLower(strings.TrimSpace(doc.Find(`.stock-quantity, .availability, [itemprop="availability"]`).First().Text()))
	if text != "" {
		if strings.Contains(text, "indisponível") || strings.Contains(text, "esgotado") {
			zero := 0
			return &zero, false
		}
		if match := stockCountRe.FindStringSubmatch(text); match != nil {
			if qty, err := strconv.Atoi(match[1]); err == nil {
				return &qty, qty > 0
			}
		}
	}
	// No stock signal anywhere: assume sellable
	return nil, true
}

func (m *Magazord) extractBrand(dp *dataProduct, sd *structuredData, doc *goquery.Document) string {
	if dp != nil && dp.Brand != "" {
		return strings.TrimSpace(dp.Brand)
	}
	if sd != nil && sd.Brand != "" {
		return strings.TrimSpace(sd.Brand)
	}
	return strings.TrimSpace(doc.Find(`[itemprop="brand"], .product-brand, .marca`).First().Text())
}

// Image source attributes in priority order: the largest rendition first
var imageAttrs = []string{"data-src-max", "data-img-full", "data-src", "src"}

func (m *Magazord) extractImages(dp *dataProduct, sd *structuredData, doc *goquery.Document) []string {
	if dp != nil && len(dp.Images) > 0 {
		var urls []string
		for _, img := range dp.Images {
			if u := m.cdnImageURL(img); u != "" {
				urls = append(urls, u)
			}
		}
		if deduped := dedupe(urls); len(deduped) > 0 {
			return deduped
		}
	}
	if sd != nil && len(sd.Images) > 0 {
		return dedupe(sd.Images)
	}

	var urls []string
	doc.Find(`[itemprop="image"], .product-image img, .gallery-image img`).Each(func(_ int, s *goquery.Selection) {
		for _, attr := range imageAttrs {
			if src, exists := s.Attr(attr); exists && src != "" {
				if u := cleanImageURL(src); u != "" {
					urls = append(urls, u)
				}
				break
			}
		}
	})
	if deduped := dedupe(urls); len(deduped) > 0 {
		return deduped
	}

	// Generic og:image meta tag, used verbatim
	if content, exists := doc.Find(`meta[property="og:image"]`).First().Attr("content"); exists && content != "" {
		return []string{content}
	}
	return nil
}

// cdnImageURL resolves one dataProduct image entry: direct URLs pass through,
// path+filename pairs are rebuilt against the supplier's CDN host.
func (m *Magazord) cdnImageURL(img dataImage) string {
	if img.URL != "" {
		return cleanImageURL(img.URL)
	}
	if img.Path == "" || img.File == "" || m.cdnHost == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/%s/%s", m.cdnHost, strings.Trim(img.Path, "/"), img.File)
}

// cleanImageURL drops resize parameters and non-http or vector sources
func cleanImageURL(src string) string {
	if !strings.HasPrefix(src, "http") || strings.Contains(src, "svg") {
		return ""
	}
	if cut, _, found := strings.Cut(src, "?ims="); found {
		return cut
	}
	return src
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func (m *Magazord) extractDescription(dp *dataProduct, sd *structuredData, doc *goquery.Document) string {
	var description string
	switch {
	case dp != nil && dp.Description != "":
		description = sanitize.HTML(dp.Description)
	case sd != nil && sd.Description != "":
		description = sd.Description
	default:
		if text := strings.TrimSpace(doc.Find("#descricao-produto .content, .descricao-produto .content").First().Text()); text != "" {
			description = text
		} else if text := strings.TrimSpace(doc.Find(`.product-description, [itemprop="description"], .description-content`).First().Text()); text != "" {
			description = text
		} else if content, exists := doc.Find(`meta[name="description"]`).First().Attr("content"); exists {
			description = content
		}
	}
	if description == "" {
		return ""
	}
	description = helpers.CleanText(html.UnescapeString(description))
	return helpers.Ellipsis(description, maxDescriptionLen)
}

func (m *Magazord) extractCategory(dp *dataProduct, doc *goquery.Document) (string, []string) {
	var path []string
	if dp != nil && len(dp.Categories) > 0 {
		path = dp.Categories
	} else {
		doc.Find(`.breadcrumb a, .breadcrumbs a, nav[aria-label="breadcrumb"] a`).Each(func(i int, s *goquery.Selection) {
			if i == 0 {
				// Skip the leading "Home" crumb
				return
			}
			if text := strings.TrimSpace(s.Text()); text != "" {
				path = append(path, text)
			}
		})
	}
	if len(path) == 0 {
		return "", nil
	}
	return Slugify(path[len(path)-1]), path
}

// Slugify turns a display name into a catalog category id
func Slugify(name string) string {
	return sanitize.Name(strings.ToLower(strings.TrimSpace(name)))
}

func (m *Magazord) extractSpecs(dp *dataProduct, doc *goquery.Document) Specs {
	if dp != nil && len(dp.Specs) > 0 {
		specs := make(Specs, 0, len(dp.Specs))
		for _, s := range dp.Specs {
			if s.Name != "" && s.Value != "" {
				specs = append(specs, Spec{Name: s.Name, Value: s.Value})
			}
		}
		if len(specs) > 0 {
			return specs
		}
	}

	var specs Specs
	section := doc.Find("#caracteristicas .caracteristicas-lista-corrida, .caracteristicas-produto").First()
	if section.Length() > 0 {
		names := section.Find("dt")
		values := section.Find("dd")
		count := names.Length()
		if values.Length() < count {
			count = values.Length()
		}
		for i := 0; i < count; i++ {
			name := strings.TrimSpace(names.Eq(i).Text())
			value := strings.TrimSpace(values.Eq(i).Text())
			// The reference entry duplicates the SKU
			if name == "" || value == "" || strings.EqualFold(name, "referência") {
				continue
			}
			specs = append(specs, Spec{Name: name, Value: value})
		}
	}
	if len(specs) > 0 {
		return specs
	}

	doc.Find(".product-specs tr, .specifications tr, .technical-data tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if name != "" && value != "" {
			specs = append(specs, Spec{Name: name, Value: value})
		}
	})
	return specs
}

func (m *Magazord) extractDatasheet(dp *dataProduct, doc *goquery.Document) string {
	if dp != nil && dp.Datasheet != "" {
		return m.absoluteURL(dp.Datasheet)
	}
	if href, exists := doc.Find(`a[href*="datasheet"], a[href*="manual"], a[href$=".pdf"]`).First().Attr("href"); exists && href != "" {
		return m.absoluteURL(href)
	}
	return ""
}

func (m *Magazord) extractWarranty(dp *dataProduct, specs Specs) string {
	if dp != nil && dp.Warranty != "" {
		return strings.TrimSpace(dp.Warranty)
	}
	if value, ok := specs.Get("Garantia"); ok {
		return value
	}
	return ""
}

func (m *Magazord) extractVideos(dp *dataProduct, doc *goquery.Document) []Video {
	seen := make(map[string]struct{})
	var videos []Video
	add := func(raw string) {
		video := NormalizeVideo(raw)
		if _, ok := seen[video.URL]; ok {
			return
		}
		seen[video.URL] = struct{}{}
		videos = append(videos, video)
	}

	if dp != nil && len(dp.Videos) > 0 {
		for _, raw := range dp.Videos {
			if raw != "" {
				add(raw)
			}
		}
		return videos
	}

	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		// Only recognized players; arbitrary iframes are not product videos
		if strings.Contains(src, "youtube") || strings.Contains(src, "youtu.be") || strings.Contains(src, "vimeo") {
			add(src)
		}
	})
	return videos
}

func (m *Magazord) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	if m.baseURL == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return m.baseURL.ResolveReference(ref).String()
}
