package supplier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blumenau/catalogworker/helpers"
	"blumenau/catalogworker/services/cache"
)

func testAdapter() *Magazord {
	return NewMagazord(Config{
		Name:       "proesi",
		IDPrefix:   "proesi",
		BaseURL:    "https://www.proesi.com.br",
		SitemapURL: "https://www.proesi.com.br/sitemap-produto.xml",
	})
}

func TestCDNHostDerivation(t *testing.T) {
	assert.Equal(t, "proesi.cdn.magazord.com.br", testAdapter().cdnHost)

	lojavale := NewMagazord(Config{
		Name:    "lojavale",
		BaseURL: "https://www.lojavale.com.br",
	})
	assert.Equal(t, "lojavale.cdn.magazord.com.br", lojavale.cdnHost)
}

func TestParsePageFromDataProduct(t *testing.T) {
	page := `<html><head>
		<meta property="og:image" content="https://www.proesi.com.br/social/ignored.jpg">
		<title>Página | Proesi</title>
	</head><body>
	<h1 class="product-name">Nome do seletor ignorado</h1>
	<script>
	var dataProduct = {
		"codigo": "ARD-UNO",
		"nome": "Placa Uno R3 + Cabo USB",
		"precoVenda": 89.90,
		"precoPix": 85.40,
		"estoque": 42,
		"marca": "RoboCore",
		"descricao": "<p>Placa com microcontrolador &amp; cabo USB.</p>",
		"imagens": [
			"https://proesi.cdn.magazord.com.br/img/uno-a.jpg",
			{"caminho": "produtos/arduino", "arquivo": "uno-b.jpg"}
		],
		"videos": ["https://www.youtube.com/watch?v=abc123xyz"],
		"categorias": ["Placas", "Arduino"],
		"garantia": "90 dias",
		"caracteristicas": [
			{"nome": "Tensão", "valor": "5V"},
			{"nome": "Garantia", "valor": "90 dias"}
		]
	};
	</script>
	</body></html>`

	p, err := testAdapter().ParsePage("https://www.proesi.com.br/placa-uno-r3", strings.NewReader(page))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "proesi-ARD-UNO", p.ID)
	assert.Equal(t, "ARD-UNO", p.SKU)
	assert.Equal(t, "Placa Uno R3 + Cabo USB", p.Name)
	assert.Equal(t, "placa-uno-r3", p.Slug)
	assert.Equal(t, "RoboCore", p.Brand)
	assert.InDelta(t, 89.90, p.Price, 0.001)
	assert.Equal(t, "R$ 89,90", p.PriceFormatted)
	assert.InDelta(t, 85.40, p.PricePix, 0.001)
	require.NotNil(t, p.Stock)
	assert.Equal(t, 42, *p.Stock)
	assert.True(t, p.InStock)
	assert.Equal(t, "Placa com microcontrolador & cabo USB.", p.Description)
	assert.Equal(t, "arduino", p.Category)
	assert.Equal(t, []string{"Placas", "Arduino"}, p.CategoryPath)

	// dataProduct images win over og:image; path pairs rebuild on the CDN host
	require.Len(t, p.Images, 2)
	assert.Equal(t, "https://proesi.cdn.magazord.com.br/img/uno-a.jpg", p.Images[0])
	assert.Equal(t, "https://proesi.cdn.magazord.com.br/produtos/arduino/uno-b.jpg", p.Images[1])
	assert.Equal(t, p.Images[0], p.Image)

	require.Len(t, p.Videos, 1)
	assert.Equal(t, "https://www.youtube.com/embed/abc123xyz", p.Videos[0].URL)
	assert.Equal(t, PlatformYouTube, p.Videos[0].Platform)

	assert.Equal(t, "90 dias", p.Warranty)
	value, ok := p.Specs.Get("Tensão")
	assert.True(t, ok)
	assert.Equal(t, "5V", value)

	assert.Equal(t, "proesi", p.Supplier)
	assert.Equal(t, "https://www.proesi.com.br/placa-uno-r3", p.SourceURL)
}

func TestParsePageFromStructuredData(t *testing.T) {
	page := `<html><head>
	<script type="application/ld+json">
	{
		"@context": "https://schema.org",
		"@type": "Product",
		"name": "Protoboard 830 Pontos",
		"sku": "PROTO-830",
		"description": "Protoboard com 830 pontos de conexão.",
		"brand": {"@type": "Brand", "name": "Hikari"},
		"image": ["https://proesi.cdn.magazord.com.br/img/proto.jpg"],
		"offers": {
			"@type": "Offer",
			"price": "24.90",
			"availability": "https://schema.org/InStock"
		}
	}
	</script>
	</head><body></body></html>`

	p, err := testAdapter().ParsePage("https://www.proesi.com.br/protoboard-830", strings.NewReader(page))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "Protoboard 830 Pontos", p.Name)
	assert.InDelta(t, 24.90, p.Price, 0.001)
	assert.Equal(t, "Hikari", p.Brand)
	assert.True(t, p.InStock)
	assert.Nil(t, p.Stock)
	assert.Equal(t, []string{"https://proesi.cdn.magazord.com.br/img/proto.jpg"}, p.Images)
	assert.Equal(t, "Protoboard com 830 pontos de conexão.", p.Description)
}

func TestParsePageFromSelectors(t *testing.T) {
	page := `<html><head>
		<meta property="og:image" content="https://www.proesi.com.br/social/cabo.jpg">
	</head><body>
	<nav class="breadcrumb">
		<a href="/">Home</a>
		<a href="/cabos">Cabos</a>
		<a href="/cabos/usb">Cabos USB</a>
	</nav>
	<h1 class="product-name">Cabo USB A-B 1,8m</h1>
	<div class="price-value">R$ 1.234,56</div>
	<div class="caract-referencia"><dt>Referência</dt><dd>CB-USB-18</dd></div>
	<span class="availability">indisponível</span>
	</body></html>`

	p, err := testAdapter().ParsePage("https://www.proesi.com.br/cabo-usb-ab", strings.NewReader(page))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "Cabo USB A-B 1,8m", p.Name)
	assert.InDelta(t, 1234.56, p.Price, 0.001)
	assert.Equal(t, "CB-USB-18", p.SKU)
	assert.Equal(t, "proesi-CB-USB-18", p.ID)
	assert.False(t, p.InStock)
	require.NotNil(t, p.Stock)
	assert.Equal(t, 0, *p.Stock)
	assert.Equal(t, []string{"Cabos", "Cabos USB"}, p.CategoryPath)
	assert.Equal(t, "cabos-usb", p.Category)

	// Nothing better than og:image on this template, so it is used verbatim
	assert.Equal(t, []string{"https://www.proesi.com.br/social/cabo.jpg"}, p.Images)
}

func TestParsePageTitleFallbackName(t *testing.T) {
	page := `<html><head><title> Sensor LDR 5mm | Proesi </title></head><body>
	<div class="product-price">R$ 3,50</div>
	</body></html>`

	p, err := testAdapter().ParsePage("https://www.proesi.com.br/sensor-ldr", strings.NewReader(page))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Sensor LDR 5mm", p.Name)
	assert.Equal(t, "proesi-sensor-ldr", p.ID)
}

func TestParsePageNoData(t *testing.T) {
	tests := []struct {
		name string
		page string
	}{
		{"empty page", "<html><body></body></html>"},
		{"name without price", `<html><body><h1 class="product-name">Produto</h1></body></html>`},
		{"price without name", `<html><body><div class="price-value">R$ 10,00</div></body></html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := testAdapter().ParsePage("https://www.proesi.com.br/x", strings.NewReader(tt.page))
			assert.NoError(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestIsProductURL(t *testing.T) {
	m := testAdapter()

	assert.True(t, m.isProductURL("https://www.proesi.com.br/placa-uno-r3"))
	assert.False(t, m.isProductURL("https://www.proesi.com.br/banner.jpg"))
	assert.False(t, m.isProductURL("https://www.proesi.com.br/foto.PNG"))
	assert.False(t, m.isProductURL("https://proesi.cdn.magazord.com.br/img/uno.jpg"))
	assert.False(t, m.isProductURL("https://www.outraloja.com.br/produto"))
	assert.False(t, m.isProductURL("https://www.proesi.com.br"))
}

func TestListProductURLs(t *testing.T) {
	var sitemap string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, sitemap)
	}))
	defer server.Close()

	sitemap = `<?xml version="1.0" encoding="UTF-8"?>
	<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
		<url><loc>` + server.URL + `/placa-uno-r3</loc></url>
		<url><loc>` + server.URL + `/sensor-ldr</loc></url>
		<url><loc>` + server.URL + `/banner.jpg</loc></url>
		<url><loc>https://proesi.cdn.magazord.com.br/img/a.webp</loc></url>
	</urlset>`

	m := NewMagazord(Config{
		Name:       "proesi",
		IDPrefix:   "proesi",
		BaseURL:    server.URL,
		SitemapURL: server.URL + "/sitemap-produto.xml",
	})

	fetcher := helpers.NewFetcher("proesi", 5*time.Second, cache.NewMemoryService(), time.Minute)
	urls, err := m.ListProductURLs(context.Background(), fetcher)
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/placa-uno-r3", server.URL + "/sensor-ldr"}, urls)
}

func TestListProductURLsSitemapDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m := NewMagazord(Config{
		Name:       "proesi",
		BaseURL:    server.URL,
		SitemapURL: server.URL + "/sitemap-produto.xml",
	})

	fetcher := helpers.NewFetcher("proesi", 5*time.Second, cache.NewMemoryService(), time.Minute)
	urls, err := m.ListProductURLs(context.Background(), fetcher)
	assert.Error(t, err)
	assert.Nil(t, urls)
}
