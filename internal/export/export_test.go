package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blumenau/catalogworker/internal/catalog"
	"blumenau/catalogworker/internal/supplier"
)

func intPtr(v int) *int { return &v }

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		TotalProducts: 3,
		Products: []supplier.Product{
			{
				ID:           "proesi-ARD-UNO",
				SKU:          "ARD-UNO",
				Name:         "Placa Uno R3",
				Slug:         "placa-uno-r3",
				Brand:        "RoboCore",
				Price:        89.90,
				Stock:        intPtr(42),
				InStock:      true,
				Description:  "Placa com cabo USB.\nCompatível com shields.",
				CategoryPath: []string{"Placas", "Arduino"},
				Image:        "https://proesi.cdn.magazord.com.br/img/uno.jpg",
				Images:       []string{"https://proesi.cdn.magazord.com.br/img/uno.jpg"},
				SourceURL:    "https://www.proesi.com.br/placa-uno-r3",
				Supplier:     "proesi",
			},
			{
				ID:        "proesi-RES-10K",
				SKU:       "RES-10K",
				Name:      "Resistor 10K",
				Slug:      "resistor-10k",
				Price:     0.15,
				InStock:   false,
				SourceURL: "https://www.proesi.com.br/resistor-10k",
				Supplier:  "proesi",
			},
			{
				ID:        "lojavale-PAR-M3",
				SKU:       "PAR-M3",
				Name:      "Parafuso M3",
				Slug:      "parafuso-m3",
				Price:     2.50,
				InStock:   true,
				SourceURL: "https://www.lojavale.com.br/parafuso-m3",
				Supplier:  "lojavale",
			},
		},
	}
}

func readRows(t *testing.T, path string, comma rune) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExportGoogleMerchant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.tsv")
	e := NewExporter("https://www.blumenauautomacao.com.br")
	require.NoError(t, e.Export(testCatalog(), FormatGoogleMerchant, path))

	rows := readRows(t, path, '\t')
	require.Len(t, rows, 4, "header plus every product, stock state notwithstanding")
	assert.Equal(t, []string{
		"id", "title", "description", "link", "image_link",
		"availability", "price", "brand", "condition",
		"identifier_exists", "product_type",
	}, rows[0])

	uno := rows[1]
	assert.Equal(t, "proesi-ARD-UNO", uno[0])
	assert.Equal(t, "Placa Uno R3", uno[1])
	assert.Equal(t, "Placa com cabo USB. Compatível com shields.", uno[2])
	assert.Equal(t, "https://www.blumenauautomacao.com.br/produto.html?slug=placa-uno-r3", uno[3])
	assert.Equal(t, "https://proesi.cdn.magazord.com.br/img/uno.jpg", uno[4])
	assert.Equal(t, "in_stock", uno[5])
	assert.Equal(t, "89.90 BRL", uno[6])
	assert.Equal(t, "RoboCore", uno[7])
	assert.Equal(t, "new", uno[8])
	assert.Equal(t, "false", uno[9])
	assert.Equal(t, "Placas > Arduino", uno[10])

	resistor := rows[2]
	assert.Equal(t, "out_of_stock", resistor[5])
	assert.Equal(t, "Resistor 10K", resistor[2], "description falls back to the title")
	assert.Equal(t, "Importado", resistor[7], "brand falls back to the default")
}

func TestExportGoogleLinkFallsBackToSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.tsv")
	e := NewExporter("")
	require.NoError(t, e.Export(testCatalog(), FormatGoogleMerchant, path))

	rows := readRows(t, path, '\t')
	assert.Equal(t, "https://www.proesi.com.br/placa-uno-r3", rows[1][3])
}

func TestExportMarketplaceFiltersUnsellable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	e := NewExporter("https://www.blumenauautomacao.com.br")
	require.NoError(t, e.Export(testCatalog(), FormatMercadoLivre, path))

	rows := readRows(t, path, ';')
	require.Len(t, rows, 3, "header plus the two in-stock products")
	assert.Equal(t, []string{"sku", "titulo", "descricao", "preco", "estoque", "categoria", "imagens", "link"}, rows[0])

	assert.Equal(t, "ARD-UNO", rows[1][0])
	assert.Equal(t, "89.90", rows[1][3])
	assert.Equal(t, "42", rows[1][4])

	// No explicit stock count defaults to 1 sellable unit
	assert.Equal(t, "PAR-M3", rows[2][0])
	assert.Equal(t, "1", rows[2][4])
}

func TestExportShopeeSameShapeAsMercadoLivre(t *testing.T) {
	dir := t.TempDir()
	ml := filepath.Join(dir, "ml.csv")
	sp := filepath.Join(dir, "shopee.csv")
	e := NewExporter("https://www.blumenauautomacao.com.br")
	require.NoError(t, e.Export(testCatalog(), FormatMercadoLivre, ml))
	require.NoError(t, e.Export(testCatalog(), FormatShopee, sp))

	a, err := os.ReadFile(ml)
	require.NoError(t, err)
	b, err := os.ReadFile(sp)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestExportUnknownFormat(t *testing.T) {
	e := NewExporter("")
	err := e.Export(testCatalog(), "ebay", filepath.Join(t.TempDir(), "x.csv"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ebay"))
}

func TestExportGoogleTruncatesLongTitles(t *testing.T) {
	cat := testCatalog()
	cat.Products[0].Name = strings.Repeat("Placa Uno R3 ", 20)

	path := filepath.Join(t.TempDir(), "feed.tsv")
	require.NoError(t, NewExporter("").Export(cat, FormatGoogleMerchant, path))

	rows := readRows(t, path, '\t')
	assert.LessOrEqual(t, len([]rune(rows[1][1])), 150)
	assert.True(t, strings.HasSuffix(rows[1][1], "..."))
}
