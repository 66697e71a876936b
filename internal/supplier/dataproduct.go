package supplier

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// dataProductMarker anchors the script-injected product object the platform
// embeds in every product page. The fragment is close to JSON but template
// versions emit trailing commas and occasionally broken nesting, so parsing
// degrades through three tiers: strict decode of the assignment's right-hand
// side (after comma repair), strict decode of a brace-matched substring, and
// finally individually anchored field regexes.
const dataProductMarker = "dataProduct"

type dataProduct struct {
	ID          int64            `json:"idProduto"`
	Code        string           `json:"codigo"`
	Name        string           `json:"nome"`
	Price       float64          `json:"precoVenda"`
	PricePix    float64          `json:"precoPix"`
	Stock       *int             `json:"estoque"`
	Description string           `json:"descricao"`
	Brand       string           `json:"marca"`
	Images      []dataImage      `json:"imagens"`
	Videos      []string         `json:"videos"`
	Categories  []string         `json:"categorias"`
	Datasheet   string           `json:"datasheet"`
	Warranty    string           `json:"garantia"`
	Specs       []dataProductSpec `json:"caracteristicas"`
}

type dataProductSpec struct {
	Name  string `json:"nome"`
	Value string `json:"valor"`
}

// dataImage is either a direct URL string or a {caminho, arquivo} pair that
// must be rebuilt against the supplier's CDN host.
type dataImage struct {
	URL  string `json:"url"`
	Path string `json:"caminho"`
	File string `json:"arquivo"`
}

func (d *dataImage) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		d.URL = s
		return nil
	}
	type alias dataImage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = dataImage(a)
	return nil
}

var (
	assignmentRe    = regexp.MustCompile(`dataProduct\s*=\s*(\{[\s\S]*?\})\s*;`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// extractDataProduct pulls the embedded product object out of raw page HTML.
// Returns nil when no usable fragment is found.
func extractDataProduct(html string) *dataProduct {
	idx := strings.Index(html, dataProductMarker)
	if idx < 0 {
		return nil
	}

	// Tier 1: right-hand side of the assignment, strict decode after repair
	if m := assignmentRe.FindStringSubmatch(html[idx:]); m != nil {
		if dp := decodeDataProduct(m[1]); dp != nil {
			return dp
		}
	}

	// Tier 2: brace-matched substring anchored on the marker
	if raw, ok := braceMatch(html[idx:]); ok {
		if dp := decodeDataProduct(raw); dp != nil {
			return dp
		}
	}

	// Tier 3: anchored field regexes over the script tail
	return regexDataProduct(html[idx:])
}

func decodeDataProduct(raw string) *dataProduct {
	repaired := trailingCommaRe.ReplaceAllString(raw, "$1")
	var dp dataProduct
	if err := json.Unmarshal([]byte(repaired), &dp); err != nil {
		return nil
	}
	if dp.Name == "" && dp.Price == 0 && dp.Code == "" {
		// Decoded cleanly but carries nothing useful
		return nil
	}
	return &dp
}

// braceMatch returns the substring spanning the first balanced {...} block
// after the marker, honoring string literals and escape sequences.
func braceMatch(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// Tier 3 field anchors
var (
	dpStringRes = map[string]*regexp.Regexp{
		"nome":      regexp.MustCompile(`"nome"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		"codigo":    regexp.MustCompile(`"codigo"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		"marca":     regexp.MustCompile(`"marca"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		"descricao": regexp.MustCompile(`"descricao"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		"garantia":  regexp.MustCompile(`"garantia"\s*:\s*"((?:[^"\\]|\\.)*)"`),
	}
	dpPriceRe    = regexp.MustCompile(`"precoVenda"\s*:\s*([\d.]+)`)
	dpPricePixRe = regexp.MustCompile(`"precoPix"\s*:\s*([\d.]+)`)
	dpStockRe    = regexp.MustCompile(`"estoque"\s*:\s*(\d+)`)
)

func regexDataProduct(s string) *dataProduct {
	dp := &dataProduct{}
	found := false

	get := func(key string) string {
		if m := dpStringRes[key].FindStringSubmatch(s); m != nil {
			var out string
			if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &out); err == nil {
				found = true
				return out
			}
		}
		return ""
	}

	dp.Name = get("nome")
	dp.Code = get("codigo")
	dp.Brand = get("marca")
	dp.Description = get("descricao")
	dp.Warranty = get("garantia")

	if m := dpPriceRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			dp.Price = v
			found = true
		}
	}
	if m := dpPricePixRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			dp.PricePix = v
			found = true
		}
	}
	if m := dpStockRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			dp.Stock = &v
			found = true
		}
	}

	if !found {
		return nil
	}
	return dp
}
