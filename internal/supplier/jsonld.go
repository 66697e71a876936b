package supplier

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// structuredData is the subset of a Schema.org Product block the waterfalls
// fall back to when the embedded data object is missing or incomplete.
type structuredData struct {
	Name         string
	Description  string
	SKU          string
	Brand        string
	Images       []string
	Price        float64
	Availability string
}

// extractStructuredData finds the first Schema.org Product object in the
// page's JSON-LD scripts. Malformed blocks are skipped, not reported.
func extractStructuredData(doc *goquery.Document) *structuredData {
	var found *structuredData

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw interface{}
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		for _, candidate := range flattenLD(raw) {
			if sd := productFromLD(candidate); sd != nil {
				found = sd
				return false
			}
		}
		return true
	})

	return found
}

// flattenLD expands top-level arrays and @graph containers into a flat list
// of candidate objects.
func flattenLD(raw interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		out = append(out, v)
		if graph, ok := v["@graph"].([]interface{}); ok {
			for _, item := range graph {
				if m, ok := item.(map[string]interface{}); ok {
					out = append(out, m)
				}
			}
		}
	case []interface{}:
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func productFromLD(m map[string]interface{}) *structuredData {
	typ, _ := m["@type"].(string)
	if !strings.EqualFold(typ, "Product") {
		return nil
	}

	sd := &structuredData{}
	sd.Name, _ = m["name"].(string)
	sd.Description, _ = m["description"].(string)
	sd.SKU, _ = m["sku"].(string)

	switch brand := m["brand"].(type) {
	case string:
		sd.Brand = brand
	case map[string]interface{}:
		sd.Brand, _ = brand["name"].(string)
	}

	switch image := m["image"].(type) {
	case string:
		sd.Images = []string{image}
	case []interface{}:
		for _, item := range image {
			if u, ok := item.(string); ok && u != "" {
				sd.Images = append(sd.Images, u)
			}
		}
	}

	offers := m["offers"]
	if list, ok := offers.([]interface{}); ok && len(list) > 0 {
		offers = list[0]
	}
	if offer, ok := offers.(map[string]interface{}); ok {
		switch price := offer["price"].(type) {
		case float64:
			sd.Price = price
		case string:
			if v, ok := ParseDecimal(price); ok {
				sd.Price = v
			}
		}
		sd.Availability, _ = offer["availability"].(string)
	}

	return sd
}
