package supplier

import (
	"regexp"
	"strconv"
	"strings"
)

var numberRe = regexp.MustCompile(`[\d.,]+`)

// ParseBRL extracts a price from pt-BR display text such as "R$ 1.234,56",
// where '.' groups thousands and ',' separates decimals.
func ParseBRL(text string) (float64, bool) {
	match := numberRe.FindString(text)
	if match == "" {
		return 0, false
	}

	if strings.Contains(match, ",") {
		match = strings.ReplaceAll(match, ".", "")
		match = strings.ReplaceAll(match, ",", ".")
	} else if strings.Count(match, ".") > 1 || isThousandsGrouped(match) {
		// "1.234" or "1.234.567" without a comma is grouped thousands
		match = strings.ReplaceAll(match, ".", "")
	}

	value, err := strconv.ParseFloat(strings.Trim(match, "."), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// isThousandsGrouped reports whether a single '.' splits groups of exactly
// three digits, e.g. "1.234" but not "123.45".
func isThousandsGrouped(s string) bool {
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return false
	}
	return len(s)-idx-1 == 3
}

// ParseDecimal parses machine-oriented price text from meta tags and
// structured data, e.g. "123.45" or "123,45".
func ParseDecimal(text string) (float64, bool) {
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// FormatBRL renders a price the way the storefronts display it: "R$ 1.234,56"
func FormatBRL(value float64) string {
	s := strconv.FormatFloat(value, 'f', 2, 64)
	parts := strings.SplitN(s, ".", 2)
	intPart, frac := parts[0], parts[1]

	negative := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(digit)
	}

	out := "R$ " + grouped.String() + "," + frac
	if negative {
		out = "R$ -" + grouped.String() + "," + frac
	}
	return out
}
