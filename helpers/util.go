package helpers

import "strings"

// Truncate cuts s to at most max runes
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Ellipsis cuts s to at most max runes, ending with "..." when cut
func Ellipsis(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// CleanText flattens tabs, newlines and repeated spaces into single spaces
func CleanText(s string) string {
	replacer := strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")
	s = replacer.Replace(s)
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}
