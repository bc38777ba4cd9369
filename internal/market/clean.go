package market

import (
	"strconv"
	"strings"
	"unicode"
)

// CleanDisplayName normalizes an item name as rendered by the host UI so it
// can be compared against a catalog name. The UI prefixes/suffixes item
// names with icon glyphs that survive text extraction as a leading "HI" or
// trailing "IH" artifact; those are stripped along with every character that
// is neither alphanumeric nor whitespace.
func CleanDisplayName(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	cleaned = strings.TrimPrefix(cleaned, "HI")
	cleaned = strings.TrimSuffix(cleaned, "IH")

	return strings.TrimSpace(cleaned)
}

// parseDigits extracts the digit characters of a rendered string and parses
// them as a number. Thousands separators, currency glyphs and any other
// locale formatting are dropped implicitly.
func parseDigits(s string) (int, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}

	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
