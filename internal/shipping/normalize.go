package shipping

import (
	"regexp"
	"strings"
	"unicode"
)

// NormalizeText is applied to every rule value and address field before comparison.
func NormalizeText(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizePostalCode uppercases and removes all whitespace, so "m5h 2n2" == "M5H2N2".
func NormalizePostalCode(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// MatchPostalPattern reports whether the whole postal code matches pattern,
// where '*' stands for any run of characters. Everything else is literal.
func MatchPostalPattern(postalCode, pattern string) bool {
	code := NormalizePostalCode(postalCode)
	if code == "" {
		return false
	}
	p := NormalizePostalCode(pattern)
	if p == "" {
		return false
	}

	re, err := compilePostalPattern(p)
	if err != nil {
		return false
	}
	return re.MatchString(code)
}

func compilePostalPattern(normalized string) (*regexp.Regexp, error) {
	parts := strings.Split(normalized, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
