package domain

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var digitMapper = runes.Map(func(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩': // Arabic-Indic
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹': // Extended Arabic-Indic (Persian)
		return '0' + (r - '۰')
	default:
		return r
	}
})

// NormalizeDigits canonicalizes localized digit glyphs to ASCII and trims spaces.
func NormalizeDigits(s string) string {
	out, _, err := transform.String(digitMapper, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}
