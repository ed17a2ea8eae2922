package util

import (
	"regexp"
	"strings"
	"unicode"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeText strips control and invisible characters from free text such
// as a transfer description and collapses whitespace runs.
func SanitizeText(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range raw {
		if r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(' ')
			continue
		}
		if unicode.IsControl(r) || isInvisibleUnicode(r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// SanitizeFilename makes name safe for a Content-Disposition header. It
// never returns an empty string.
func SanitizeFilename(name string, fallback string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(SanitizeText(name), "_")
	cleaned = strings.Trim(cleaned, "._")

	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}
	if cleaned == "" {
		return fallback
	}
	return cleaned
}

func isInvisibleUnicode(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF':
		return true
	}
	// format characters (Cf) cover bidi marks and the rest
	return unicode.Is(unicode.Cf, r)
}
