package identity

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowed = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s@.\-]+`)
	spaces     = regexp.MustCompile(`\s+`)
	lower      = cases.Lower(language.Und)
)

// Normalize folds an identifier for comparison: NFC composed, lower-cased,
// stripped of anything but letters, digits, underscore, whitespace, '@', '.'
// and '-', with whitespace runs collapsed.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = lower.String(s)
	s = disallowed.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// localPart returns the part of an email before '@', or "" when s has none.
func localPart(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:at]
}

func isSeparator(r rune) bool {
	return r == '.' || r == '_' || r == '-'
}
