// Package textx normalizes the free-form strings customers type at the kiosk
// (email, folder number) before they are stored as object metadata.
package textx

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lowerDomain = cases.Lower(language.Und)

// Normalize trims surrounding whitespace and converts s to Unicode NFC so
// visually identical input compares equal.
func Normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizeEmail normalizes s and lower-cases the domain part. The local
// part is left as typed.
func NormalizeEmail(s string) string {
	s = Normalize(s)
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return s
	}
	return s[:at+1] + lowerDomain.String(s[at+1:])
}

// LooksLikeEmail is the basic shape check: exactly one "@" with something on
// both sides and no whitespace.
func LooksLikeEmail(s string) bool {
	if strings.Count(s, "@") != 1 || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	local, domain, _ := strings.Cut(s, "@")
	return local != "" && domain != ""
}

// SafeFileComponent replaces everything outside [a-zA-Z0-9.-] with '_' so the
// value can be embedded in an object name.
func SafeFileComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
