package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Turkish lower-casing maps İ → i and I → ı before folding. A Caser keeps state, so
// each call gets its own.
func turkishLower(s string) string {
	return cases.Lower(language.Turkish).String(s)
}

var turkishFold = strings.NewReplacer(
	"ç", "c",
	"ğ", "g",
	"ı", "i",
	"ö", "o",
	"ş", "s",
	"ü", "u",
)

// Normalize produces the canonical matching form of a text: Turkish-aware lower case,
// Turkish letters folded to ASCII, punctuation and symbols removed, whitespace collapsed.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	lowered := turkishFold.Replace(turkishLower(s))

	var builder strings.Builder
	builder.Grow(len(lowered))
	pendingSpace := false
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && builder.Len() > 0 {
				builder.WriteByte(' ')
			}
			pendingSpace = false
			builder.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		default:
			// punctuation and symbols are dropped without a space
		}
	}
	return builder.String()
}

// TruncateString truncates a string to maxRunes characters (rune-based, not byte-based)
// If truncated, appends "..." to the result
func TruncateString(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// Contains checks if a string slice contains a specific item
func Contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// UniqueStrings keeps the first occurrence of every non-empty value, in order.
func UniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
