package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// canonicalName collapses whitespace and title-cases a personal name.
func canonicalName(raw string) string {
	collapsed := strings.Join(strings.Fields(raw), " ")
	if collapsed == "" {
		return ""
	}
	// Casers keep state and must not be shared between goroutines.
	return cases.Title(language.Spanish).String(collapsed)
}

// foldSearch lowercases s and strips diacritics so "Peña" matches "pena".
func foldSearch(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

func searchKey(first, last string) string {
	return foldSearch(first + " " + last)
}
