package guard

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// homoglyphs maps lower-case Cyrillic and Greek letters that render like Latin
// letters onto the Latin letter. Applied after case folding.
var homoglyphs = map[rune]rune{
	'а': 'a', 'в': 'b', 'е': 'e', 'ё': 'e', 'һ': 'h', 'і': 'i', 'ї': 'i', 'ј': 'j',
	'к': 'k', 'ӏ': 'l', 'м': 'm', 'н': 'h', 'о': 'o', 'р': 'p', 'с': 'c', 'ѕ': 's',
	'т': 't', 'у': 'y', 'х': 'x', 'ԁ': 'd', 'ԛ': 'q', 'ԝ': 'w', 'ь': 'b', 'ѵ': 'v',
	'α': 'a', 'β': 'b', 'ε': 'e', 'η': 'n', 'ι': 'i', 'κ': 'k', 'ν': 'v', 'ο': 'o',
	'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x', 'ω': 'w', 'ς': 's', 'σ': 'o',
}

// Normalize returns the form of text that rules are matched against:
// compatibility-normalized, without combining marks or invisible format
// characters, case folded, with look-alike letters mapped to Latin.
func Normalize(text string) string {
	// Transformers and casers carry state, so each call builds its own.
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.In(unicode.Cf)),
		norm.NFKC,
	)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = norm.NFKC.String(text)
	}
	out = cases.Fold().String(out)
	return strings.Map(func(r rune) rune {
		if m, ok := homoglyphs[r]; ok {
			return m
		}
		return r
	}, out)
}
