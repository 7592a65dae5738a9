package session

import (
	"strings"
	"unicode"
)

// NormalizeInput lowercases text and strips punctuation, keeping
// letter/digit runs separated by single spaces. Button labels and
// free-text answers are matched against this form.
func NormalizeInput(text string) string {
	var words []string
	var cur strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return strings.Join(words, " ")
}

// NormalizeCityTitle rewrites a free-text city name the way stored
// titles are cased: up to two tokens get per-token capitalization,
// hyphenated compounds of three or more keep their middle segments
// lowercase, and longer phrases are fully title-cased. Normalizing an
// already-normalized title returns it unchanged.
func NormalizeCityTitle(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))

	var sep rune
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			sep = r
			break
		}
	}
	if sep == 0 {
		return capitalize(s)
	}

	parts := strings.Split(s, string(sep))
	if len(parts) >= 3 && sep == '-' {
		parts[0] = capitalize(parts[0])
		parts[len(parts)-1] = capitalize(parts[len(parts)-1])
	} else {
		for i, part := range parts {
			parts[i] = capitalize(part)
		}
	}
	return strings.Join(parts, string(sep))
}

func capitalize(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
