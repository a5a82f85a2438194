// Package evaluation scores generated answers against reference answers and
// retrieved chunks against the reference answer. The text and ranking
// scorers are pure functions. RelevanceJudge calls its injected embedder.
// Everything here is safe for concurrent use.
package evaluation

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize lowercases text, removes the standalone articles "a", "an" and
// "the", drops every character other than a-z, 0-9 and whitespace, collapses
// whitespace runs to one space and trims the result.
//
// A word is a maximal run of Unicode letters, digits and underscores, so
// "zoëan" is one word and keeps its "an". Articles are stripped again after
// punctuation removal so that inputs such as "t-he" cannot surface a new
// article and Normalize stays idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// cases.Caser keeps internal state, so one is built per call.
	s := cases.Lower(language.Und).String(text)
	s = stripArticles(s)
	s = strings.Map(keepAlnumSpace, s)
	s = stripArticles(s)
	return strings.Join(strings.Fields(s), " ")
}

// stripArticles replaces every word that is exactly "a", "an" or "the" with
// a space and leaves all other text untouched.
func stripArticles(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for s != "" {
		start := strings.IndexFunc(s, isWordRune)
		if start < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		s = s[start:]

		end := strings.IndexFunc(s, isNotWordRune)
		if end < 0 {
			end = len(s)
		}
		switch word := s[:end]; word {
		case "a", "an", "the":
			b.WriteByte(' ')
		default:
			b.WriteString(word)
		}
		s = s[end:]
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

func isNotWordRune(r rune) bool { return !isWordRune(r) }

func keepAlnumSpace(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return r
	case unicode.IsSpace(r):
		return ' '
	default:
		return -1
	}
}

// normalizedTokenSet splits the normalized text on whitespace and collapses
// duplicates.
func normalizedTokenSet(text string) map[string]struct{} {
	fields := strings.Fields(Normalize(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
