package rank

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/jobfed/internal/domain/record"
)

// Matcher decides whether a skill is mentioned by a record.
type Matcher interface {
	Match(skill string, r *record.Raw) bool
}

// MatcherFunc adapts a plain function to Matcher.
type MatcherFunc func(skill string, r *record.Raw) bool

// Match calls f.
func (f MatcherFunc) Match(skill string, r *record.Raw) bool { return f(skill, r) }

// TextMatcher is the default matcher. Single-word skills match on word boundaries in
// the title or description, multi-word skills match as substrings, and any skill
// matches a tag with the same name regardless of case.
type TextMatcher struct{}

// Match implements Matcher.
func (TextMatcher) Match(skill string, r *record.Raw) bool {
	skill = strings.ToLower(strings.TrimSpace(skill))
	if skill == "" {
		return false
	}
	for _, tag := range r.Tags {
		if strings.EqualFold(strings.TrimSpace(tag), skill) {
			return true
		}
	}
	text := strings.ToLower(r.Title + "\n" + r.Description)
	if strings.ContainsAny(skill, " \t") {
		return strings.Contains(text, skill)
	}
	return containsWord(text, skill)
}

// containsWord reports whether word occurs in text with no letter or digit on either side.
func containsWord(text, word string) bool {
	for from := 0; from <= len(text)-len(word); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if !wordRuneBefore(text, start) && !wordRuneAt(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func wordRuneBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return isWordRune(r)
}

func wordRuneAt(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return isWordRune(r)
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
