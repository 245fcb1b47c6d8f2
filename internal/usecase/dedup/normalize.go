package dedup

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/kailas-cloud/jobfed/internal/domain/record"
)

// NormalizeURL reduces a posting URL to lowercase scheme://host/path without a
// trailing slash, query or fragment. Unusable URLs normalize to "".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return ""
	}
	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")
	return scheme + "://" + host + path
}

// Fingerprint is the fuzzy key of a record without a URL: company|title|location.
func Fingerprint(r *record.Raw) string {
	return normText(r.Company) + "|" + normText(r.Title) + "|" + normText(r.Location)
}

// normText lowercases and collapses whitespace.
func normText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tokens splits text into the lowercase alphanumeric tokens longer than two characters.
func Tokens(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(tok)) > 2 {
			set[tok] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|. Two empty sets are identical; one empty set shares nothing.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// Completeness scores how much information a record carries.
func Completeness(r *record.Raw) int {
	score := 0
	if len(r.Description) > 100 {
		score += 3
	}
	if strings.TrimSpace(r.Salary) != "" {
		score += 2
	}
	if strings.TrimSpace(r.URL) != "" {
		score += 2
	}
	if strings.TrimSpace(r.Location) != "" {
		score++
	}
	if r.PostedAt != nil && !r.PostedAt.IsZero() {
		score++
	}
	if len(r.Tags) > 0 {
		score++
	}
	return score
}
