package index

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	markupPolicy = bluemonday.StrictPolicy()

	tagPattern    = regexp.MustCompile(`(?s)<.*?>`)
	entityPattern = regexp.MustCompile(`(?s)&.*?;`)
	noisePattern  = regexp.MustCompile(`\.torrent|www\.|\.com|[\\/%_;\-.()\[\]<>&\n\r\x{2013}]`)
)

// ignorableKeywords never narrow a full-text query on their own.
var ignorableKeywords = map[string]struct{}{
	"me": {}, "you": {}, "he": {}, "she": {}, "they": {}, "them": {}, "we": {}, "us": {},
	"my": {}, "your": {}, "yours": {}, "his": {}, "hers": {}, "theirs": {}, "ours": {},
	"the": {}, "of": {}, "in": {}, "on": {}, "out": {}, "to": {}, "at": {}, "as": {},
	"and": {}, "by": {}, "not": {}, "is": {}, "are": {}, "am": {}, "was": {}, "were": {},
	"will": {}, "be": {}, "for": {}, "el": {}, "la": {}, "es": {}, "de": {}, "los": {},
	"las": {}, "en": {},
}

// Sanitize turns free text (torrent names, file paths, queries) into the
// keyword form stored in the index: markup and entities removed, diacritics
// folded, separators collapsed to single spaces, lowercase.
func Sanitize(s string) string {
	s = markupPolicy.Sanitize(s)
	s = tagPattern.ReplaceAllString(s, "")
	s = entityPattern.ReplaceAllString(s, "")
	s = foldDiacritics(s)
	s = strings.ToLower(s)
	s = noisePattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens returns the distinct sanitized tokens of a query, in order of
// first appearance.
func Tokens(query string) []string {
	fields := strings.Fields(Sanitize(query))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// ContainsAll reports whether every token occurs in keywords as a substring.
func ContainsAll(keywords string, tokens []string) bool {
	for _, tok := range tokens {
		if !strings.Contains(keywords, tok) {
			return false
		}
	}
	return true
}

// buildMatchQuery converts a raw query into an FTS5 expression. Every token
// is quoted (embedded quotes doubled) and prefix-matched; tokens are ANDed.
// Ignorable keywords are dropped unless that would leave nothing.
func buildMatchQuery(query string) string {
	tokens := Tokens(query)
	if len(tokens) == 0 {
		return ""
	}

	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := ignorableKeywords[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		kept = tokens
	}

	quoted := make([]string, 0, len(kept))
	for _, w := range kept {
		// Strip FTS5 operators that would confuse the parser.
		w = strings.NewReplacer(
			`"`, "",
			"{", "",
			"}", "",
			"^", "",
			"*", "",
			":", "",
		).Replace(w)
		if !hasAlnum(w) {
			continue
		}
		quoted = append(quoted, `"`+w+`"*`)
	}
	return strings.Join(quoted, " ")
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
