package retrieval

import (
	"regexp"
	"strings"
)

var tokenRx = regexp.MustCompile(`[A-Za-z0-9._-]+`)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {}, "of": {}, "for": {}, "on": {},
	"in": {}, "by": {}, "with": {}, "at": {}, "is": {}, "are": {}, "be": {}, "this": {}, "that": {}, "it": {},
}

// Tokenize splits text into lowercase terms, dropping stop words and
// single-character tokens. Output order follows the input.
func Tokenize(text string) []string {
	raw := tokenRx.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(t)
		if len(t) <= 1 {
			continue
		}
		if _, stop := stopWords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}
