package index

import (
	"strings"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// Words shorter than this are kept as written.
const minStemLen = 3

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {},
	"with": {},
}

// Tokenize lower-cases text, splits it on anything that is not a letter or
// digit, drops stop words and reduces the rest to their Porter stems.
// Repeated tokens are kept once, in order of first appearance.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, word := range words {
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		token := stem(word)
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

func stem(word string) string {
	if len(word) < minStemLen {
		return word
	}
	return porterstemmer.StemString(word)
}
