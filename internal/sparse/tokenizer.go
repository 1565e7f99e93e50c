// Package sparse implements the BM25 term-frequency baseline ranker.
package sparse

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lower-cased word tokens. Lower-casing uses the
// Turkish case mapping so dotted/dotless I fold correctly (İ -> i, I -> ı);
// the corpus is Turkish legal text and the standard mapping would split
// those term statistics. Tokens are maximal runs of letters and digits.
func Tokenize(text string) []string {
	lowered := strings.ToLowerSpecial(unicode.TurkishCase, text)

	return strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
