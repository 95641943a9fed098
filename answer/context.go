package answer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/dossier/core"
)

const contextSeparator = "\n\n"

// BuildContext renders docs as numbered blocks ("[1] ...") in order, stopping
// before the first document that would push the block past maxChars runes.
// The first document is truncated rather than dropped, so the context is
// never empty when docs is not. It returns the block and how many documents
// it includes.
func BuildContext(docs []core.Document, maxChars int) (string, int) {
	var b strings.Builder
	used := 0
	for i, doc := range docs {
		block := "[" + strconv.Itoa(i+1) + "] " + strings.TrimSpace(doc.Content)
		size := utf8.RuneCountInString(block)

		if i == 0 {
			if size > maxChars {
				block = truncateRunes(block, maxChars)
				size = maxChars
			}
		} else {
			if used+len(contextSeparator)+size > maxChars {
				return b.String(), i
			}
			b.WriteString(contextSeparator)
			used += len(contextSeparator)
		}
		b.WriteString(block)
		used += size
	}
	return b.String(), len(docs)
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
