package textindex

import (
	"regexp"
	"strings"
)

// splitPattern is spec.md §4.G's fixed punctuation/whitespace class. It is
// part of the on-disk format's test surface: changing it changes every
// BM25 ranking, so it is not configurable.
var splitPattern = regexp.MustCompile(`[\s\-_.,!?;:'"()\[\]{}|\\/<>@#$%^&*+=~` + "`" + `]+`)

// tokenize lowercases s and splits it on splitPattern, discarding empty
// tokens. Unicode letter runs outside the punctuation class are preserved
// verbatim.
func tokenize(s string) []string {
	parts := splitPattern.Split(strings.ToLower(s), -1)

	tokens := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != "" {
			tokens = append(tokens, p)
		}
	}

	return tokens
}
