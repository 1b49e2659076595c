package discussion

import (
	"strings"
	"unicode/utf8"
)

const maxTopicIDLength = 50

// TopicID derives the document id for a topic label: every rune outside
// [A-Za-z0-9_] becomes '_', the result is lowercased and cut to 50 runes.
// Distinct labels can collide ("C++" and "C--" both map to "c__").
func TopicID(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	n := 0
	for _, r := range label {
		if n == maxTopicIDLength {
			break
		}
		if !isWordRune(r) {
			r = '_'
		}
		b.WriteRune(r)
		n++
	}
	return strings.ToLower(b.String())
}

func isWordRune(r rune) bool {
	return r < utf8.RuneSelf && (r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9'))
}
