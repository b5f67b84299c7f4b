// Package render converts orders into embedding text and flat index metadata.
package render

import (
	"strings"
	"unicode"
)

// listDelimiter joins array fields into the delimited strings the vector
// index accepts (it only stores scalar metadata values).
const listDelimiter = ", "

// Normalize trims and collapses whitespace so rendered text is stable
// regardless of source formatting.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

func writeFacet(b *strings.Builder, label, value string) {
	value = Normalize(value)
	if value == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString(". ")
	}
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
}

func joinNonEmpty(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = Normalize(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, listDelimiter)
}
