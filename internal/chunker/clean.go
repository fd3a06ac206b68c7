package chunker

import (
	"regexp"
	"strings"
)

var (
	threeOrMoreNewlines = regexp.MustCompile(`\n{3,}`)
	horizontalWhitespace = regexp.MustCompile(`[ \t]+`)
	allWhitespace        = regexp.MustCompile(`\s+`)
)

// clean normalizes text before chunking (spec.md §4.1 "Cleaning").
// When structurePreserving is true (EnableIntelligent), line endings are
// normalized, runs of 3+ newlines collapse to exactly two, and
// horizontal whitespace runs collapse to a single space — preserving
// paragraph structure. Otherwise all whitespace flattens to single
// spaces.
func clean(text string, structurePreserving bool) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if !structurePreserving {
		return strings.TrimSpace(allWhitespace.ReplaceAllString(text, " "))
	}

	text = threeOrMoreNewlines.ReplaceAllString(text, "\n\n")
	text = horizontalWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
