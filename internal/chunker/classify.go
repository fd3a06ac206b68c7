package chunker

import (
	"regexp"
	"strings"
)

var (
	numberedSection = regexp.MustCompile(`\d+\.\s+[A-Z]`)
	fencedCode      = regexp.MustCompile("```")
	markdownHeader  = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

// classify heuristically assigns a DocumentType to cleaned text
// (spec.md §4.1 "Document classification"), case-insensitive.
func classify(text string) DocumentType {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "abstract") && strings.Contains(lower, "references"):
		return TypeAcademicPaper
	case strings.Contains(lower, "chapter") || numberedSection.MatchString(text):
		return TypeBookOrManual
	case fencedCode.MatchString(text) || markdownHeader.MatchString(text):
		return TypeDocumentation
	case strings.Contains(lower, "whereas") || strings.Contains(lower, "hereby"):
		return TypeLegalDocument
	default:
		return TypeGeneralArticle
	}
}
