package chunker

import (
	"strings"
	"testing"
)

func TestChunk_InvalidOverlap(t *testing.T) {
	_, err := Chunk(strings.Repeat("a", 1000), "doc1", Options{ChunkSize: 200, Overlap: 200})
	if err == nil {
		t.Fatalf("expected InvalidInput error when overlap >= chunkSize")
	}
}

func TestChunk_EmptyDocument(t *testing.T) {
	_, err := Chunk("   \n\n  ", "doc1", Options{})
	if err == nil {
		t.Fatalf("expected InvalidInput error for empty document")
	}
}

func TestChunk_ExactlyOneChunkSize(t *testing.T) {
	text := strings.Repeat("a", 500)
	res, err := Chunk(text, "doc1", Options{ChunkSize: 500, Overlap: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(res.Chunks))
	}
	c := res.Chunks[0]
	if c.Span.Start != 0 || c.Span.End != len(text) {
		t.Fatalf("expected span [0,%d), got [%d,%d)", len(text), c.Span.Start, c.Span.End)
	}
}

func TestChunk_DenseIndices(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	res, err := Chunk(text, "doc1", Options{ChunkSize: 300, Overlap: 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	for i, c := range res.Chunks {
		if c.Index != i {
			t.Fatalf("expected dense index %d, got %d", i, c.Index)
		}
		if c.Span.Start < 0 || c.Span.Start >= c.Span.End || c.Span.End > len(text) {
			t.Fatalf("chunk %d has invalid span [%d,%d)", i, c.Span.Start, c.Span.End)
		}
	}
}

func TestClassify_AcademicPaper(t *testing.T) {
	text := "Abstract\nThis paper studies things.\n\nReferences\n[1] someone, 2020."
	if got := classify(text); got != TypeAcademicPaper {
		t.Fatalf("expected academic_paper, got %s", got)
	}
}

func TestClassify_Documentation(t *testing.T) {
	text := "# Getting Started\n\nRun `go build` to compile.\n\n```go\nfunc main() {}\n```"
	if got := classify(text); got != TypeDocumentation {
		t.Fatalf("expected documentation, got %s", got)
	}
}

func TestClassify_LegalDocument(t *testing.T) {
	text := "WHEREAS the parties hereby agree to the following terms."
	if got := classify(text); got != TypeLegalDocument {
		t.Fatalf("expected legal_document, got %s", got)
	}
}

func TestClassify_GeneralArticle(t *testing.T) {
	text := "Yesterday I went to the store and bought some milk and bread."
	if got := classify(text); got != TypeGeneralArticle {
		t.Fatalf("expected general_article, got %s", got)
	}
}

func TestAdaptiveSize_FloorsAcademic(t *testing.T) {
	size, _ := adaptiveSize(strings.Repeat("a", 1000), TypeAcademicPaper, 2000, 200)
	if size < 3000 {
		t.Fatalf("expected academic paper size floored at 3000, got %d", size)
	}
}

func TestAdaptiveSize_LargeDocument(t *testing.T) {
	size, overlap := adaptiveSize(strings.Repeat("a", 600*1024), TypeGeneralArticle, 2000, 200)
	// >500KB bucket: 2000*1.8 = 3600; the text has no sentence terminator,
	// so it counts as one sentence longer than 100 chars: 3600*1.2 = 4320.
	if size != 4320 {
		t.Fatalf("expected size 4320 for >500KB doc with one long sentence, got %d", size)
	}
	if overlap > 400 {
		t.Fatalf("expected overlap capped at 400, got %d", overlap)
	}
}

func TestChunk_HeaderOnlyDocumentationYieldsNoChunks(t *testing.T) {
	text := "# Title Only"
	res, err := Chunk(text, "doc1", Options{DocumentType: TypeDocumentation})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Fatalf("expected zero chunks for header-only document, got %d", len(res.Chunks))
	}
}

func TestChunk_StructuralPreservesSectionTitle(t *testing.T) {
	text := "# Intro\nSome introductory text that is reasonably long for a section body.\n\n# Details\nMore detailed text describing the subject at length so it is not empty."
	res, err := Chunk(text, "doc1", Options{DocumentType: TypeDocumentation, ChunkSize: 1000, Overlap: 100, EnableIntelligent: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) == 0 {
		t.Fatalf("expected chunks")
	}
	for _, c := range res.Chunks {
		if c.SectionTitle == "" {
			t.Fatalf("expected section title to be carried on structural chunks")
		}
	}
}
