// Package chunker segments cleaned document text into ordered,
// semantically coherent chunks (spec.md §4.1, component C1).
//
// The entry point is Chunk: it classifies the document, picks a
// strategy, adapts the target size/overlap to the content, then runs
// the chosen boundary algorithm.
package chunker

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// Size bounds enforced on the requested chunkSize (spec.md §4.1).
const (
	MinSize = 200
	MaxSize = 8000
)

// DocumentType is the heuristic classification of a document, used to
// pick a chunking Strategy.
type DocumentType string

const (
	TypeAcademicPaper DocumentType = "academic_paper"
	TypeBookOrManual  DocumentType = "book_or_manual"
	TypeDocumentation DocumentType = "documentation"
	TypeLegalDocument DocumentType = "legal_document"
	TypeGeneralArticle DocumentType = "general_article"
)

// Options configures a single Chunk call. DocumentType, when non-empty,
// overrides the heuristic classifier (spec.md §9's "documentType"
// per-request override key).
type Options struct {
	ChunkSize         int
	Overlap           int
	EnableAdaptive    bool
	EnableIntelligent bool
	DocumentType      DocumentType
}

// WithDefaults fills zero-valued fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = 2000
	}
	if o.Overlap == 0 {
		o.Overlap = 200
	}
	return o
}

// Result is the ordered output of Chunk.
type Result struct {
	Chunks       []model.Chunk
	DocumentType DocumentType
	Method       model.ChunkingMethod
	EffectiveSize,
	EffectiveOverlap int
}

// Chunk segments text into an ordered sequence of chunks per spec.md §4.1.
// sourceID is not read by Chunk; it affects neither output nor errors.
func Chunk(text, sourceID string, opts Options) (*Result, error) {
	opts = opts.WithDefaults()

	if opts.Overlap >= opts.ChunkSize {
		return nil, apperr.New(apperr.InvalidInput,
			fmt.Sprintf("overlap (%d) must be smaller than chunkSize (%d)", opts.Overlap, opts.ChunkSize))
	}
	if opts.ChunkSize < MinSize || opts.ChunkSize > MaxSize {
		return nil, apperr.New(apperr.InvalidInput,
			fmt.Sprintf("chunkSize %d outside [%d,%d]", opts.ChunkSize, MinSize, MaxSize))
	}

	cleaned := clean(text, opts.EnableIntelligent)
	if len(cleaned) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "document has no content after cleaning")
	}

	docType := opts.DocumentType
	if docType == "" {
		docType = classify(cleaned)
	}

	size, overlap := opts.ChunkSize, opts.Overlap
	if opts.EnableAdaptive {
		size, overlap = adaptiveSize(cleaned, docType, size, overlap)
	}

	method, boundaries := strategyFor(docType)

	var spans []boundarySpan
	switch boundaries {
	case boundarySemantic:
		spans = semanticChunks(cleaned, size, overlap)
	case boundaryStructural:
		spans = structuralChunks(cleaned, size, overlap)
	case boundaryHierarchical:
		spans = hierarchicalChunks(cleaned, size, overlap)
	default:
		spans = fixedChunks(cleaned, size, overlap, nil)
	}

	chunks := make([]model.Chunk, 0, len(spans))
	idx := 0
	for _, sp := range spans {
		text := cleaned[sp.start:sp.end]
		if len(text) == 0 {
			continue
		}
		chunks = append(chunks, model.Chunk{
			ID:           uuid.NewString(),
			Index:        idx,
			Span:         model.Span{Start: sp.start, End: sp.end},
			Text:         text,
			Method:       method,
			BoundaryType: sp.boundaryType,
			SectionTitle: sp.sectionTitle,
			SectionLevel: sp.sectionLevel,
			Overlap:      overlap,
			Status:       model.ChunkPending,
		})
		idx++
	}

	return &Result{
		Chunks:           chunks,
		DocumentType:     docType,
		Method:           method,
		EffectiveSize:     size,
		EffectiveOverlap: overlap,
	}, nil
}

// boundaryStrategy selects which algorithm in boundary.go produces spans
// for a given DocumentType (spec.md §4.1 "Strategy selection").
type boundaryStrategy int

const (
	boundarySemantic boundaryStrategy = iota
	boundaryStructural
	boundaryHierarchical
	boundaryFixed
)

func strategyFor(dt DocumentType) (model.ChunkingMethod, boundaryStrategy) {
	switch dt {
	case TypeAcademicPaper:
		return model.ChunkSemantic, boundarySemantic
	case TypeDocumentation:
		return model.ChunkStructural, boundaryStructural
	case TypeBookOrManual:
		return model.ChunkHierarchical, boundaryHierarchical
	case TypeLegalDocument:
		return model.ChunkStructural, boundaryStructural
	default:
		return model.ChunkSemantic, boundarySemantic
	}
}

// boundarySpan is an intermediate [start,end) span produced by a
// boundary algorithm, before being materialized into a model.Chunk.
type boundarySpan struct {
	start, end   int
	boundaryType string
	sectionTitle string
	sectionLevel int
}
