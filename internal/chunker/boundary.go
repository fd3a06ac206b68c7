package chunker

import (
	"regexp"
	"sort"
	"strings"
)

// boundaryMark is a candidate chunk-closing position recorded while
// scanning content, with its kind ("paragraph" or "sentence"); no
// numeric strength is stored.
type boundaryMark struct {
	pos  int
	kind string
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)
var sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

// collectBoundaries finds every paragraph and sentence boundary in
// content, sorted ascending and deduplicated by position.
func collectBoundaries(content string) []boundaryMark {
	var marks []boundaryMark

	for _, loc := range paragraphBreak.FindAllStringIndex(content, -1) {
		marks = append(marks, boundaryMark{pos: loc[1], kind: "paragraph"})
	}
	for _, loc := range sentenceEnd.FindAllStringIndex(content, -1) {
		marks = append(marks, boundaryMark{pos: loc[0] + 1, kind: "sentence"})
	}

	sort.Slice(marks, func(i, j int) bool { return marks[i].pos < marks[j].pos })

	out := marks[:0:0]
	lastPos := -1
	for _, m := range marks {
		if m.pos == lastPos {
			continue
		}
		out = append(out, m)
		lastPos = m.pos
	}
	return out
}

// semanticChunks greedily accumulates text between recorded boundaries
// until the next boundary would push the chunk past size, then closes
// it there (spec.md §4.1 "Semantic").
func semanticChunks(content string, size, overlap int) []boundarySpan {
	boundaries := collectBoundaries(content)

	var spans []boundarySpan
	start := 0
	for _, b := range boundaries {
		if b.pos <= start {
			continue
		}
		if b.pos-start >= size {
			spans = append(spans, boundarySpan{start: start, end: b.pos, boundaryType: b.kind})
			start = maxInt(0, b.pos-overlap)
		}
	}
	if start < len(content) {
		spans = append(spans, boundarySpan{start: start, end: len(content), boundaryType: "end_of_document"})
	}
	return spans
}

var markdownHeaderLine = regexp.MustCompile(`(?m)^(#{1,6})\s+(.*)$`)
var shoutHeaderLine = regexp.MustCompile(`(?m)^([A-Z][A-Z\s]+):?$`)

type structuralMarker struct {
	pos   int
	title string
	level int
}

// structuralMarkers finds header lines per spec.md §4.1 ("split at
// structural markers: header lines matching ^#{1,6}\s+ or
// ^[A-Z][A-Z\s]+:?$").
func structuralMarkers(content string) []structuralMarker {
	var markers []structuralMarker
	for _, m := range markdownHeaderLine.FindAllStringSubmatchIndex(content, -1) {
		markers = append(markers, structuralMarker{
			pos:   m[0],
			title: content[m[4]:m[5]],
			level: m[3] - m[2],
		})
	}
	for _, m := range shoutHeaderLine.FindAllStringSubmatchIndex(content, -1) {
		markers = append(markers, structuralMarker{
			pos:   m[0],
			title: content[m[2]:m[3]],
			level: 1,
		})
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].pos < markers[j].pos })
	return markers
}

// structuralChunks splits content into sections at structural markers,
// then fixed-windows within each section (spec.md §4.1 "Structural").
func structuralChunks(content string, size, overlap int) []boundarySpan {
	markers := structuralMarkers(content)
	if len(markers) == 0 {
		return fixedChunks(content, size, overlap, nil)
	}

	var spans []boundarySpan
	for i, m := range markers {
		end := len(content)
		if i < len(markers)-1 {
			end = markers[i+1].pos
		}
		section := content[m.pos:end]
		if !hasBody(section) {
			continue
		}
		for _, sp := range fixedChunks(section, size, overlap, nil) {
			spans = append(spans, boundarySpan{
				start:        m.pos + sp.start,
				end:          m.pos + sp.end,
				boundaryType: "structural_section",
				sectionTitle: m.title,
				sectionLevel: m.level,
			})
		}
	}
	if markers[0].pos > 0 {
		preamble := fixedChunks(content[:markers[0].pos], size, overlap, nil)
		spans = append(preamble, spans...)
	}
	return spans
}

// hierarchicalChunks builds a flat section list from header markers and
// either keeps a small section whole or fixed-windows a large one
// (spec.md §4.1 "Hierarchical").
func hierarchicalChunks(content string, size, overlap int) []boundarySpan {
	markers := structuralMarkers(content)
	if len(markers) == 0 {
		return fixedChunks(content, size, overlap, nil)
	}

	var spans []boundarySpan
	for i, m := range markers {
		end := len(content)
		if i < len(markers)-1 {
			end = markers[i+1].pos
		}
		section := content[m.pos:end]
		if !hasBody(section) {
			continue
		}

		if len(section) <= 2*size {
			spans = append(spans, boundarySpan{
				start:        m.pos,
				end:          end,
				boundaryType: "hierarchical_section",
				sectionTitle: m.title,
				sectionLevel: m.level,
			})
			continue
		}
		for _, sp := range fixedChunks(section, size, overlap, nil) {
			spans = append(spans, boundarySpan{
				start:        m.pos + sp.start,
				end:          m.pos + sp.end,
				boundaryType: "hierarchical_window",
				sectionTitle: m.title,
				sectionLevel: m.level,
			})
		}
	}
	if markers[0].pos > 0 {
		preamble := fixedChunks(content[:markers[0].pos], size, overlap, nil)
		spans = append(preamble, spans...)
	}
	return spans
}

// fixedChunks performs boundary-respecting fixed-step windowing
// (spec.md §4.1 "Boundary-respecting fixed"): for each candidate end
// idealEnd = pos+size, snap to the closest recorded boundary within
// [idealEnd, idealEnd+0.2*size], cutting exactly at idealEnd when none
// lies there. When boundaries is nil, the paragraph and sentence
// boundaries of content itself are used.
func fixedChunks(content string, size, overlap int, boundaries []int) []boundarySpan {
	if len(content) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var marks []int
	if boundaries == nil {
		for _, b := range collectBoundaries(content) {
			marks = append(marks, b.pos)
		}
	} else {
		marks = boundaries
	}

	var spans []boundarySpan
	pos := 0
	for pos < len(content) {
		idealEnd := pos + size
		end := idealEnd
		if end >= len(content) {
			end = len(content)
		} else if len(marks) > 0 {
			end = snapToBoundary(marks, idealEnd, int(float64(size)*0.2), end)
		}
		if end <= pos {
			end = minInt(len(content), pos+step)
		}
		spans = append(spans, boundarySpan{start: pos, end: end, boundaryType: "fixed_window"})
		if end >= len(content) {
			break
		}
		pos += step
		if pos >= end {
			pos = end
		}
	}
	return spans
}

// hasBody reports whether a section carries any content beyond its
// leading header line (spec.md §4.1: a header with no body emits zero
// chunks).
func hasBody(section string) bool {
	if nl := strings.IndexByte(section, '\n'); nl >= 0 {
		return len(strings.TrimSpace(section[nl+1:])) > 0
	}
	return false
}

// snapToBoundary returns the boundary position closest to idealEnd
// within [idealEnd, idealEnd+tolerance], falling back to fallback when
// none is found.
func snapToBoundary(marks []int, idealEnd, tolerance, fallback int) int {
	best := fallback
	bestDist := tolerance + 1
	for _, m := range marks {
		if m < idealEnd || m > idealEnd+tolerance {
			continue
		}
		d := m - idealEnd
		if d < bestDist {
			bestDist = d
			best = m
		}
	}
	return best
}
