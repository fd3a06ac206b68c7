package chunker

import "strings"

const (
	kb = 1024
)

// adaptiveSize applies spec.md §4.1's "Adaptive sizing" rules, in the
// order given there: content-length bucket, type floor, code-block
// presence, then mean sentence length. Each rule operates on the
// output of the previous one.
func adaptiveSize(content string, dt DocumentType, size, overlap int) (int, int) {
	n := len(content)

	switch {
	case n > 500*kb:
		size = clampInt(int(float64(size)*1.8), 3000, 4000)
		overlap = minInt(int(float64(overlap)*1.5), 400)
	case n > 100*kb:
		size = clampInt(int(float64(size)*1.3), 2500, 3000)
	case n < 10*kb:
		size = maxInt(1000, int(float64(size)*0.8))
	}

	if dt == TypeAcademicPaper || dt == TypeBookOrManual {
		size = maxInt(size, 3000)
	}

	if strings.Contains(content, "```") {
		size = minInt(int(float64(size)*1.3), 4000)
		overlap = minInt(int(float64(overlap)*1.5), 500)
	}

	if msl := meanSentenceLength(content); msl > 100 {
		size = int(float64(size) * 1.2)
	} else if msl < 50 && msl > 0 {
		size = maxInt(1200, int(float64(size)*0.9))
	}

	return size, overlap
}

// meanSentenceLength estimates average sentence length in characters by
// splitting on common terminators.
func meanSentenceLength(content string) float64 {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		return 0
	}
	total := 0
	for _, s := range sentences {
		total += len(strings.TrimSpace(s))
	}
	return float64(total) / float64(len(sentences))
}

func splitSentences(content string) []string {
	var out []string
	start := 0
	for i, r := range content {
		if r == '.' || r == '!' || r == '?' {
			if i+1 > start {
				out = append(out, content[start:i+1])
			}
			start = i + 1
		}
	}
	if start < len(content) {
		out = append(out, content[start:])
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
