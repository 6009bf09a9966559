package service

import (
	"unicode"

	"github.com/cloo-solutions/lexis/internal/domain"
)

// ChunkConfig controls how normalized text is split into fragments.
// Size and Overlap are counted in characters (runes).
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1000,
		Overlap: 200,
	}
}

// Validate checks 0 <= Overlap < Size.
func (c ChunkConfig) Validate() error {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return domain.ErrInvalidChunkConfig
	}
	return nil
}

// Span is one fragment of text with its [Start, End) rune offsets.
type Span struct {
	Text  string
	Start int
	End   int
}

// Chunk slides a window of cfg.Size runes over text, advancing so that
// consecutive spans share cfg.Overlap runes. A window edge moves back to the
// nearest paragraph break, or failing that the nearest sentence end, when one
// lies within the boundary tolerance; otherwise the cut is exact.
func Chunk(text string, cfg ChunkConfig) ([]Span, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	if n <= cfg.Size {
		return []Span{{Text: text, Start: 0, End: n}}, nil
	}

	tol := boundaryTolerance(cfg)
	spans := make([]Span, 0, n/(cfg.Size-cfg.Overlap)+1)
	start := 0
	for {
		if n-start <= cfg.Size {
			spans = append(spans, Span{Text: string(runes[start:]), Start: start, End: n})
			break
		}

		end := start + cfg.Size
		if cut := findBoundary(runes, end-tol, end); cut > 0 {
			end = cut
		}
		spans = append(spans, Span{Text: string(runes[start:end]), Start: start, End: end})
		start = end - cfg.Overlap
	}

	return spans, nil
}

// boundaryTolerance is the largest backoff, up to a tenth of the window, that
// keeps every character inside at most ceil(Size/(Size-Overlap)) spans.
// Since each window starts Overlap runes before the previous end, that holds
// while ceil(Overlap/(step-t)) == ceil(Overlap/step).
func boundaryTolerance(cfg ChunkConfig) int {
	step := cfg.Size - cfg.Overlap
	for t := cfg.Size / 10; t > 0; t-- {
		d := step - t
		if d < 1 {
			continue
		}
		if cfg.Overlap == 0 || ceilDiv(cfg.Overlap, d) == ceilDiv(cfg.Overlap, step) {
			return t
		}
	}
	return 0
}

// findBoundary returns the cut position in (lo, hi] right after a paragraph
// break, else right after a sentence end, else 0.
func findBoundary(runes []rune, lo, hi int) int {
	if lo >= hi {
		return 0
	}
	for i := hi; i > lo && i >= 2; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := hi; i > lo && i >= 2; i-- {
		if runes[i-1] == '\n' {
			return i
		}
		if unicode.IsSpace(runes[i-1]) && isSentenceEnd(runes[i-2]) {
			return i
		}
	}
	return 0
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
