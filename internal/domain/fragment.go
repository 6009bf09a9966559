package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ExcerptLength is the number of characters of fragment text kept as the source excerpt.
const ExcerptLength = 200

// Fragment is the atomic retrievable unit of a document.
type Fragment struct {
	ID            string
	DocumentID    string
	SequenceIndex int
	Content       string
	StartOffset   int
	EndOffset     int
	Embedding     []float32
	CreatedAt     time.Time
}

// Excerpt returns the leading part of the fragment text.
func (f *Fragment) Excerpt() string {
	return Truncate(f.Content, ExcerptLength)
}

// ScoredFragment is a single search hit.
type ScoredFragment struct {
	Fragment Fragment
	Score    float32
}

// ValidateFragment validates a Fragment instance
func ValidateFragment(f *Fragment, dimensions int) error {
	if f == nil {
		return fmt.Errorf("fragment cannot be nil")
	}

	if f.ID == "" {
		return fmt.Errorf("fragment ID is required")
	}

	if f.DocumentID == "" {
		return fmt.Errorf("fragment DocumentID is required")
	}

	if f.Content == "" {
		return fmt.Errorf("fragment Content is required")
	}

	if f.SequenceIndex < 0 {
		return fmt.Errorf("fragment SequenceIndex cannot be negative")
	}

	if f.EndOffset <= f.StartOffset {
		return fmt.Errorf("fragment span [%d,%d) is empty", f.StartOffset, f.EndOffset)
	}

	if dimensions > 0 && len(f.Embedding) != dimensions {
		return fmt.Errorf("fragment embedding has %d dimensions, expected %d", len(f.Embedding), dimensions)
	}

	return nil
}

// IsZeroVector reports whether v has no non-zero component. Cosine
// similarity against such a vector is undefined.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Zero vectors and mismatched lengths score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SortResults orders hits by descending score, then ascending sequence index,
// document ID and fragment ID.
func SortResults(results []ScoredFragment) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Fragment.SequenceIndex != b.Fragment.SequenceIndex {
			return a.Fragment.SequenceIndex < b.Fragment.SequenceIndex
		}
		if a.Fragment.DocumentID != b.Fragment.DocumentID {
			return a.Fragment.DocumentID < b.Fragment.DocumentID
		}
		return a.Fragment.ID < b.Fragment.ID
	})
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
