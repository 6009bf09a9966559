package domain

import (
	"fmt"
	"time"
)

// Metric is the similarity function of a vector index
type Metric string

const (
	MetricCosine Metric = "cosine"
)

// IndexSettings are fixed when an index is created. Changing any of them
// requires re-ingesting the whole corpus.
type IndexSettings struct {
	Metric         Metric
	EmbeddingModel string
	Dimensions     int
	ChunkSize      int
	ChunkOverlap   int
	CreatedAt      time.Time
}

// ValidateIndexSettings validates an IndexSettings value
func ValidateIndexSettings(s IndexSettings) error {
	if s.Metric != MetricCosine {
		return fmt.Errorf("index Metric is invalid: %s", s.Metric)
	}

	if s.EmbeddingModel == "" {
		return fmt.Errorf("index EmbeddingModel is required")
	}

	if s.Dimensions <= 0 {
		return fmt.Errorf("index Dimensions must be greater than 0")
	}

	if s.ChunkSize <= 0 || s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return ErrInvalidChunkConfig
	}

	return nil
}

// Matches reports whether two settings describe the same index layout.
func (s IndexSettings) Matches(other IndexSettings) bool {
	return s.Metric == other.Metric &&
		s.EmbeddingModel == other.EmbeddingModel &&
		s.Dimensions == other.Dimensions &&
		s.ChunkSize == other.ChunkSize &&
		s.ChunkOverlap == other.ChunkOverlap
}

// CheckSettings compares the stored index settings with the configured ones.
func CheckSettings(stored, configured IndexSettings) error {
	if stored.Matches(configured) {
		return nil
	}
	return ErrSettingsMismatch.Wrap(fmt.Errorf(
		"stored metric=%s model=%s dims=%d chunk=%d/%d, configured metric=%s model=%s dims=%d chunk=%d/%d",
		stored.Metric, stored.EmbeddingModel, stored.Dimensions, stored.ChunkSize, stored.ChunkOverlap,
		configured.Metric, configured.EmbeddingModel, configured.Dimensions, configured.ChunkSize, configured.ChunkOverlap,
	))
}
