// Package embedding provides an offline embedder that needs no provider.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingModel identifies vectors produced by the Hashing embedder.
const HashingModel = "lexis-hashing-v1"

// DefaultHashingDimensions is the vector size used when none is configured.
const DefaultHashingDimensions = 384

// Hashing maps text to a fixed-size vector by feature hashing of lowercased
// word unigrams and bigrams. Vectors are L2-normalized, so cosine similarity
// reflects shared vocabulary. Output is deterministic for a given input.
type Hashing struct {
	dimensions int
}

// NewHashing creates a hashing embedder producing vectors of the given size.
func NewHashing(dimensions int) *Hashing {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &Hashing{dimensions: dimensions}
}

// Embed returns one vector per text in input order.
func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

// Dimensions returns the vector size.
func (h *Hashing) Dimensions() int {
	return h.dimensions
}

// Model returns the model identifier stored in the index settings.
func (h *Hashing) Model() string {
	return HashingModel
}

func (h *Hashing) vector(text string) []float32 {
	v := make([]float32, h.dimensions)
	words := tokenize(text)

	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// add hashes a feature into a bucket; one hash bit picks the sign so that
// collisions cancel out on average.
func (h *Hashing) add(v []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	idx := int(sum % uint64(h.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
