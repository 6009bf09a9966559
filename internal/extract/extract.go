// Package extract turns raw uploaded bytes into plain text per document format.
package extract

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/cloo-solutions/lexis/internal/domain"
)

// Extractor converts raw document bytes into text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// Registry maps formats to extractors.
type Registry struct {
	extractors map[domain.Format]Extractor
}

// NewRegistry returns a registry with the plain, tabular and markup extractors.
func NewRegistry() *Registry {
	return &Registry{
		extractors: map[domain.Format]Extractor{
			domain.FormatPlain:   PlainText{},
			domain.FormatTabular: Tabular{},
			domain.FormatMarkup:  Markup{},
		},
	}
}

// Extract dispatches on format. Failures are reported as ExtractionFailed,
// unknown formats as UnsupportedFormat.
func (r *Registry) Extract(content []byte, format domain.Format) (string, error) {
	ex, ok := r.extractors[format]
	if !ok {
		return "", domain.ErrUnsupportedFormat.Wrap(fmt.Errorf("format %q", format))
	}
	text, err := ex.Extract(content)
	if err != nil {
		return "", domain.ErrExtractionFailed.Wrap(err)
	}
	return text, nil
}

// decodeText reads content as UTF-8, falling back to Latin-1 when the bytes are
// not valid UTF-8. A leading byte order mark is dropped.
func decodeText(content []byte) (string, error) {
	if len(content) >= 3 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		content = content[3:]
	}
	if utf8.Valid(content) {
		return string(content), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
	if err != nil {
		return "", fmt.Errorf("decode latin-1: %w", err)
	}
	return string(decoded), nil
}
