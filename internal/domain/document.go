package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Format represents the source format of a document
type Format string

const (
	FormatPlain   Format = "plain"
	FormatTabular Format = "tabular"
	FormatMarkup  Format = "markup"
)

// Document is a corpus entry identified by its logical name.
type Document struct {
	ID          string
	FileName    string
	Format      Format
	SizeBytes   int64
	SHA256      string
	StorageKey  string
	FragmentIDs []string
	IngestedAt  time.Time
}

// NewDocument creates a new Document instance
func NewDocument(
	id, fileName string,
	format Format,
	sizeBytes int64,
	sha256, storageKey string,
	fragmentIDs []string,
	ingestedAt time.Time,
) *Document {
	return &Document{
		ID:          id,
		FileName:    fileName,
		Format:      format,
		SizeBytes:   sizeBytes,
		SHA256:      sha256,
		StorageKey:  storageKey,
		FragmentIDs: fragmentIDs,
		IngestedAt:  ingestedAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if !IsValidFormat(d.Format) {
		return fmt.Errorf("document Format is invalid: %s", d.Format)
	}

	if d.SizeBytes < 0 {
		return fmt.Errorf("document SizeBytes cannot be negative")
	}

	if len(d.FragmentIDs) == 0 {
		return fmt.Errorf("document must own at least one fragment")
	}

	return nil
}

// IsValidFormat checks if a Format is supported
func IsValidFormat(f Format) bool {
	switch f {
	case FormatPlain, FormatTabular, FormatMarkup:
		return true
	}
	return false
}

var extensionFormats = map[string]Format{
	".txt":  FormatPlain,
	".text": FormatPlain,
	".md":   FormatPlain,
	".csv":  FormatTabular,
	".tsv":  FormatTabular,
	".html": FormatMarkup,
	".htm":  FormatMarkup,
}

// FormatFromFileName detects the document format from the file extension.
func FormatFromFileName(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	f, ok := extensionFormats[ext]
	if !ok {
		return "", NewDomainErrorWithCause(ErrCodeUnsupportedFormat, ErrUnsupportedFormat.Message,
			fmt.Errorf("extension %q", ext))
	}
	return f, nil
}

// SupportedExtensions lists accepted file extensions in a stable order.
func SupportedExtensions() []string {
	return []string{".txt", ".text", ".md", ".csv", ".tsv", ".html", ".htm"}
}

// IsSafeFileName rejects names that could escape the upload area or break storage keys.
func IsSafeFileName(name string) bool {
	if name == "" || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, `/\<>:"|?*`) && !strings.ContainsRune(name, 0)
}

// DocumentIDFromFileName derives the stable logical name of a document.
// Letters, digits, '-', '_' and '.' are kept; spaces become '_'.
func DocumentIDFromFileName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r < 128 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".")
}
