package extract

import (
	"bytes"
	"errors"
)

// PlainText handles .txt and .md files.
type PlainText struct{}

// Extract decodes the file as text. Binary content is rejected.
func (PlainText) Extract(content []byte) (string, error) {
	if bytes.IndexByte(content, 0) >= 0 {
		return "", errors.New("content looks binary")
	}
	return decodeText(content)
}
