package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Tabular handles delimited files. Each row becomes "column: value | column: value"
// and rows are separated by a blank line, so a row reads as a self-contained record.
type Tabular struct{}

// Extract parses the first row as the header. The delimiter is sniffed from the header.
func (Tabular) Extract(content []byte) (string, error) {
	text, err := decodeText(content)
	if err != nil {
		return "", err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errors.New("empty table")
		}
		return "", fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if header[i] == "" {
			header[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	var rows []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}

		parts := make([]string, 0, len(record))
		for i, value := range record {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			name := fmt.Sprintf("column_%d", i+1)
			if i < len(header) {
				name = header[i]
			}
			parts = append(parts, name+": "+value)
		}
		if len(parts) > 0 {
			rows = append(rows, strings.Join(parts, " | "))
		}
	}

	if len(rows) == 0 {
		return "", errors.New("table has no data rows")
	}
	return strings.Join(rows, "\n\n"), nil
}

func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, d := range []rune{'\t', ';', '|'} {
		if c := strings.Count(line, string(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}
