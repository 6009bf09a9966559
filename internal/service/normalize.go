package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/cloo-solutions/lexis/internal/domain"
)

// MinNormalizedChars is the smallest cleaned text accepted for indexing.
const MinNormalizedChars = 50

// minLineChars drops lines shorter than this after cleaning.
const minLineChars = 3

var (
	markupTagPattern     = regexp.MustCompile(`(?s)<!--.*?-->|</?[A-Za-z][A-Za-z0-9:-]*(\s[^<>]*)?/?>`)
	urlPattern           = regexp.MustCompile(`(?i)\b(?:https?|ftp)://\S+|\bwww\.[^\s/]+\.\S+`)
	emailPattern         = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	horizontalWhitespace = regexp.MustCompile(`[^\S\n]+`)
	blankLineRun         = regexp.MustCompile(`\n{3,}`)
)

// maxNormalizePasses bounds the fixed-point loop in Normalize. Each pass
// that changes the text shrinks it or masks an address, so real inputs
// settle in two or three passes.
const maxNormalizePasses = 16

// Normalize cleans extracted text before chunking. It never fails and
// Normalize(Normalize(x)) == Normalize(x): cleaning repeats until a pass
// leaves the text unchanged, since removing a URL or a tag can expose
// another one.
func Normalize(raw string) string {
	text := raw
	for i := 0; i < maxNormalizePasses; i++ {
		next := normalizePass(text)
		if next == text {
			break
		}
		text = next
	}
	return text
}

func normalizePass(raw string) string {
	text := strings.ToValidUTF8(raw, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = norm.NFC.String(stripControl(text))

	for {
		stripped := markupTagPattern.ReplaceAllString(text, " ")
		if stripped == text {
			break
		}
		text = stripped
	}

	text = urlPattern.ReplaceAllString(text, " ")
	text = emailPattern.ReplaceAllString(text, "[EMAIL]")
	text = horizontalWhitespace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && utf8.RuneCountInString(line) < minLineChars {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, "\n")

	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ValidateNormalized rejects texts that carry too little content to index.
func ValidateNormalized(text string) error {
	if utf8.RuneCountInString(text) < MinNormalizedChars {
		return domain.ErrTextTooShort
	}
	return nil
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t':
			return ' '
		case unicode.IsControl(r), r == utf8.RuneError, unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}
