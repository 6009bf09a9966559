package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Markup handles HTML documents. Script, style and head content are dropped and
// block elements become line breaks.
type Markup struct{}

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Head:     true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.Tr: true, atom.Table: true, atom.Section: true, atom.Article: true, atom.Header: true,
	atom.Footer: true, atom.Blockquote: true, atom.Pre: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Td: true, atom.Th: true, atom.Dd: true, atom.Dt: true,
}

// Extract walks the parsed document and collects visible text.
func (Markup) Extract(content []byte) (string, error) {
	text, err := decodeText(content)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var buf bytes.Buffer
	walkText(doc, &buf)

	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", fmt.Errorf("no visible text in markup")
	}
	return out, nil
}

func walkText(n *html.Node, buf *bytes.Buffer) {
	switch n.Type {
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		buf.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, buf)
	}
	if block {
		if n.DataAtom == atom.P || isHeading(n.DataAtom) {
			buf.WriteString("\n\n")
		} else {
			buf.WriteString("\n")
		}
	}
}

func isHeading(a atom.Atom) bool {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}
