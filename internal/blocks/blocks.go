// Package blocks extracts an ordered list of content blocks from Markdown
// text, classifying each top-level node into the categories the surgical
// differ and the three-way merger key off of. Extraction is an ast.Walk
// over a goldmark parse of the body.
package blocks

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/wikilink"
)

// Kind classifies a top-level Markdown block.
type Kind int

const (
	Heading Kind = iota
	Paragraph
	Table
	List
	Code
	Extension
	Other
)

func (k Kind) String() string {
	switch k {
	case Heading:
		return "HEADING"
	case Paragraph:
		return "PARAGRAPH"
	case Table:
		return "TABLE"
	case List:
		return "LIST"
	case Code:
		return "CODE"
	case Extension:
		return "EXTENSION"
	}
	return "OTHER"
}

// Block is one classified top-level node, with the raw Markdown source it
// spans and the remote local_id it corresponds to when one can be matched.
type Block struct {
	Kind         Kind
	LocalID      string // assigned by the remote structured doc; empty until matched
	HeadingLevel int    // meaningful only when Kind == Heading
	Text         string // raw Markdown source for this block
	TableRows    [][]string
}

func newParser() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			meta.Meta,
			extension.Table,
			&wikilink.Extender{},
		),
	)
}

// Extract parses raw Markdown and returns its top-level blocks in document
// order. A top-level wikilink node, or a top-level node outside the
// heading/paragraph/list/code/table set that contains a wikilink, is tagged
// Extension. Headings, paragraphs, lists, code blocks and tables keep their
// own kind even when they contain a wikilink, and no other extension node
// type is detected.
func Extract(raw string) ([]Block, error) {
	src := []byte(raw)
	md := newParser()
	doc := md.Parser().Parse(text.NewReader(src))

	var out []Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		b, err := classify(n, src)
		if err != nil {
			return nil, fmt.Errorf("blocks: classify node: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func classify(n ast.Node, src []byte) (Block, error) {
	span := nodeSource(n, src)
	switch t := n.(type) {
	case *ast.Heading:
		return Block{Kind: Heading, HeadingLevel: t.Level, Text: span}, nil
	case *ast.Paragraph:
		return Block{Kind: Paragraph, Text: span}, nil
	case *ast.List:
		return Block{Kind: List, Text: span}, nil
	case *ast.FencedCodeBlock:
		return Block{Kind: Code, Text: span}, nil
	case *ast.CodeBlock:
		return Block{Kind: Code, Text: span}, nil
	case *east.Table:
		rows := extractTable(t, src)
		return Block{Kind: Table, Text: span, TableRows: rows}, nil
	case *wikilink.Node:
		return Block{Kind: Extension, Text: span}, nil
	default:
		if containsExtension(n) {
			return Block{Kind: Extension, Text: span}, nil
		}
		return Block{Kind: Other, Text: span}, nil
	}
}

// containsExtension reports whether n or any descendant of n is a wikilink
// node; other node types are not checked.
func containsExtension(n ast.Node) bool {
	found := false
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if _, ok := c.(*wikilink.Node); ok {
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

func extractTable(t *east.Table, src []byte) [][]string {
	var rows [][]string
	for child := t.FirstChild(); child != nil; child = child.NextSibling() {
		switch row := child.(type) {
		case *east.TableHeader:
			rows = append(rows, extractRow(row, src))
		case *east.TableRow:
			rows = append(rows, extractRow(row, src))
		}
	}
	return rows
}

func extractRow(n ast.Node, src []byte) []string {
	var cells []string
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		cells = append(cells, string(nodeSourceBytes(c, src)))
	}
	return cells
}

func nodeSource(n ast.Node, src []byte) string {
	return string(nodeSourceBytes(n, src))
}

// nodeSourceBytes concatenates every text segment under n, which is how
// goldmark exposes raw source for inline-containing block nodes (it does
// not retain a single contiguous byte range for composite nodes).
func nodeSourceBytes(n ast.Node, src []byte) []byte {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		if buf.Len() > 0 {
			return buf.Bytes()
		}
	}
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if c.Type() == ast.TypeInline {
			if segs := inlineSegments(c); segs != nil {
				for _, seg := range segs {
					buf.Write(seg.Value(src))
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.Bytes()
}

func inlineSegments(n ast.Node) []text.Segment {
	switch t := n.(type) {
	case *ast.Text:
		return []text.Segment{t.Segment}
	}
	return nil
}
