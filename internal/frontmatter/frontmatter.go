// Package frontmatter parses and serializes the minimal YAML front-matter
// block every tracked Markdown file carries: a single significant key,
// page_id, with unknown keys preserved for forward compatibility on read
// and dropped on write.
//
// Delimiter scanning is line/column-aware and handles LF and CRLF, the
// empty-frontmatter edge case, and EOF without a trailing newline.
package frontmatter

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError reports a front-matter parsing failure with enough location
// information for a user-facing message.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Document is the parsed result of a tracked Markdown file: the optional
// page_id binding, any other keys found (kept in Extra on read; Render
// does not write them back), and the body following the front-matter
// block.
type Document struct {
	PageID    string // empty means "no page_id" (unbound, to be created)
	HasPageID bool
	Extra     map[string]any
	Body      string
}

// Parse extracts the front-matter block and body from raw file content.
// A missing front-matter block is not an error: it yields a Document with
// HasPageID=false and the entire input as Body (this is how a brand-new,
// not-yet-tracked file looks).
func Parse(path string, raw string) (*Document, error) {
	s := strings.ReplaceAll(raw, "\r\n", "\n")

	if !strings.HasPrefix(s, "---\n") {
		return &Document{Body: raw}, nil
	}

	rest := s[len("---\n"):]
	idx := strings.Index(rest, "\n---\n")
	var block, body string
	if strings.HasPrefix(rest, "---\n") {
		block = ""
		body = rest[len("---\n"):]
	} else if idx >= 0 {
		block = rest[:idx]
		body = rest[idx+len("\n---\n"):]
	} else if strings.HasSuffix(rest, "\n---") {
		block = rest[:len(rest)-len("\n---")]
		body = ""
	} else if rest == "---" {
		block = ""
		body = ""
	} else {
		return nil, &ParseError{Path: path, Line: 1, Message: "unterminated front-matter block"}
	}

	raw_ := map[string]any{}
	if strings.TrimSpace(block) != "" {
		if err := yaml.Unmarshal([]byte(block), &raw_); err != nil {
			return nil, &ParseError{Path: path, Line: lineOfYAMLError(err), Message: err.Error()}
		}
	}

	doc := &Document{Extra: map[string]any{}, Body: body}
	for k, v := range raw_ {
		if k == "page_id" {
			switch t := v.(type) {
			case string:
				doc.PageID = t
				doc.HasPageID = t != ""
			case int:
				doc.PageID = fmt.Sprintf("%d", t)
				doc.HasPageID = true
			case nil:
				doc.HasPageID = false
			}
			continue
		}
		doc.Extra[k] = v
	}
	return doc, nil
}

// Render serializes a Document back to raw file content. Only page_id is
// emitted; Extra is intentionally dropped.
func Render(d *Document) string {
	var b strings.Builder
	b.WriteString("---\n")
	if d.HasPageID {
		fmt.Fprintf(&b, "page_id: %q\n", d.PageID)
	} else {
		b.WriteString("page_id: null\n")
	}
	b.WriteString("---\n")
	b.WriteString(d.Body)
	return b.String()
}

// lineOfYAMLError best-efforts a line number out of a yaml.v3 TypeError or
// generic error message; yaml.v3 embeds "line N:" in most of its error
// strings.
func lineOfYAMLError(err error) int {
	msg := err.Error()
	const marker = "line "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return 1
	}
	rest := msg[idx+len(marker):]
	n := 0
	for _, c := range rest {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return 1
	}
	return n
}
