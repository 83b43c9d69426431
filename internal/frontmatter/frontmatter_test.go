package frontmatter

import (
	"strings"
	"testing"
)

func TestParse_NoFrontmatter(t *testing.T) {
	doc, err := Parse("doc.md", "just body text\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.HasPageID {
		t.Fatalf("a file with no front-matter block must not have a page_id")
	}
	if doc.Body != "just body text\n" {
		t.Fatalf("Body = %q", doc.Body)
	}
}

func TestParse_WithPageID(t *testing.T) {
	raw := "---\npage_id: \"12345\"\n---\nHello world\n"
	doc, err := Parse("doc.md", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !doc.HasPageID || doc.PageID != "12345" {
		t.Fatalf("want page_id 12345, got HasPageID=%v PageID=%q", doc.HasPageID, doc.PageID)
	}
	if doc.Body != "Hello world\n" {
		t.Fatalf("Body = %q", doc.Body)
	}
}

func TestParse_IntPageIDCoercedToString(t *testing.T) {
	raw := "---\npage_id: 42\n---\nBody\n"
	doc, err := Parse("doc.md", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.PageID != "42" || !doc.HasPageID {
		t.Fatalf("want page_id \"42\", got %q (HasPageID=%v)", doc.PageID, doc.HasPageID)
	}
}

func TestParse_UnknownKeysPreservedInExtra(t *testing.T) {
	raw := "---\npage_id: \"1\"\ntitle: My Title\n---\nBody\n"
	doc, err := Parse("doc.md", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Extra["title"] != "My Title" {
		t.Fatalf("want Extra[title]=My Title, got %v", doc.Extra["title"])
	}
}

func TestParse_UnterminatedBlockIsAnError(t *testing.T) {
	_, err := Parse("doc.md", "---\npage_id: \"1\"\nno closing delimiter\n")
	if err == nil {
		t.Fatalf("want an error for an unterminated front-matter block")
	}
	var pe *ParseError
	if pe, _ = err.(*ParseError); pe == nil {
		t.Fatalf("want a *ParseError, got %T", err)
	}
}

func TestRender_RoundTripsPageID(t *testing.T) {
	doc := &Document{PageID: "999", HasPageID: true, Body: "content\n"}
	raw := Render(doc)
	reparsed, err := Parse("doc.md", raw)
	if err != nil {
		t.Fatalf("unexpected error re-parsing rendered output: %v", err)
	}
	if reparsed.PageID != "999" || !reparsed.HasPageID {
		t.Fatalf("round trip lost page_id: %+v", reparsed)
	}
	if reparsed.Body != "content\n" {
		t.Fatalf("round trip lost body: %q", reparsed.Body)
	}
}

func TestRender_UnboundDocumentEmitsNullPageID(t *testing.T) {
	doc := &Document{HasPageID: false, Body: "content\n"}
	raw := Render(doc)
	if want := "---\npage_id: null\n---\ncontent\n"; raw != want {
		t.Fatalf("Render = %q, want %q", raw, want)
	}
}

func TestRender_DropsExtraKeys(t *testing.T) {
	doc := &Document{PageID: "1", HasPageID: true, Extra: map[string]any{"title": "X"}, Body: "body\n"}
	raw := Render(doc)
	if strings.Contains(raw, "title") {
		t.Fatalf("Render must not re-emit Extra keys, got %q", raw)
	}
}
