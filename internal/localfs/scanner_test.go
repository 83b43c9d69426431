package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, root, relPath, content string) {
	t.Helper()
	abs := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestScan_FindsMarkdownFilesAndSkipsHiddenDirs(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a/doc.md", "---\npage_id: \"1\"\n---\nbody\n")
	writeFixture(t, root, "notes.txt", "not markdown")
	writeFixture(t, root, ".git/HEAD", "ref: refs/heads/main")

	s := New(root, nil)
	pages, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("want 1 markdown page, got %d: %+v", len(pages), pages)
	}
	if pages[0].Path != filepath.Join("a", "doc.md") {
		t.Fatalf("Path = %q", pages[0].Path)
	}
	if pages[0].Doc == nil || !pages[0].Doc.HasPageID || pages[0].Doc.PageID != "1" {
		t.Fatalf("front-matter not parsed: %+v", pages[0].Doc)
	}
}

func TestScan_RespectsIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "keep.md", "keep\n")
	writeFixture(t, root, "drafts/skip.md", "skip\n")

	s := New(root, []string{"drafts/*"})
	pages, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pages) != 1 || pages[0].Path != "keep.md" {
		t.Fatalf("ignore pattern did not apply, got %+v", pages)
	}
}

func TestWriteReadDeleteFile(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)

	if err := s.WriteFile("sub/dir/doc.md", []byte("content")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !s.Exists("sub/dir/doc.md") {
		t.Fatalf("Exists should be true after WriteFile")
	}
	got, err := s.ReadFile("sub/dir/doc.md")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "content" {
		t.Fatalf("ReadFile = %q, want content", got)
	}

	if err := s.DeleteFile("sub/dir/doc.md"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if s.Exists("sub/dir/doc.md") {
		t.Fatalf("Exists should be false after DeleteFile")
	}
	// empty parent directories should be pruned up to (not including) root
	if _, err := os.Stat(filepath.Join(root, "sub")); !os.IsNotExist(err) {
		t.Fatalf("want empty parent directories pruned, stat err = %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("root itself must survive pruning: %v", err)
	}
}
