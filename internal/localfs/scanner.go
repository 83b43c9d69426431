// Package localfs implements LocalScanner: it walks a configured local_root,
// parses each Markdown file's front-matter, and yields the LocalPage set the
// ChangeDetector classifies against. Hidden directories are skipped,
// only .md files are considered, and ignore patterns accept globs,
// basenames, and ** prefixes.
package localfs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PatD42/confluence-sync/internal/frontmatter"
)

// Page is a single discovered Markdown file, already parsed.
type Page struct {
	Path    string // relative to Root
	AbsPath string
	Mtime   int64 // unix seconds
	Raw     string
	Doc     *frontmatter.Document
}

// Scanner walks a local_root directory collecting Markdown files.
type Scanner struct {
	Root   string
	Ignore []string
}

// New creates a Scanner rooted at root, ignoring paths matching any of the
// given glob-ish patterns.
func New(root string, ignore []string) *Scanner {
	return &Scanner{Root: root, Ignore: ignore}
}

// Scan walks the vault and returns every tracked Markdown file, parsed.
func (s *Scanner) Scan(ctx context.Context) ([]Page, error) {
	var pages []Page

	err := filepath.WalkDir(s.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if entry.IsDir() && strings.HasPrefix(entry.Name(), ".") && path != s.Root {
			return filepath.SkipDir
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			return nil
		}

		relPath, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		if s.shouldIgnore(relPath) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		doc, err := frontmatter.Parse(relPath, string(raw))
		if err != nil {
			return err
		}

		pages = append(pages, Page{
			Path:    relPath,
			AbsPath: path,
			Mtime:   info.ModTime().Unix(),
			Raw:     string(raw),
			Doc:     doc,
		})
		return nil
	})
	if err != nil && err != filepath.SkipDir {
		return nil, err
	}
	return pages, nil
}

// shouldIgnore reports whether relPath matches any configured ignore
// pattern, by full relative path, by base name, or by a naive ** wildcard
// fallback.
func (s *Scanner) shouldIgnore(relPath string) bool {
	for _, pattern := range s.Ignore {
		if matched, _ := filepath.Match(pattern, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(relPath)); matched {
			return true
		}
		if strings.Contains(pattern, "**") {
			simple := strings.ReplaceAll(pattern, "**", "*")
			if matched, _ := filepath.Match(simple, relPath); matched {
				return true
			}
		}
	}
	return false
}

// WriteFile writes content to relPath under Root, creating parent
// directories as needed. Not atomic by itself — callers needing atomicity
// (BaselineStore, StateStore) use their own temp-file-plus-rename.
func (s *Scanner) WriteFile(relPath string, content []byte) error {
	abs := filepath.Join(s.Root, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, content, 0o644)
}

// ReadFile returns the current on-disk content of relPath under Root.
func (s *Scanner) ReadFile(relPath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.Root, relPath))
}

// DeleteFile removes a tracked file and prunes now-empty parent
// directories up to (but not including) Root.
func (s *Scanner) DeleteFile(relPath string) error {
	abs := filepath.Join(s.Root, relPath)
	if err := os.Remove(abs); err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	for dir != s.Root && strings.HasPrefix(dir, s.Root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// Exists reports whether relPath exists under Root.
func (s *Scanner) Exists(relPath string) bool {
	_, err := os.Stat(filepath.Join(s.Root, relPath))
	return err == nil
}
