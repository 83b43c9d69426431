package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "version: 1\nspaces:\n  - space_key: ENG\n    local_path: " + filepath.Join(dir, "docs") + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Spaces) != 1 || cfg.Spaces[0].SpaceKey != "ENG" {
		t.Fatalf("unexpected spaces: %+v", cfg.Spaces)
	}
	if cfg.Spaces[0].PageLimit != 10000 {
		t.Fatalf("want default page_limit 10000, got %d", cfg.Spaces[0].PageLimit)
	}
}

func TestLoad_MissingSpaceKeyFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "version: 1\nspaces:\n  - local_path: " + dir + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("want a validation error for a missing space_key")
	}
}

func TestLoad_NoSpacesFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("want a validation error when no spaces are configured")
	}
}

func TestLoad_ExpandsEnvAndTilde(t *testing.T) {
	t.Setenv("CS_TEST_PARENT", "parent-123")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available in this environment")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "version: 1\nspaces:\n  - space_key: ENG\n    local_path: \"~/cs-test-docs\"\n    parent_page_id: \"${CS_TEST_PARENT}\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wantPath := filepath.Join(home, "cs-test-docs")
	if cfg.Spaces[0].LocalPath != wantPath {
		t.Fatalf("LocalPath = %q, want %q", cfg.Spaces[0].LocalPath, wantPath)
	}
	if cfg.Spaces[0].ParentPageID != "parent-123" {
		t.Fatalf("ParentPageID = %q, want parent-123", cfg.Spaces[0].ParentPageID)
	}
}

func TestSave_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Spaces = append(cfg.Spaces, Space{SpaceKey: "ENG", LocalPath: filepath.Join(dir, "docs"), PageLimit: 500})

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if len(reloaded.Spaces) != 1 || reloaded.Spaces[0].SpaceKey != "ENG" {
		t.Fatalf("unexpected reloaded spaces: %+v", reloaded.Spaces)
	}
	if reloaded.Spaces[0].PageLimit != 500 {
		t.Fatalf("PageLimit = %d, want 500", reloaded.Spaces[0].PageLimit)
	}
}

func TestSpaceByKey(t *testing.T) {
	cfg := &Config{Spaces: []Space{{SpaceKey: "A"}, {SpaceKey: "B"}}}
	if got := cfg.SpaceByKey("B"); got == nil || got.SpaceKey != "B" {
		t.Fatalf("SpaceByKey(B) = %+v", got)
	}
	if got := cfg.SpaceByKey("missing"); got != nil {
		t.Fatalf("SpaceByKey(missing) = %+v, want nil", got)
	}
}
