// Package state is the single process-wide record of last_synced and
// tracked_pages, loaded once at orchestrator start and written once at
// orchestrator end. YAML-backed; Save goes through a temp file plus
// rename.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// TrackedPage is one entry in the tracked_pages set.
type TrackedPage struct {
	PageID    string `yaml:"page_id"`
	LocalPath string `yaml:"local_path"`
}

// State is the persisted document, loaded and stored as a single file.
type State struct {
	LastSynced   *time.Time    `yaml:"last_synced"`
	TrackedPages []TrackedPage `yaml:"tracked_pages"`

	path string
	mu   sync.Mutex
}

// Load reads state from path. A missing file is not an error: it yields
// a fresh, empty State (first-ever sync).
func Load(path string) (*State, error) {
	s := &State{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	s.path = path
	return s, nil
}

// Save writes the state document atomically via temp-file-plus-rename.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit state file: %w", err)
	}
	return nil
}

// TrackedSet returns tracked_pages as a page_id -> local_path map.
func (s *State) TrackedSet() map[string]string {
	out := make(map[string]string, len(s.TrackedPages))
	for _, p := range s.TrackedPages {
		out[p.PageID] = p.LocalPath
	}
	return out
}

// SetTracked replaces tracked_pages from a page_id -> local_path map.
func (s *State) SetTracked(pages map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracked := make([]TrackedPage, 0, len(pages))
	for id, path := range pages {
		tracked = append(tracked, TrackedPage{PageID: id, LocalPath: path})
	}
	s.TrackedPages = tracked
}

// Advance sets last_synced to now, in UTC. Callers skip this entirely
// for single-file runs.
func (s *State) Advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := now.UTC()
	s.LastSynced = &u
}
