// Package changeset classifies every tracked page into exactly one change
// class by comparing the local file set, the remote page set, the
// tracked-pages set from the state store, and the content baseline. Local
// modification detection is hybrid: an mtime filter first, a baseline
// byte comparison only for files whose mtime advanced.
package changeset

import (
	"path/filepath"
	"strings"
)

// Class is the classification outcome for a single tracked item.
type Class int

const (
	Unchanged Class = iota
	PushContent
	PullContent
	Conflict
	DeleteLocal
	DeleteRemote
	MoveLocal
	MoveRemote
	CreateLocal
	CreateRemote
	MoveConflict
)

func (c Class) String() string {
	switch c {
	case Unchanged:
		return "Unchanged"
	case PushContent:
		return "PushContent"
	case PullContent:
		return "PullContent"
	case Conflict:
		return "Conflict"
	case DeleteLocal:
		return "DeleteLocal"
	case DeleteRemote:
		return "DeleteRemote"
	case MoveLocal:
		return "MoveLocal"
	case MoveRemote:
		return "MoveRemote"
	case CreateLocal:
		return "CreateLocal"
	case CreateRemote:
		return "CreateRemote"
	case MoveConflict:
		return "MoveConflict"
	}
	return "Unknown"
}

// LocalInput is the subset of localfs.Page the detector needs.
type LocalInput struct {
	PageID    string
	HasPageID bool
	Path      string
	DirChain  []string // parent directory segments, root-first
	Mtime     int64
	Raw       string
}

// RemoteInput is the subset of remote.PageSummary the detector needs.
type RemoteInput struct {
	PageID        string
	LastModified  int64
	AncestorChain []string
}

// Baseline is the read-only accessor ChangeDetector consults; implemented
// by internal/store.BaselineStore in production, faked in tests.
type Baseline interface {
	Get(pageID string) ([]byte, error)
	Has(pageID string) bool
}

// Change is one classified item, with enough context for the orchestrator
// to act on it without re-deriving anything.
type Change struct {
	PageID   string
	Class    Class
	Local    *LocalInput
	Remote   *RemoteInput
	NewPath  string // always empty from Detect; execMoves derives a MoveRemote's target path itself
}

// Options configures a single classification run.
type Options struct {
	LastSynced int64             // unix seconds, 0 means "never synced"
	Tracked    map[string]string // page_id -> local_path, from StateStore
	ForcePush  bool
	ForcePull  bool
	SingleFile string // relative path filter, "" means "all"
}

// baselineChain derives the directory chain a page_id was filed under as
// of the last successful sync, from the tracked local_path (root-first,
// directory segments only, no filename). An untracked page_id has no
// baseline chain: move detection then falls back to treating the remote
// side as authoritative (first-observed move).
func baselineChain(pageID string, tracked map[string]string) ([]string, bool) {
	path, ok := tracked[pageID]
	if !ok {
		return nil, false
	}
	dir := pathDir(path)
	if dir == "" || dir == "." {
		return nil, true
	}
	return strings.Split(filepath.ToSlash(dir), "/"), true
}

func pathDir(p string) string {
	p = filepath.ToSlash(p)
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[:idx]
	}
	return ""
}

// Detect runs the full classification algorithm and returns exactly one
// Change per relevant page_id (plus a separate move Change where a page
// both moved and changed content).
func Detect(locals []LocalInput, remotes []RemoteInput, baseline Baseline, opts Options) []Change {
	localByID := map[string]*LocalInput{}
	var unbound []LocalInput
	for i := range locals {
		l := locals[i]
		if opts.SingleFile != "" && l.Path != opts.SingleFile {
			continue
		}
		if !l.HasPageID {
			unbound = append(unbound, l)
			continue
		}
		localByID[l.PageID] = &l
	}

	remoteByID := map[string]*RemoteInput{}
	for i := range remotes {
		r := remotes[i]
		remoteByID[r.PageID] = &r
	}

	var out []Change

	// Step 2 (first half): local files with no page_id -> CreateLocal.
	for _, l := range unbound {
		lCopy := l
		out = append(out, Change{Class: CreateLocal, Local: &lCopy})
	}

	// Step 2 (second half): remote pages with no local file slot -> CreateRemote.
	for id, r := range remoteByID {
		if _, boundLocally := localByID[id]; boundLocally {
			continue
		}
		if _, wasTracked := opts.Tracked[id]; wasTracked {
			continue // handled by step 3 deletions below, not a fresh create
		}
		rCopy := *r
		out = append(out, Change{PageID: id, Class: CreateRemote, Remote: &rCopy})
	}

	// Step 3: deletions relative to the tracked set.
	for id, localPath := range opts.Tracked {
		_, inLocal := localByID[id]
		_, inRemote := remoteByID[id]
		switch {
		case inLocal && !inRemote:
			l := localByID[id]
			out = append(out, Change{PageID: id, Class: DeleteRemote, Local: l})
		case inRemote && !inLocal:
			out = append(out, Change{PageID: id, Class: DeleteLocal, Remote: remoteByID[id], Local: &LocalInput{PageID: id, Path: localPath}})
		}
	}

	// Steps 4-6: pages present on both sides.
	for id, l := range localByID {
		r, ok := remoteByID[id]
		if !ok {
			continue // handled by DeleteRemote above
		}
		out = append(out, classifyBoth(id, l, r, baseline, opts)...)
	}

	return out
}

// classifyBoth handles the move-detection and content-classification
// steps for a single page present on both sides.
func classifyBoth(id string, l *LocalInput, r *RemoteInput, baseline Baseline, opts Options) []Change {
	var changes []Change

	// Step 4: move detection.
	if moveClass, newPath := detectMove(l, r, id, opts); moveClass != Unchanged {
		ch := Change{PageID: id, Class: moveClass, Local: l, Remote: r, NewPath: newPath}
		changes = append(changes, ch)
	}

	// Step 5/6: content classification.
	contentClass := classifyContent(id, l, r, baseline, opts)
	if contentClass != Unchanged || len(changes) == 0 {
		changes = append(changes, Change{PageID: id, Class: contentClass, Local: l, Remote: r})
	}
	return changes
}

// detectMove compares the local directory chain against the remote
// ancestor chain and against what the baseline last recorded (derived from
// the tracked local_path). Returns Unchanged when no move is detected.
func detectMove(l *LocalInput, r *RemoteInput, pageID string, opts Options) (Class, string) {
	if chainsEqual(l.DirChain, r.AncestorChain) {
		return Unchanged, ""
	}

	base, hadBaseline := baselineChain(pageID, opts.Tracked)
	if !hadBaseline {
		// First-observed move with nothing on record to compare
		// against: treat the remote's chain as authoritative.
		return MoveRemote, ""
	}

	localChanged := !chainsEqual(l.DirChain, base)
	remoteChanged := !chainsEqual(r.AncestorChain, base)

	switch {
	case localChanged && !remoteChanged:
		return MoveLocal, ""
	case !localChanged && remoteChanged:
		return MoveRemote, ""
	case localChanged && remoteChanged && chainsEqual(l.DirChain, r.AncestorChain):
		// both sides converged on the same new parent independently
		return Unchanged, ""
	case localChanged && remoteChanged:
		return MoveConflict, ""
	default:
		return Unchanged, ""
	}
}

func chainsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// classifyContent decides the content class, honoring force overrides.
func classifyContent(id string, l *LocalInput, r *RemoteInput, baseline Baseline, opts Options) Class {
	if opts.ForcePush {
		return PushContent
	}
	if opts.ForcePull {
		return PullContent
	}

	localModified := isLocallyModified(l, baseline, opts.LastSynced)
	remoteModified := isRemotelyModified(id, r, baseline, opts.LastSynced)

	switch {
	case !localModified && !remoteModified:
		return Unchanged
	case localModified && !remoteModified:
		return PushContent
	case !localModified && remoteModified:
		return PullContent
	default:
		return Conflict
	}
}

// isLocallyModified implements the hybrid local-change test.
func isLocallyModified(l *LocalInput, baseline Baseline, lastSynced int64) bool {
	if l.Mtime <= lastSynced {
		return false
	}
	base, err := baseline.Get(l.PageID)
	if err != nil {
		return true // no baseline to compare against: treat as modified
	}
	return string(base) != l.Raw
}

// isRemotelyModified reports a page as remotely modified when its remote
// timestamp is newer than last_synced or it has no baseline entry. The
// remote body is not fetched at classification time, so it is never
// compared against the baseline here.
func isRemotelyModified(id string, r *RemoteInput, baseline Baseline, lastSynced int64) bool {
	if r.LastModified > lastSynced {
		return true
	}
	return !baseline.Has(id)
}
