// Package orchestrator drives the full sync pipeline for every configured
// space: discover the remote subtree, scan the local tree, classify each
// tracked page, then apply creations, deletions, moves and content sync
// in strict phase order. A fatal error (auth, network, config) aborts the
// run; any other per-page failure is recorded and the run continues. The
// baseline is committed only after the remote has acknowledged a write.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PatD42/confluence-sync/internal/blocks"
	"github.com/PatD42/confluence-sync/internal/changeset"
	"github.com/PatD42/confluence-sync/internal/config"
	"github.com/PatD42/confluence-sync/internal/contenthash"
	"github.com/PatD42/confluence-sync/internal/docconverter"
	"github.com/PatD42/confluence-sync/internal/frontmatter"
	"github.com/PatD42/confluence-sync/internal/ledger"
	"github.com/PatD42/confluence-sync/internal/localfs"
	"github.com/PatD42/confluence-sync/internal/merge"
	"github.com/PatD42/confluence-sync/internal/progress"
	"github.com/PatD42/confluence-sync/internal/remote"
	"github.com/PatD42/confluence-sync/internal/retry"
	"github.com/PatD42/confluence-sync/internal/state"
	"github.com/PatD42/confluence-sync/internal/store"
	"github.com/PatD42/confluence-sync/internal/surgicaldiff"
	"github.com/PatD42/confluence-sync/internal/workerpool"
)

// ExitCode is the process exit status the CLI returns.
type ExitCode int

const (
	ExitOK          ExitCode = 0
	ExitError       ExitCode = 1
	ExitConflicts   ExitCode = 2
	ExitAuthFailure ExitCode = 3
	ExitNetwork     ExitCode = 4
)

// Opts carries the per-run flags.
type Opts struct {
	DryRun     bool
	ForcePush  bool
	ForcePull  bool
	SingleFile string // relative to its space's local_root; "" means "all"
}

// PageResult records the outcome of handling one classified change, for
// the CLI's report/summary rendering.
type PageResult struct {
	PageID string
	Path   string
	Class  changeset.Class
	Err    error
}

// Report is the accumulated outcome of a Run, across every configured
// space. record is called from worker-pool goroutines, so all mutation
// goes through mu.
type Report struct {
	Pushed    int
	Pulled    int
	Created   int
	Deleted   int
	Moved     int
	Unchanged int
	Conflicts int
	Failed    int
	Results   []PageResult

	// FatalErr is set the first time a per-page error classifies as
	// Fatal (classifyOutcome, errors.go). runSpace checks it after every
	// dispatch phase and aborts the space rather than continuing to
	// treat an auth/network failure as a skippable per-page error.
	FatalErr error

	mu sync.Mutex
}

func (r *Report) record(res PageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Results = append(r.Results, res)
	if res.Err != nil {
		if r.FatalErr == nil && classifyOutcome(res.Err) == Fatal {
			r.FatalErr = res.Err
		}
		var mu *remote.MergeUnresolved
		if errors.As(res.Err, &mu) {
			r.Conflicts++
			return
		}
		r.Failed++
		return
	}
	switch res.Class {
	case changeset.PushContent:
		r.Pushed++
	case changeset.PullContent:
		r.Pulled++
	case changeset.Conflict:
		// Only the dry-run path records a bare Conflict class; an
		// executed conflict either auto-resolves (recorded as the push
		// it produced) or carries a MergeUnresolved error.
		r.Conflicts++
	case changeset.CreateLocal, changeset.CreateRemote:
		r.Created++
	case changeset.DeleteLocal, changeset.DeleteRemote:
		r.Deleted++
	case changeset.MoveLocal, changeset.MoveRemote:
		r.Moved++
	case changeset.Unchanged:
		r.Unchanged++
	}
}

// fatal returns FatalErr under the report's own lock, for callers that
// check it while pool workers may still be recording.
func (r *Report) fatal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FatalErr
}

// trackedSet is the page_id -> local_path binding shared across phase
// goroutines; every access goes through the mutex.
type trackedSet struct {
	mu sync.Mutex
	m  map[string]string
}

func newTrackedSet(m map[string]string) *trackedSet {
	if m == nil {
		m = map[string]string{}
	}
	return &trackedSet{m: m}
}

func (t *trackedSet) get(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m[id]
}

func (t *trackedSet) set(id, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[id] = path
}

func (t *trackedSet) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, id)
}

// snapshot returns a copy, for read-only consumers (classification,
// persisting to StateStore).
func (t *trackedSet) snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.m))
	for id, path := range t.m {
		out[id] = path
	}
	return out
}

// Orchestrator owns every dependency the pipeline needs. Construct one per
// run (or reuse across runs; it carries no per-run mutable state beyond
// what its collaborators already serialize internally).
type Orchestrator struct {
	Remote    remote.API
	Retry     *retry.Shell
	Converter *docconverter.Converter
	Baseline  *store.BaselineStore
	State     *state.State
	Workers   int
	Logger    *slog.Logger

	// Progress renders a bar across the content-sync phase (the one whose
	// per-item latency dominates a run: a remote fetch, a merge, and a
	// push/pull). Nil disables rendering entirely (the default CLI path
	// sets it unless --no-color is passed).
	Progress *progress.Progress

	// Ledger, when non-nil, gets one RecordConflict row per page that
	// surfaces a MergeUnresolved outcome, so `confluence-sync conflicts
	// list` has something to show. Nil is valid (tests, single-file
	// debugging runs that don't want a sqlite file created).
	Ledger *ledger.Ledger
}

// New returns a ready-to-use Orchestrator. logger may be nil, in which case
// slog.Default() is used.
func New(api remote.API, shell *retry.Shell, conv *docconverter.Converter, baseline *store.BaselineStore, st *state.State, workers int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 10
	}
	return &Orchestrator{Remote: api, Retry: shell, Converter: conv, Baseline: baseline, State: st, Workers: workers, Logger: logger}
}

// Run drives the full pipeline across every configured
// space and returns the exit code the CLI surfaces.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config, opts Opts) (ExitCode, *Report, error) {
	if err := o.Converter.Available(); err != nil {
		return ExitError, nil, fmt.Errorf("orchestrator: %w", err)
	}

	report := &Report{}
	tracked := newTrackedSet(o.State.TrackedSet())

	for _, space := range cfg.Spaces {
		select {
		case <-ctx.Done():
			return ExitError, report, ctx.Err()
		default:
		}

		if err := o.runSpace(ctx, space, opts, tracked, report); err != nil {
			code := classifyFatal(err)
			o.Logger.Error("orchestrator: space aborted", "space", space.SpaceKey, "error", err)
			return code, report, err
		}
	}

	if opts.DryRun {
		if report.Conflicts > 0 {
			return ExitConflicts, report, nil
		}
		return ExitOK, report, nil
	}

	o.State.SetTracked(tracked.snapshot())
	if opts.SingleFile == "" {
		o.State.Advance(time.Now())
	}
	if err := o.State.Save(); err != nil {
		return ExitError, report, fmt.Errorf("orchestrator: persist state: %w", err)
	}

	if report.Conflicts > 0 {
		return ExitConflicts, report, nil
	}
	return ExitOK, report, nil
}

// classifyFatal maps a run-aborting error to its exit code.
func classifyFatal(err error) ExitCode {
	var auth *remote.AuthFailure
	if errors.As(err, &auth) {
		return ExitAuthFailure
	}
	var net *remote.NetworkError
	if errors.As(err, &net) {
		return ExitNetwork
	}
	return ExitError
}

// runSpace runs discover-remote, scan-local, classify and the strict
// phase order (creations, deletions, moves, content sync) for a single
// configured space.
func (o *Orchestrator) runSpace(ctx context.Context, space config.Space, opts Opts, tracked *trackedSet, report *Report) error {
	scanner := localfs.New(space.LocalPath, nil)

	remotes, err := o.discoverRemote(ctx, space)
	if err != nil {
		return err
	}
	if len(remotes) > space.PageLimit {
		return fmt.Errorf("space %s: %d pages exceeds the configured limit of %d; narrow the subtree or raise page_limit", space.SpaceKey, len(remotes), space.PageLimit)
	}

	locals, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("space %s: scan local_path: %w", space.SpaceKey, err)
	}

	// A first-ever sync has no baseline to merge against, so content on
	// both sides is unreconcilable: require one side to be empty, or an
	// explicit force flag to pick a winner.
	if o.State.LastSynced == nil && len(o.State.TrackedPages) == 0 &&
		!opts.ForcePush && !opts.ForcePull &&
		len(locals) > 0 && len(remotes) > 0 {
		return fmt.Errorf("space %s: first sync found content on both sides (%d local files, %d remote pages); start with one side empty, or pass --force-push or --force-pull to pick a side", space.SpaceKey, len(locals), len(remotes))
	}

	localInputs, pathByPage := toLocalInputs(locals, opts.SingleFile)
	remoteInputs, titleByID, chainByID := toRemoteInputs(remotes, space.ExcludePageID, space.ParentPageID)

	det := changeset.Options{
		LastSynced: lastSyncedUnix(o.State),
		Tracked:    spaceTracked(tracked.snapshot(), pathByPage, locals),
		ForcePush:  opts.ForcePush,
		ForcePull:  opts.ForcePull,
		SingleFile: opts.SingleFile,
	}
	changes := changeset.Detect(localInputs, remoteInputs, o.Baseline, det)

	byClass := bucketize(changes)

	if !opts.DryRun {
		phases := []func(){
			func() { o.execCreations(ctx, space, scanner, byClass[changeset.CreateLocal], tracked, report) },
			func() {
				o.execPullCreations(ctx, space, scanner, byClass[changeset.CreateRemote], titleByID, chainByID, tracked, report)
			},
			func() {
				o.execDeletions(ctx, scanner, byClass[changeset.DeleteRemote], byClass[changeset.DeleteLocal], tracked, report)
			},
			func() {
				o.execMoves(ctx, space, scanner, byClass[changeset.MoveLocal], byClass[changeset.MoveRemote], byClass[changeset.MoveConflict], titleByID, chainByID, tracked, report)
			},
			func() {
				o.execContentSync(ctx, scanner, append(append(byClass[changeset.PushContent], byClass[changeset.PullContent]...), byClass[changeset.Conflict]...), tracked, report)
			},
		}
		for _, phase := range phases {
			phase()
			if err := report.fatal(); err != nil {
				return fmt.Errorf("space %s: %w", space.SpaceKey, err)
			}
		}
	} else {
		for _, c := range changes {
			report.record(PageResult{PageID: c.PageID, Class: c.Class})
		}
	}

	return nil
}

func lastSyncedUnix(s *state.State) int64 {
	if s.LastSynced == nil {
		return 0
	}
	return s.LastSynced.Unix()
}

// spaceTracked narrows the process-wide tracked-pages map: an entry is kept
// when its page_id resolves to a file this scan found, or when its
// last-recorded local_path is not one of the scanned files; an entry whose
// recorded path is a scanned file that no longer carries that page_id is
// dropped. Spaces are expected not to share page_ids in practice;
// this is the simplifying disambiguation when they do.
func spaceTracked(tracked map[string]string, pathByPage map[string]string, locals []localfs.Page) map[string]string {
	out := make(map[string]string, len(tracked))
	localPaths := make(map[string]bool, len(locals))
	for _, l := range locals {
		localPaths[l.Path] = true
	}
	for id, path := range tracked {
		if _, stillHere := pathByPage[id]; stillHere {
			out[id] = path
			continue
		}
		if !localPaths[path] {
			// Neither resolvable in this space's current scan nor
			// previously bound to a path we just walked: kept as a
			// candidate deletion for this space. Entries are not
			// de-duplicated across spaces.
			out[id] = path
		}
	}
	return out
}

func toLocalInputs(locals []localfs.Page, singleFile string) ([]changeset.LocalInput, map[string]string) {
	inputs := make([]changeset.LocalInput, 0, len(locals))
	pathByPage := make(map[string]string)
	for _, l := range locals {
		in := changeset.LocalInput{
			Path:     l.Path,
			DirChain: dirChain(l.Path),
			Mtime:    l.Mtime,
			Raw:      l.Raw,
		}
		if l.Doc != nil && l.Doc.HasPageID {
			in.PageID = l.Doc.PageID
			in.HasPageID = true
			pathByPage[l.Doc.PageID] = l.Path
		}
		inputs = append(inputs, in)
	}
	_ = singleFile
	return inputs, pathByPage
}

func dirChain(relPath string) []string {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	if dir == "." || dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}

// toRemoteInputs converts the space's RemotePage set to changeset inputs,
// applying the exclude_page_ids filter: an excluded page or any page whose
// ancestor chain contains an excluded id is dropped entirely.
//
// The detector compares ancestor chains against local directory chains,
// which are title-shaped, so each remote id chain is first trimmed to the
// part below the configured parent and then mapped through titleByID. The
// returned chainByID keeps the raw id chains for path construction.
func toRemoteInputs(remotes []remote.PageSummary, excluded []string, parentID string) ([]changeset.RemoteInput, map[string]string, map[string][]string) {
	excludeSet := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		excludeSet[id] = true
	}

	titleByID := make(map[string]string, len(remotes))
	chainByID := make(map[string][]string, len(remotes))
	for _, r := range remotes {
		titleByID[r.PageID] = r.Title
		chainByID[r.PageID] = r.AncestorChain
	}

	var out []changeset.RemoteInput
	for _, r := range remotes {
		if excludeSet[r.PageID] {
			continue
		}
		if ancestorExcluded(r.AncestorChain, excludeSet) {
			continue
		}
		out = append(out, changeset.RemoteInput{
			PageID:        r.PageID,
			LastModified:  r.LastModified,
			AncestorChain: titleChain(relativeChain(r.AncestorChain, parentID), titleByID),
		})
	}
	return out, titleByID, chainByID
}

// relativeChain drops the part of an ancestor id chain at and above the
// configured parent page, leaving only the ancestors that correspond to
// directories under local_root. An empty parentID (space root) keeps the
// whole chain.
func relativeChain(chain []string, parentID string) []string {
	if parentID == "" {
		return chain
	}
	for i, id := range chain {
		if id == parentID {
			return chain[i+1:]
		}
	}
	return chain
}

// titleChain maps an ancestor id chain to the directory segments those
// ancestors occupy locally. Ids with no known title are skipped, matching
// how localPathForChain places pulled pages.
func titleChain(chain []string, titleByID map[string]string) []string {
	var out []string
	for _, id := range chain {
		if t, ok := titleByID[id]; ok && t != "" {
			out = append(out, sanitizeSegment(t))
		}
	}
	return out
}

func ancestorExcluded(chain []string, excludeSet map[string]bool) bool {
	for _, id := range chain {
		if excludeSet[id] {
			return true
		}
	}
	return false
}

func bucketize(changes []changeset.Change) map[changeset.Class][]changeset.Change {
	out := make(map[changeset.Class][]changeset.Change)
	for _, c := range changes {
		out[c.Class] = append(out[c.Class], c)
	}
	return out
}

// execCreations handles local files lacking page_id: create the remote
// page, then write the assigned page_id back into local front-matter.
func (o *Orchestrator) execCreations(ctx context.Context, space config.Space, scanner *localfs.Scanner, changes []changeset.Change, tracked *trackedSet, report *Report) {
	pool := workerpool.New(o.Workers)
	workerpool.Process(ctx, pool, changes, func(ctx context.Context, c changeset.Change) (struct{}, error) {
		res := PageResult{Path: c.Local.Path, Class: changeset.CreateLocal}
		doc, err := frontmatter.Parse(c.Local.Path, c.Local.Raw)
		if err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		storageBody, err := o.Converter.MarkdownToStorage(ctx, doc.Body)
		if err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		title := titleFromPath(c.Local.Path)
		var ref *remote.PageRef
		err = o.Retry.Call(ctx, func(ctx context.Context) error {
			var callErr error
			ref, callErr = o.Remote.CreatePage(ctx, space.SpaceKey, title, storageBody, space.ParentPageID)
			return callErr
		})
		if err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}

		doc.PageID = ref.PageID
		doc.HasPageID = true
		newRaw := frontmatter.Render(doc)
		if err := scanner.WriteFile(c.Local.Path, []byte(newRaw)); err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		if err := o.Baseline.Put(ref.PageID, []byte(newRaw)); err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		tracked.set(ref.PageID, c.Local.Path)
		res.PageID = ref.PageID
		report.record(res)
		return struct{}{}, nil
	})
}

// execPullCreations handles remote pages with no bound local file: fetch
// the page, convert it, and write a new tracked Markdown file.
func (o *Orchestrator) execPullCreations(ctx context.Context, space config.Space, scanner *localfs.Scanner, changes []changeset.Change, titleByID map[string]string, chainByID map[string][]string, tracked *trackedSet, report *Report) {
	pool := workerpool.New(o.Workers)
	workerpool.Process(ctx, pool, changes, func(ctx context.Context, c changeset.Change) (struct{}, error) {
		res := PageResult{PageID: c.PageID, Class: changeset.CreateRemote}
		var page *remote.Page
		err := o.Retry.Call(ctx, func(ctx context.Context) error {
			var callErr error
			page, callErr = o.Remote.GetPage(ctx, c.PageID, remote.FormatStorage)
			return callErr
		})
		if err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		md, err := o.Converter.StorageToMarkdown(ctx, page.Body)
		if err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		doc := &frontmatter.Document{PageID: c.PageID, HasPageID: true, Body: md}
		raw := frontmatter.Render(doc)

		relPath := localPathForChain(relativeChain(chainByID[c.PageID], space.ParentPageID), titleByID, page.Title)
		if err := scanner.WriteFile(relPath, []byte(raw)); err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		if err := o.Baseline.Put(c.PageID, []byte(raw)); err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		tracked.set(c.PageID, relPath)
		res.Path = relPath
		report.record(res)
		return struct{}{}, nil
	})
}

// execDeletions: a DeleteRemote classification means
// the remote side no longer has the page, so the local file is unlinked;
// a DeleteLocal classification means the local file is gone, so the
// remote page is moved to trash.
func (o *Orchestrator) execDeletions(ctx context.Context, scanner *localfs.Scanner, deleteRemote, deleteLocal []changeset.Change, tracked *trackedSet, report *Report) {
	pool := workerpool.New(o.Workers)

	workerpool.Process(ctx, pool, deleteRemote, func(ctx context.Context, c changeset.Change) (struct{}, error) {
		res := PageResult{PageID: c.PageID, Path: c.Local.Path, Class: changeset.DeleteRemote}
		if err := scanner.DeleteFile(c.Local.Path); err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		_ = o.Baseline.Delete(c.PageID)
		tracked.remove(c.PageID)
		report.record(res)
		return struct{}{}, nil
	})

	workerpool.Process(ctx, pool, deleteLocal, func(ctx context.Context, c changeset.Change) (struct{}, error) {
		res := PageResult{PageID: c.PageID, Path: c.Local.Path, Class: changeset.DeleteLocal}
		err := o.Retry.Call(ctx, func(ctx context.Context) error {
			return o.Remote.DeletePage(ctx, c.PageID)
		})
		if err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		_ = o.Baseline.Delete(c.PageID)
		tracked.remove(c.PageID)
		report.record(res)
		return struct{}{}, nil
	})
}

// execMoves: a local directory move is propagated by
// reparenting the remote page; a remote-side move is propagated by moving
// the local file; a MoveConflict is recorded and skipped (manual
// resolution required).
func (o *Orchestrator) execMoves(ctx context.Context, space config.Space, scanner *localfs.Scanner, moveLocal, moveRemote, moveConflict []changeset.Change, titleByID map[string]string, chainByID map[string][]string, tracked *trackedSet, report *Report) {
	// Local directory names were produced by sanitizeSegment at pull
	// time, so the reverse lookup keys on the sanitized title.
	titleToID := make(map[string]string, len(titleByID))
	for id, title := range titleByID {
		titleToID[sanitizeSegment(title)] = id
	}
	pool := workerpool.New(o.Workers)

	workerpool.Process(ctx, pool, moveLocal, func(ctx context.Context, c changeset.Change) (struct{}, error) {
		res := PageResult{PageID: c.PageID, Path: c.Local.Path, Class: changeset.MoveLocal}
		newParentID := space.ParentPageID
		if len(c.Local.DirChain) > 0 {
			if id, ok := titleToID[c.Local.DirChain[len(c.Local.DirChain)-1]]; ok {
				newParentID = id
			}
		}
		var err error
		for attempt := 0; attempt < 2; attempt++ {
			var page *remote.Page
			err = o.Retry.Call(ctx, func(ctx context.Context) error {
				var callErr error
				page, callErr = o.Remote.GetPage(ctx, c.PageID, remote.FormatStorage)
				return callErr
			})
			if err != nil {
				break
			}
			err = o.Retry.Call(ctx, func(ctx context.Context) error {
				_, callErr := o.Remote.UpdateParent(ctx, c.PageID, newParentID, page.Version)
				return callErr
			})
			var vc *remote.VersionConflict
			if errors.As(err, &vc) && attempt == 0 {
				// Re-fetch the page's current version once and retry
				// the reparent before giving up.
				o.Logger.Warn("orchestrator: version conflict on move, re-fetching", "page_id", c.PageID)
				continue
			}
			break
		}
		if err != nil {
			res.Err = err
			report.record(res)
			return struct{}{}, err
		}
		tracked.set(c.PageID, c.Local.Path)
		report.record(res)
		return struct{}{}, nil
	})

	workerpool.Process(ctx, pool, moveRemote, func(ctx context.Context, c changeset.Change) (struct{}, error) {
		res := PageResult{PageID: c.PageID, Class: changeset.MoveRemote}
		oldPath := tracked.get(c.PageID)
		if oldPath == "" {
			oldPath = c.Local.Path
		}
		newPath := localPathForChain(relativeChain(chainByID[c.PageID], space.ParentPageID), titleByID, filepath.Base(stripFrontmatterExt(oldPath)))
		res.Path = newPath
		if oldPath != "" && oldPath != newPath && scanner.Exists(oldPath) {
			raw, err := scanner.ReadFile(oldPath)
			if err != nil {
				res.Err = err
				report.record(res)
				return struct{}{}, err
			}
			if err := scanner.WriteFile(newPath, raw); err != nil {
				res.Err = err
				report.record(res)
				return struct{}{}, err
			}
			if err := scanner.DeleteFile(oldPath); err != nil {
				res.Err = err
				report.record(res)
				return struct{}{}, err
			}
		}
		tracked.set(c.PageID, newPath)
		report.record(res)
		return struct{}{}, nil
	})

	for _, c := range moveConflict {
		err := &remote.MoveConflict{PageID: c.PageID, TargetPath: c.Local.Path}
		o.Logger.Warn("orchestrator: move conflict, skipping", "page_id", c.PageID)
		report.record(PageResult{PageID: c.PageID, Path: c.Local.Path, Class: changeset.MoveConflict, Err: err})
	}
}

func stripFrontmatterExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// execContentSync handles PushContent, PullContent and Conflict
// uniformly: fetch the remote body, run ThreeWayMerger against the
// baseline, and either write conflict markers locally or push the
// resolved result to the remote. Reusing one merge call
// for all three classes is sound because Merge(base, local, base) = local
// (a pure push) and Merge(base, base, remote) = remote (a pure pull).
func (o *Orchestrator) execContentSync(ctx context.Context, scanner *localfs.Scanner, changes []changeset.Change, tracked *trackedSet, report *Report) {
	pool := workerpool.New(o.Workers)
	var onProgress func(completed, total int)
	if o.Progress != nil && len(changes) > 0 {
		onProgress = o.Progress.SimpleCallback()
		defer o.Progress.Finish()
	}
	workerpool.ProcessWithProgress(ctx, pool, changes, func(ctx context.Context, c changeset.Change) (struct{}, error) {
		res := PageResult{PageID: c.PageID, Path: c.Local.Path, Class: c.Class}

		// A push racing a concurrent remote edit is
		// retried once with a fresh fetch+re-merge; a second occurrence
		// is recorded as a failure for this page only.
		var err error
		for attempt := 0; attempt < 2; attempt++ {
			err = o.syncContentOnce(ctx, scanner, c, tracked)
			var vc *remote.VersionConflict
			if errors.As(err, &vc) && attempt == 0 {
				o.Logger.Warn("orchestrator: version conflict, re-fetching and re-merging", "page_id", c.PageID)
				continue
			}
			break
		}
		if err != nil {
			res.Err = err
		} else if res.Class == changeset.Conflict {
			// An auto-resolved conflict is reported as the push it
			// produced, so a clean run still exits 0.
			res.Class = changeset.PushContent
		}
		report.record(res)
		return struct{}{}, err
	}, onProgress)
}

// syncContentOnce performs one fetch-merge-push attempt for a single page
// of content. Reusing one merge call for PushContent/PullContent/
// Conflict alike is sound because Merge(base, local, base) = local (a pure
// push) and Merge(base, base, remote) = remote (a pure pull).
func (o *Orchestrator) syncContentOnce(ctx context.Context, scanner *localfs.Scanner, c changeset.Change, tracked *trackedSet) error {
	var page *remote.Page
	err := o.Retry.Call(ctx, func(ctx context.Context) error {
		var callErr error
		page, callErr = o.Remote.GetPage(ctx, c.PageID, remote.FormatStorage)
		return callErr
	})
	if err != nil {
		return err
	}
	remoteMD, err := o.Converter.StorageToMarkdown(ctx, page.Body)
	if err != nil {
		return err
	}
	remoteDoc := &frontmatter.Document{PageID: c.PageID, HasPageID: true, Body: remoteMD}
	remoteRaw := frontmatter.Render(remoteDoc)

	baselineRaw := ""
	if b, err := o.Baseline.Get(c.PageID); err == nil {
		baselineRaw = string(b)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	result := merge.Merge(baselineRaw, c.Local.Raw, remoteRaw)

	if result.HasConflicts() {
		if err := scanner.WriteFile(c.Local.Path, []byte(result.Merged)); err != nil {
			return err
		}
		tracked.set(c.PageID, c.Local.Path)
		o.recordConflict(c.PageID, c.Local.Path, c.Local.Raw, remoteRaw)
		return &remote.MergeUnresolved{PageID: c.PageID, ConflictCount: result.ConflictCount}
	}

	if result.Merged != remoteRaw {
		mergedDoc, err := frontmatter.Parse(c.Local.Path, result.Merged)
		if err != nil {
			return err
		}
		baseBlocks := baselineRaw
		if baseBlocks == "" {
			baseBlocks = remoteRaw
		}
		baseDoc, _ := frontmatter.Parse(c.Local.Path, baseBlocks)
		var remoteDocBlocks surgicaldiff.RemoteDoc
		if baseDoc != nil {
			remoteDocBlocks = syntheticRemoteDoc(baseDoc.Body)
		}
		diffResult, err := surgicaldiff.Diff(safeBody(baseDoc), mergedDoc.Body, remoteDocBlocks)
		if err != nil {
			return fmt.Errorf("page %s: %w", c.PageID, err)
		}
		_ = diffResult // validated above; RemoteAPI only exposes whole-body updates

		storageBody, err := o.Converter.MarkdownToStorage(ctx, mergedDoc.Body)
		if err != nil {
			return err
		}
		err = o.Retry.Call(ctx, func(ctx context.Context) error {
			_, callErr := o.Remote.UpdatePage(ctx, c.PageID, page.Title, storageBody, page.Version)
			return callErr
		})
		if err != nil {
			var vc *remote.VersionConflict
			if errors.As(err, &vc) {
				vc.PageID = c.PageID
				vc.Expected = page.Version
			}
			return err
		}
	}

	if result.Merged != c.Local.Raw {
		if err := scanner.WriteFile(c.Local.Path, []byte(result.Merged)); err != nil {
			return err
		}
	}
	if err := o.Baseline.Put(c.PageID, []byte(result.Merged)); err != nil {
		return err
	}
	tracked.set(c.PageID, c.Local.Path)
	return nil
}

// recordConflict logs an unresolved merge to the ledger, if one is wired.
// Best-effort: a ledger write failure here must not fail the page's own
// sync outcome, which is already MergeUnresolved and handled by the caller.
func (o *Orchestrator) recordConflict(pageID, path, localRaw, remoteRaw string) {
	if o.Ledger == nil {
		return
	}
	localHash := contenthash.Compute(localRaw).Full
	remoteHash := contenthash.Compute(remoteRaw).Full
	if _, err := o.Ledger.RecordConflict(pageID, path, localHash, remoteHash); err != nil {
		o.Logger.Warn("orchestrator: record conflict in ledger", "page_id", pageID, "error", err)
	}
}

func safeBody(d *frontmatter.Document) string {
	if d == nil {
		return ""
	}
	return d.Body
}

// syntheticRemoteDoc approximates the remote structured document's block
// identity from the last-known-synced Markdown: since RemoteAPI exposes no
// per-node read (only a whole-body Page), the baseline is the best proxy
// available for "what local_id each block currently has" and is
// sufficient for SurgicalDiffer's extension-element invariant check.
func syntheticRemoteDoc(baselineBody string) surgicaldiff.RemoteDoc {
	bs, err := blocks.Extract(baselineBody)
	if err != nil {
		return surgicaldiff.RemoteDoc{}
	}
	out := make([]surgicaldiff.RemoteBlock, len(bs))
	for i, b := range bs {
		sum := sha256.Sum256([]byte(strings.TrimSpace(b.Text)))
		out[i] = surgicaldiff.RemoteBlock{
			LocalID: fmt.Sprintf("b%d", i),
			Kind:    b.Kind,
			Level:   b.HeadingLevel,
			Hash:    hex.EncodeToString(sum[:]),
		}
	}
	return surgicaldiff.RemoteDoc{Blocks: out}
}

func titleFromPath(relPath string) string {
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// localPathForChain builds a relative local path for a remote page from
// its ancestor chain (mapped through titleByID to directory names) and
// its own title. Ancestor ids with no known title are skipped rather than
// aborting the whole path (best-effort placement; a later move-detection
// pass will reconcile should the guess be wrong).
func localPathForChain(chain []string, titleByID map[string]string, title string) string {
	var segs []string
	for _, id := range chain {
		if t, ok := titleByID[id]; ok && t != "" {
			segs = append(segs, sanitizeSegment(t))
		}
	}
	segs = append(segs, sanitizeSegment(title)+".md")
	return filepath.Join(segs...)
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, string(filepath.Separator), "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// discoverRemote issues the single SearchByQuery call for one space.
func (o *Orchestrator) discoverRemote(ctx context.Context, space config.Space) ([]remote.PageSummary, error) {
	query := fmt.Sprintf("space = %q", space.SpaceKey)
	if space.ParentPageID != "" {
		query = fmt.Sprintf("ancestor = %s AND space = %q", space.ParentPageID, space.SpaceKey)
	}

	var results []remote.PageSummary
	err := o.Retry.Call(ctx, func(ctx context.Context) error {
		var callErr error
		results, callErr = o.Remote.SearchByQuery(ctx, query, []string{"version.when", "ancestors"}, 50)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("space %s: discover remote: %w", space.SpaceKey, err)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].PageID < results[j].PageID })
	return results, nil
}
