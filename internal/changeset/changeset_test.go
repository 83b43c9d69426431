package changeset

import (
	"sort"
	"testing"
)

// fakeBaseline is a minimal in-memory Baseline for classification tests.
type fakeBaseline map[string]string

func (f fakeBaseline) Get(pageID string) ([]byte, error) {
	v, ok := f[pageID]
	if !ok {
		return nil, errNotFound
	}
	return []byte(v), nil
}

func (f fakeBaseline) Has(pageID string) bool {
	_, ok := f[pageID]
	return ok
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

var errNotFound = notFoundErr{}

func classesOf(changes []Change) []Class {
	var out []Class
	for _, c := range changes {
		out = append(out, c.Class)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestDetect_Unchanged(t *testing.T) {
	base := fakeBaseline{"p1": "body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "a/doc.md", DirChain: []string{"a"}, Mtime: 100, Raw: "body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"a"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != Unchanged {
		t.Fatalf("want [Unchanged], got %v", got)
	}
}

func TestDetect_PushContent(t *testing.T) {
	base := fakeBaseline{"p1": "old body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "a/doc.md", DirChain: []string{"a"}, Mtime: 300, Raw: "new body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"a"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != PushContent {
		t.Fatalf("want [PushContent], got %v", got)
	}
}

func TestDetect_PullContent(t *testing.T) {
	base := fakeBaseline{"p1": "old body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "a/doc.md", DirChain: []string{"a"}, Mtime: 100, Raw: "old body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 300, AncestorChain: []string{"a"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != PullContent {
		t.Fatalf("want [PullContent], got %v", got)
	}
}

func TestDetect_Conflict(t *testing.T) {
	base := fakeBaseline{"p1": "old body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "a/doc.md", DirChain: []string{"a"}, Mtime: 300, Raw: "changed locally"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 300, AncestorChain: []string{"a"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != Conflict {
		t.Fatalf("want [Conflict], got %v", got)
	}
}

func TestDetect_ForcePushOverridesEverything(t *testing.T) {
	base := fakeBaseline{"p1": "old body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "a/doc.md", DirChain: []string{"a"}, Mtime: 100, Raw: "old body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"a"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}, ForcePush: true}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != PushContent {
		t.Fatalf("want [PushContent] under ForcePush, got %v", got)
	}
}

func TestDetect_CreateLocalAndCreateRemote(t *testing.T) {
	base := fakeBaseline{}
	locals := []LocalInput{{HasPageID: false, Path: "new.md", Mtime: 100, Raw: "x"}}
	remotes := []RemoteInput{{PageID: "p9", LastModified: 100, AncestorChain: nil}}
	opts := Options{LastSynced: 0, Tracked: map[string]string{}}

	changes := Detect(locals, remotes, base, opts)
	got := classesOf(changes)
	if len(got) != 2 || got[0] != CreateLocal || got[1] != CreateRemote {
		t.Fatalf("want [CreateLocal CreateRemote], got %v", got)
	}
}

func TestDetect_DeleteRemote(t *testing.T) {
	// Tracked page_id present locally but no longer returned by the remote
	// search: the remote side deleted it, so the local file gets removed.
	base := fakeBaseline{"p1": "body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "a/doc.md", DirChain: []string{"a"}, Mtime: 100, Raw: "body"}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, nil, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != DeleteRemote {
		t.Fatalf("want [DeleteRemote], got %v", got)
	}
}

func TestDetect_DeleteLocal(t *testing.T) {
	// Tracked page_id still present remotely but the local file vanished:
	// propagate the deletion to the remote page.
	base := fakeBaseline{"p1": "body"}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"a"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(nil, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != DeleteLocal {
		t.Fatalf("want [DeleteLocal], got %v", got)
	}
}

func TestDetect_MoveLocal(t *testing.T) {
	base := fakeBaseline{"p1": "body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "b/doc.md", DirChain: []string{"b"}, Mtime: 100, Raw: "body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"a"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != MoveLocal {
		t.Fatalf("want [MoveLocal], got %v", got)
	}
}

func TestDetect_MoveRemote(t *testing.T) {
	base := fakeBaseline{"p1": "body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "a/doc.md", DirChain: []string{"a"}, Mtime: 100, Raw: "body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"c"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != MoveRemote {
		t.Fatalf("want [MoveRemote], got %v", got)
	}
}

func TestDetect_MoveConflictWhenBothSidesMovedDifferently(t *testing.T) {
	base := fakeBaseline{"p1": "body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "b/doc.md", DirChain: []string{"b"}, Mtime: 100, Raw: "body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"c"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != MoveConflict {
		t.Fatalf("want [MoveConflict], got %v", got)
	}
}

func TestDetect_BothSidesConvergeOnSameParentIsNotAMove(t *testing.T) {
	base := fakeBaseline{"p1": "body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "c/doc.md", DirChain: []string{"c"}, Mtime: 100, Raw: "body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"c"}}}
	opts := Options{LastSynced: 200, Tracked: map[string]string{"p1": "a/doc.md"}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != Unchanged {
		t.Fatalf("want [Unchanged] when both sides land on the same new parent, got %v", got)
	}
}

func TestDetect_FirstObservedMoveWithNoBaselineTreatsRemoteAsAuthoritative(t *testing.T) {
	base := fakeBaseline{"p1": "body"}
	locals := []LocalInput{{PageID: "p1", HasPageID: true, Path: "a/doc.md", DirChain: []string{"a"}, Mtime: 100, Raw: "body"}}
	remotes := []RemoteInput{{PageID: "p1", LastModified: 100, AncestorChain: []string{"z"}}}
	// p1 is not in Tracked: no baseline chain on record.
	opts := Options{LastSynced: 200, Tracked: map[string]string{}}

	changes := Detect(locals, remotes, base, opts)
	if got := classesOf(changes); len(got) != 1 || got[0] != MoveRemote {
		t.Fatalf("want [MoveRemote] as the first-observed-move fallback, got %v", got)
	}
}
