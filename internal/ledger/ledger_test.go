package ledger

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndGetConflicts(t *testing.T) {
	l := openTestLedger(t)

	id, err := l.RecordConflict("p1", "a/doc.md", "hashL", "hashR")
	if err != nil {
		t.Fatalf("RecordConflict: %v", err)
	}

	has, err := l.HasConflict("p1")
	if err != nil {
		t.Fatalf("HasConflict: %v", err)
	}
	if !has {
		t.Fatalf("want HasConflict true after recording")
	}

	conflicts, err := l.GetConflicts()
	if err != nil {
		t.Fatalf("GetConflicts: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].ID != id || conflicts[0].Resolution != Unresolved {
		t.Fatalf("unexpected conflicts: %+v", conflicts)
	}

	if err := l.ResolveConflict(id, KeptLocal); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	has, err = l.HasConflict("p1")
	if err != nil {
		t.Fatalf("HasConflict after resolve: %v", err)
	}
	if has {
		t.Fatalf("want HasConflict false once resolved")
	}

	conflicts, err = l.GetConflicts()
	if err != nil {
		t.Fatalf("GetConflicts after resolve: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("resolved conflict should not show up as unresolved, got %+v", conflicts)
	}
}

func TestRecordAndGetHistory(t *testing.T) {
	l := openTestLedger(t)

	older := Run{
		StartedAt:   time.Now().Add(-2 * time.Hour).Truncate(time.Second),
		FinishedAt:  time.Now().Add(-2 * time.Hour).Add(time.Minute).Truncate(time.Second),
		PagesPushed: 1,
		ExitCode:    0,
	}
	newer := Run{
		StartedAt:   time.Now().Truncate(time.Second),
		FinishedAt:  time.Now().Add(time.Minute).Truncate(time.Second),
		PagesPulled: 2,
		Conflicts:   1,
		ExitCode:    2,
	}
	if err := l.RecordRun(older); err != nil {
		t.Fatalf("RecordRun older: %v", err)
	}
	if err := l.RecordRun(newer); err != nil {
		t.Fatalf("RecordRun newer: %v", err)
	}

	history, err := l.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("want 2 history rows, got %d", len(history))
	}
	if !history[0].StartedAt.Equal(newer.StartedAt) {
		t.Fatalf("want newest run first, got %+v", history[0])
	}
	if history[0].ExitCode != 2 || history[0].Conflicts != 1 {
		t.Fatalf("unexpected newest run fields: %+v", history[0])
	}

	if err := l.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	history, err = l.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory after clear: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("want empty history after ClearHistory, got %+v", history)
	}
}

func TestHasConflict_FalseWhenNoneRecorded(t *testing.T) {
	l := openTestLedger(t)
	has, err := l.HasConflict("unknown")
	if err != nil {
		t.Fatalf("HasConflict: %v", err)
	}
	if has {
		t.Fatalf("want false for a page with no recorded conflict")
	}
}
