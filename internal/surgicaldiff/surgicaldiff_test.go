package surgicaldiff

import (
	"testing"

	"github.com/PatD42/confluence-sync/internal/blocks"
)

// buildRemoteDoc extracts raw as blocks and wraps them into a RemoteDoc
// whose hashes match contentHash exactly, as if the remote had just
// acknowledged this exact content (assigning sequential local ids).
func buildRemoteDoc(t *testing.T, raw string) RemoteDoc {
	t.Helper()
	bs, err := blocks.Extract(raw)
	if err != nil {
		t.Fatalf("blocks.Extract: %v", err)
	}
	out := make([]RemoteBlock, len(bs))
	for i, b := range bs {
		out[i] = RemoteBlock{
			LocalID: blockID(i),
			Kind:    b.Kind,
			Level:   b.HeadingLevel,
			Hash:    contentHash(b),
		}
	}
	return RemoteDoc{Blocks: out}
}

func blockID(i int) string {
	return "b" + string(rune('0'+i))
}

func TestDiff_IdenticalContentProducesNoOps(t *testing.T) {
	raw := "# Title\n\nBody paragraph.\n"
	remote := buildRemoteDoc(t, raw)

	result, err := Diff(raw, raw, remote)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(result.Ops) != 0 {
		t.Fatalf("want no ops for identical content, got %+v", result.Ops)
	}
	if result.FallbackRequired {
		t.Fatalf("identical content should never require fallback")
	}
}

// A changed paragraph has a different content hash than its predecessor, so
// the LCS match (which only pairs blocks with identical hashes) can't treat
// it as an in-place update: it surfaces as the old block deleted and the new
// one inserted in its place.
func TestDiff_ChangedParagraphIsDeleteThenInsert(t *testing.T) {
	base := "# Title\n\nOld paragraph.\n"
	newMD := "# Title\n\nNew paragraph.\n"
	remote := buildRemoteDoc(t, base)

	result, err := Diff(base, newMD, remote)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	var sawDelete, sawInsert bool
	for _, op := range result.Ops {
		if op.Kind == DeleteBlockOp {
			sawDelete = true
		}
		if op.Kind == InsertBlockOp && op.NewContent == "New paragraph.\n" {
			sawInsert = true
		}
	}
	if !sawDelete || !sawInsert {
		t.Fatalf("want a delete of the old paragraph and an insert of the new one, got %+v", result.Ops)
	}
}

func TestDiff_AppendedBlockIsInsertOnly(t *testing.T) {
	base := "# Title\n\nIntro.\n"
	newMD := "# Title\n\nIntro.\n\nAppended paragraph.\n"
	remote := buildRemoteDoc(t, base)

	result, err := Diff(base, newMD, remote)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	for _, op := range result.Ops {
		if op.Kind == DeleteBlockOp {
			t.Fatalf("appending a block should not delete anything, got %+v", result.Ops)
		}
	}
	found := false
	for _, op := range result.Ops {
		if op.Kind == InsertBlockOp {
			found = true
		}
	}
	if !found {
		t.Fatalf("want an InsertBlockOp for the appended paragraph, got %+v", result.Ops)
	}
}

func TestDiff_TooManyUnmatchedBlocksRequiresFallback(t *testing.T) {
	base := "First.\n\nSecond.\n\nThird.\n\nFourth.\n"
	newMD := "Completely.\n\nDifferent.\n\nContent.\n\nHere.\n"
	remote := buildRemoteDoc(t, base)

	result, err := Diff(base, newMD, remote)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if !result.FallbackRequired {
		t.Fatalf("want FallbackRequired when nearly every block is unmatched")
	}
}
