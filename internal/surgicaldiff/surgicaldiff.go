// Package surgicaldiff computes the minimal ordered list of operations
// needed to bring a remote structured document in line with a page's
// newly-merged Markdown, given the baseline Markdown both sides last
// agreed on. Blocks are matched by longest common subsequence over
// (kind, normalized-content hash); extension blocks are never the target
// of a delete.
package surgicaldiff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/PatD42/confluence-sync/internal/blocks"
)

// OpKind tags the SurgicalOp variant.
type OpKind int

const (
	UpdateText OpKind = iota
	DeleteBlockOp
	InsertBlockOp
	ChangeHeadingLevel
	TableInsertRow
	TableDeleteRow
	TableUpdateCell
)

// Op is one surgical edit. Only the fields relevant to Kind are set.
type Op struct {
	Kind          OpKind
	TargetLocalID string
	AfterLocalID  string
	NewText       string
	NewContent    string
	NewLevel      int
	RowIndex      int
	ColIndex      int
	Cells         []string
}

// RemoteDoc is the minimal view of the remote structured document the
// differ needs: an ordered list of local_ids with enough content to hash
// for matching, in the same order SurgicalDiffer will target them in.
type RemoteDoc struct {
	Blocks []RemoteBlock
}

// RemoteBlock is one block of the remote's current structured document.
type RemoteBlock struct {
	LocalID string
	Kind    blocks.Kind
	Level   int
	Hash    string // normalized-content hash, as last synced
}

// Result is the differ's outcome.
type Result struct {
	Ops              []Op
	FallbackRequired bool
}

// maxUnmatchedFraction: above this fraction of unmatched blocks, give up
// on a surgical diff and signal a full-body replace instead.
const maxUnmatchedFraction = 0.5

// Diff computes the surgical operations needed to turn baselineMarkdown
// into newMarkdown on the remote, given the remote's current block list.
func Diff(baselineMarkdown, newMarkdown string, remote RemoteDoc) (Result, error) {
	baseBlocks, err := blocks.Extract(baselineMarkdown)
	if err != nil {
		return Result{}, fmt.Errorf("surgicaldiff: extract baseline: %w", err)
	}
	newBlocks, err := blocks.Extract(newMarkdown)
	if err != nil {
		return Result{}, fmt.Errorf("surgicaldiff: extract new: %w", err)
	}

	matched := matchBlocksToRemote(baseBlocks, remote)
	pairs, unmatchedCount := lcsMatch(matched, newBlocks)

	total := len(baseBlocks) + len(newBlocks)
	if total > 0 && float64(unmatchedCount)/float64(total) > maxUnmatchedFraction {
		return Result{FallbackRequired: true}, nil
	}

	var ops []Op
	lastLocalID := ""
	for _, p := range pairs {
		switch {
		case p.old == nil && p.new == nil:
			continue
		case p.old != nil && p.new == nil:
			if p.old.kind == blocks.Extension {
				return Result{}, fmt.Errorf("surgicaldiff: refusing to delete extension block %s", p.old.localID)
			}
			ops = append(ops, Op{Kind: DeleteBlockOp, TargetLocalID: p.old.localID})
		case p.old == nil && p.new != nil:
			ops = append(ops, blockToInsertOp(lastLocalID, p.new))
		default:
			ops = append(ops, diffMatchedBlock(p.old, p.new)...)
			lastLocalID = p.old.localID
		}
	}

	return Result{Ops: ops}, nil
}

// annotatedBlock pairs a content block with the local_id the remote
// assigned to the matching block at last sync, when one was found.
type annotatedBlock struct {
	block   blocks.Block
	localID string
	kind    blocks.Kind
	level   int
	hash    string
}

func matchBlocksToRemote(baseBlocks []blocks.Block, remote RemoteDoc) []annotatedBlock {
	out := make([]annotatedBlock, len(baseBlocks))
	used := make([]bool, len(remote.Blocks))
	for i, b := range baseBlocks {
		h := contentHash(b)
		out[i] = annotatedBlock{block: b, kind: b.Kind, level: b.HeadingLevel, hash: h}
		for ri, rb := range remote.Blocks {
			if used[ri] || rb.Kind != b.Kind || rb.Hash != h {
				continue
			}
			if b.Kind == blocks.Heading && rb.Level != b.HeadingLevel {
				continue
			}
			out[i].localID = rb.LocalID
			used[ri] = true
			break
		}
	}
	return out
}

func contentHash(b blocks.Block) string {
	norm := strings.TrimSpace(b.Text)
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

type pair struct {
	old *annotatedBlock
	new *blocks.Block
}

// lcsMatch aligns the annotated baseline blocks with the new block list by
// content hash, using LCS so that unmoved blocks match even when blocks
// were inserted or removed elsewhere.
func lcsMatch(old []annotatedBlock, new []blocks.Block) ([]pair, int) {
	n, m := len(old), len(new)
	oldHash := make([]string, n)
	for i, b := range old {
		oldHash[i] = b.hash
	}
	newHash := make([]string, m)
	for i, b := range new {
		newHash[i] = contentHash(b)
	}

	l := make([][]int, n+1)
	for i := range l {
		l[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldHash[i] == newHash[j] {
				l[i][j] = l[i+1][j+1] + 1
			} else if l[i+1][j] >= l[i][j+1] {
				l[i][j] = l[i+1][j]
			} else {
				l[i][j] = l[i][j+1]
			}
		}
	}

	var pairs []pair
	unmatched := 0
	i, j := 0, 0
	for i < n && j < m {
		if oldHash[i] == newHash[j] {
			o, nw := old[i], new[j]
			pairs = append(pairs, pair{old: &o, new: &nw})
			i++
			j++
			continue
		}
		if l[i+1][j] >= l[i][j+1] {
			o := old[i]
			pairs = append(pairs, pair{old: &o, new: nil})
			unmatched++
			i++
		} else {
			nw := new[j]
			pairs = append(pairs, pair{old: nil, new: &nw})
			unmatched++
			j++
		}
	}
	for ; i < n; i++ {
		o := old[i]
		pairs = append(pairs, pair{old: &o, new: nil})
		unmatched++
	}
	for ; j < m; j++ {
		nw := new[j]
		pairs = append(pairs, pair{old: nil, new: &nw})
		unmatched++
	}
	return pairs, unmatched
}

func blockToInsertOp(afterLocalID string, b *blocks.Block) Op {
	return Op{Kind: InsertBlockOp, AfterLocalID: afterLocalID, NewContent: b.Text}
}

// diffMatchedBlock compares a matched old/new pair that have identical
// content hash at the block-granularity LCS step; any remaining
// divergence is sub-block (text inside a paragraph, a heading level, or a
// table row/cell) and is emitted as the corresponding fine-grained op.
func diffMatchedBlock(old *annotatedBlock, new *blocks.Block) []Op {
	var ops []Op
	if old.block.Text == new.Text && old.block.HeadingLevel == new.HeadingLevel {
		return ops
	}
	switch new.Kind {
	case blocks.Heading:
		if old.block.HeadingLevel != new.HeadingLevel {
			ops = append(ops, Op{Kind: ChangeHeadingLevel, TargetLocalID: old.localID, NewLevel: new.HeadingLevel})
		}
		if strings.TrimSpace(old.block.Text) != strings.TrimSpace(new.Text) {
			ops = append(ops, Op{Kind: UpdateText, TargetLocalID: old.localID, NewText: new.Text})
		}
	case blocks.Table:
		ops = append(ops, diffTable(old, new)...)
	case blocks.Paragraph, blocks.List, blocks.Code, blocks.Other:
		ops = append(ops, Op{Kind: UpdateText, TargetLocalID: old.localID, NewText: new.Text})
	}
	return ops
}

func diffTable(old *annotatedBlock, new *blocks.Block) []Op {
	var ops []Op
	oldRows := old.block.TableRows
	newRows := new.TableRows

	minRows := len(oldRows)
	if len(newRows) < minRows {
		minRows = len(newRows)
	}
	for r := 0; r < minRows; r++ {
		oldRow, newRow := oldRows[r], newRows[r]
		minCols := len(oldRow)
		if len(newRow) < minCols {
			minCols = len(newRow)
		}
		for c := 0; c < minCols; c++ {
			if oldRow[c] != newRow[c] {
				ops = append(ops, Op{Kind: TableUpdateCell, TargetLocalID: old.localID, RowIndex: r, ColIndex: c, NewContent: newRow[c]})
			}
		}
	}
	for r := len(newRows); r < len(oldRows); r++ {
		ops = append(ops, Op{Kind: TableDeleteRow, TargetLocalID: old.localID, RowIndex: r})
	}
	for r := len(oldRows); r < len(newRows); r++ {
		ops = append(ops, Op{Kind: TableInsertRow, TargetLocalID: old.localID, RowIndex: r, Cells: newRows[r]})
	}
	return ops
}
