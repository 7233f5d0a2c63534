// Package merkle implements the canonical-order append-only Merkle tree
// from spec.md §4.E, used to detect divergence between a store and its
// forks and to verify on-disk integrity after a crash.
package merkle

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/calvinalkan/memstore/pkg/record"
)

// ErrEmptyTree is returned by operations that need at least one leaf.
var ErrEmptyTree = errors.New("merkle: tree has no leaves")

// Tree is an append-only Merkle tree over content hashes, added in the
// order records were appended to the WAL. Internal nodes are combined with
// canonical ordering (hashPair sorts its two inputs first), so the tree is
// insensitive to left/right labeling: two stores that share a leaf prefix
// always produce the same sub-root over that prefix.
type Tree struct {
	algo record.HashAlgorithm

	// leaves holds every content hash ever added, in append order. Never
	// shrinks; soft deletes don't remove anything from this list.
	leaves []string

	// levels[0] is leaves; levels[i] is level i's node hashes, left to
	// right. Recomputed in full on every AddLeaf — simpler to reason about
	// and test than an incremental spine update, and cheap at the leaf
	// counts this store deals with.
	levels [][]string
}

// New returns an empty tree that hashes with algo.
func New(algo record.HashAlgorithm) *Tree {
	return &Tree{algo: algo.Or256()}
}

// LeafCount returns the number of leaves added so far.
func (t *Tree) LeafCount() int { return len(t.leaves) }

// Leaves returns a copy of the leaf hashes in append order.
func (t *Tree) Leaves() []string {
	out := make([]string, len(t.leaves))
	copy(out, t.leaves)

	return out
}

// Root returns the current root hash, or "" if the tree has no leaves.
func (t *Tree) Root() string {
	if len(t.levels) == 0 {
		return ""
	}

	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return ""
	}

	return top[0]
}

// AddLeaf appends hashHex as the next leaf and returns the new root.
func (t *Tree) AddLeaf(hashHex string) (string, error) {
	if _, err := hex.DecodeString(hashHex); err != nil {
		return "", fmt.Errorf("merkle: leaf hash is not hex: %w", err)
	}

	t.leaves = append(t.leaves, hashHex)
	t.levels = buildLevels(t.algo, t.leaves)

	return t.Root(), nil
}

// Rebuild replaces the tree's leaves wholesale (used when loading a
// snapshot or reconstructing from segments+WAL during recovery) and
// returns the recomputed root.
func Rebuild(algo record.HashAlgorithm, leaves []string) (*Tree, error) {
	t := New(algo)

	for _, leaf := range leaves {
		if _, err := t.AddLeaf(leaf); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// VerifyIntegrity rebuilds the tree from its own leaves and checks the
// root matches what AddLeaf last computed. This should only ever fail if
// the in-memory levels cache was corrupted by a bug, since Rebuild and
// AddLeaf share buildLevels.
func (t *Tree) VerifyIntegrity() bool {
	rebuilt := buildLevels(t.algo, t.leaves)
	want := t.Root()

	if len(rebuilt) == 0 {
		return want == ""
	}

	top := rebuilt[len(rebuilt)-1]
	if len(top) == 0 {
		return want == ""
	}

	return top[0] == want
}

// FindDivergence compares t's leaves against other and returns the first
// index where they disagree. If one is a prefix of the other, the
// divergence point is the length of the shorter list. ok is false if the
// two leaf lists are identical.
func FindDivergence(a, b []string) (index int, ok bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i, true
		}
	}

	if len(a) != len(b) {
		return n, true
	}

	return 0, false
}

// buildLevels computes every level of the tree from leaves, pairing
// adjacent nodes with canonical hashPair and promoting a lonely trailing
// node unchanged to the level above.
func buildLevels(algo record.HashAlgorithm, leaves []string) [][]string {
	if len(leaves) == 0 {
		return nil
	}

	levels := [][]string{append([]string(nil), leaves...)}
	current := levels[0]

	for len(current) > 1 {
		next := make([]string, 0, (len(current)+1)/2)

		i := 0
		for i+1 < len(current) {
			next = append(next, hashPair(algo, current[i], current[i+1]))
			i += 2
		}

		if i < len(current) {
			next = append(next, current[i])
		}

		levels = append(levels, next)
		current = next
	}

	return levels
}

// hashPair combines two hex-encoded hashes with canonical ordering:
// H(min(x,y) || max(x,y)) over their raw bytes. Lexicographic comparison
// of the hex strings agrees with byte-wise comparison of the decoded
// hashes, so we sort the hex strings directly.
func hashPair(algo record.HashAlgorithm, x, y string) string {
	lo, hi := x, y
	if lo > hi {
		lo, hi = hi, lo
	}

	loBytes, _ := hex.DecodeString(lo)
	hiBytes, _ := hex.DecodeString(hi)

	h := algo.New()
	h.Write(loBytes)
	h.Write(hiBytes)

	return hex.EncodeToString(h.Sum(nil))
}
