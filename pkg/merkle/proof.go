package merkle

import (
	"fmt"

	"github.com/calvinalkan/memstore/pkg/record"
)

// Sibling is one step of a Merkle proof: the hash to combine with the
// running value, and which side of the original (pre-canonical-sort) pair
// it came from. Side is carried for debugging/display only — verification
// uses hashPair's canonical ordering and never consults it.
type Sibling struct {
	Hash string
	Side string // "left" or "right"
}

// Proof is a membership proof for one leaf: the leaf itself, the sibling
// chain from leaf to root, and the root it should verify against.
type Proof struct {
	LeafIndex int
	LeafHash  string
	Siblings  []Sibling
	Root      string
}

// GenerateProof builds a Proof for the leaf at leafIndex.
func (t *Tree) GenerateProof(leafIndex int) (Proof, error) {
	if leafIndex < 0 || leafIndex >= len(t.leaves) {
		return Proof{}, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", leafIndex, len(t.leaves))
	}

	proof := Proof{LeafIndex: leafIndex, LeafHash: t.leaves[leafIndex], Root: t.Root()}

	index := leafIndex
	for level := 0; level < len(t.levels)-1; level++ {
		siblingIndex := index ^ 1

		nodes := t.levels[level]
		if siblingIndex < len(nodes) {
			side := "right"
			if index%2 != 0 {
				side = "left"
			}

			proof.Siblings = append(proof.Siblings, Sibling{Hash: nodes[siblingIndex], Side: side})
		}

		index /= 2
	}

	return proof, nil
}

// VerifyProof recomputes the root from proof.LeafHash and its siblings
// using canonical hashPair ordering, and reports whether it matches
// proof.Root. Tampering with any byte of the leaf hash, a sibling hash, or
// the recorded root causes this to return false.
func VerifyProof(algo record.HashAlgorithm, proof Proof) bool {
	computed := proof.LeafHash

	for _, sib := range proof.Siblings {
		computed = hashPair(algo, computed, sib.Hash)
	}

	return computed == proof.Root
}
