package merkle

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/openbloc/merkledrop-go/pkg/types"
)

// Tree is a binary merkle tree over an ordered list of leaves. The root is a
// pure function of the leaf order; a tree is immutable once built and may be
// shared across goroutines without synchronization.
//
// The tree uses keccak256 hashing. Child pairs are hashed in sorted byte
// order so that verification folds without tracking leaf indices, and an
// unpaired trailing node is carried to the next level unchanged.
type Tree struct {
	leaves []types.Leaf

	// levels[0] = leaf hashes, levels[len-1] = [root]
	levels [][][32]byte

	root  [32]byte
	total *big.Int
}

// Proof is the ordered sequence of sibling hashes from a leaf to the root.
type Proof [][32]byte

// Build constructs the tree for an ordered leaf list. Ordering is a
// parameter, not a correctness concern: the same set in a different order
// yields a different but equally valid root. Returns types.ErrEmptyTree for
// a zero-length list.
func Build(leaves []types.Leaf) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, types.ErrEmptyTree
	}

	total := new(big.Int)
	hashes := make([][32]byte, len(leaves))
	for i, leaf := range leaves {
		hashes[i] = HashLeaf(leaf)
		if leaf.Amount != nil {
			total.Add(total, leaf.Amount)
		}
	}

	levels := make([][][32]byte, 0)
	levels = append(levels, hashes)

	currentLevel := hashes
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 < len(currentLevel) {
				nextLevel = append(nextLevel, hashPair(currentLevel[i], currentLevel[i+1]))
			} else {
				// Odd node count: carry the last hash forward unchanged
				nextLevel = append(nextLevel, currentLevel[i])
			}
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	kept := make([]types.Leaf, len(leaves))
	copy(kept, leaves)

	return &Tree{
		leaves: kept,
		levels: levels,
		root:   currentLevel[0],
		total:  total,
	}, nil
}

// Root returns the merkle root committing to the full ordered leaf list.
func (t *Tree) Root() [32]byte {
	return t.root
}

// Total returns the sum of all leaf amounts. The ledger uses it as the
// authorized payout cap so claims cannot over-withdraw in aggregate.
func (t *Tree) Total() *big.Int {
	return new(big.Int).Set(t.total)
}

// Leaves returns a copy of the ordered leaf list.
func (t *Tree) Leaves() []types.Leaf {
	out := make([]types.Leaf, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// DeriveProof collects the sibling hash at each level on the path from the
// given leaf to the root. Returns types.ErrLeafNotFound unless a leaf with
// all fields equal is present.
func (t *Tree) DeriveProof(leaf types.Leaf) (Proof, error) {
	index := -1
	for i, candidate := range t.leaves {
		if candidate.Equal(leaf) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, errors.Wrapf(types.ErrLeafNotFound, "authority %s", leaf.Authority.Hex())
	}

	proof := make(Proof, 0)
	for level := 0; level < len(t.levels)-1; level++ {
		currentLevel := t.levels[level]

		siblingIndex := index ^ 1
		if siblingIndex < len(currentLevel) {
			proof = append(proof, currentLevel[siblingIndex])
		}
		// A carried node has no sibling at this level and contributes
		// nothing to the proof.

		index = index / 2
	}

	return proof, nil
}

// VerifyProof recomputes the leaf hash, folds in each proof sibling with the
// same pairing rule used by Build, and compares the result to the expected
// root. It never panics: a wrong-length or tampered proof simply yields a
// non-matching root.
func VerifyProof(proof Proof, leaf types.Leaf, expectedRoot [32]byte) bool {
	current := HashLeaf(leaf)
	for _, sibling := range proof {
		current = hashPair(current, sibling)
	}
	return current == expectedRoot
}

// hashPair computes keccak256 over the two child hashes in sorted byte
// order.
func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	data := make([]byte, 64)
	copy(data[0:32], a[:])
	copy(data[32:64], b[:])
	return [32]byte(crypto.Keccak256Hash(data))
}
