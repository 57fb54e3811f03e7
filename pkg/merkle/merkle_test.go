package merkle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/openbloc/merkledrop-go/pkg/types"
)

// createTestLeaves creates n leaves with distinct authorities and amounts
func createTestLeaves(t *testing.T, n int) []types.Leaf {
	t.Helper()

	leaves := make([]types.Leaf, n)
	for i := 0; i < n; i++ {
		recipient := types.Recipient{
			Address:    common.BigToAddress(big.NewInt(int64(i + 1))).Hex(),
			Amount:     big.NewInt(int64((i + 1) * 100)),
			UnlockTime: 0,
		}
		leaf, err := NewLeaf(recipient, i)
		require.NoError(t, err)
		leaves[i] = leaf
	}
	return leaves
}

// TestBuildAndVerify tests tree construction and proof round-trips across sizes
func TestBuildAndVerify(t *testing.T) {
	testCases := []struct {
		name      string
		numLeaves int
	}{
		{"Single leaf", 1},
		{"Two leaves", 2},
		{"Three leaves", 3},
		{"Four leaves (power of 2)", 4},
		{"Five leaves", 5},
		{"Seven leaves", 7},
		{"Eight leaves (power of 2)", 8},
		{"Fifteen leaves", 15},
		{"Sixteen leaves (power of 2)", 16},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			leaves := createTestLeaves(t, tc.numLeaves)
			tree, err := Build(leaves)
			require.NoError(t, err)
			require.NotNil(t, tree)
			require.NotEqual(t, [32]byte{}, tree.Root())

			// Every leaf must prove against the root
			for _, leaf := range leaves {
				proof, err := tree.DeriveProof(leaf)
				require.NoError(t, err)
				require.True(t, VerifyProof(proof, leaf, tree.Root()), "proof for %s should verify", leaf.Authority.Hex())
			}
		})
	}
}

// TestBuildEmpty tests that zero leaves are rejected before any other work
func TestBuildEmpty(t *testing.T) {
	tree, err := Build(nil)
	require.Error(t, err)
	require.Nil(t, tree)
	require.ErrorIs(t, err, types.ErrEmptyTree)
}

// TestRootDeterminism tests that the root is a pure function of the ordered leaf list
func TestRootDeterminism(t *testing.T) {
	leaves := createTestLeaves(t, 9)

	first, err := Build(leaves)
	require.NoError(t, err)
	second, err := Build(leaves)
	require.NoError(t, err)
	require.Equal(t, first.Root(), second.Root())

	// A different order is a different but valid commitment
	reversed := make([]types.Leaf, len(leaves))
	for i, leaf := range leaves {
		reversed[len(leaves)-1-i] = leaf
	}
	// Salts stay with the leaf, so the reversal changes pairing only
	third, err := Build(reversed)
	require.NoError(t, err)
	require.NotEqual(t, first.Root(), third.Root())

	for _, leaf := range reversed {
		proof, err := third.DeriveProof(leaf)
		require.NoError(t, err)
		require.True(t, VerifyProof(proof, leaf, third.Root()))
	}
}

// TestProofNegative tests that tampered or mismatched proofs fail without panicking
func TestProofNegative(t *testing.T) {
	leaves := createTestLeaves(t, 6)
	tree, err := Build(leaves)
	require.NoError(t, err)

	proof, err := tree.DeriveProof(leaves[2])
	require.NoError(t, err)

	t.Run("Wrong root", func(t *testing.T) {
		wrongRoot := [32]byte{1, 2, 3}
		require.False(t, VerifyProof(proof, leaves[2], wrongRoot))
	})

	t.Run("Flipped proof byte", func(t *testing.T) {
		tampered := make(Proof, len(proof))
		copy(tampered, proof)
		tampered[0][0] ^= 0xFF
		require.False(t, VerifyProof(tampered, leaves[2], tree.Root()))
	})

	t.Run("Wrong leaf for proof", func(t *testing.T) {
		require.False(t, VerifyProof(proof, leaves[3], tree.Root()))
	})

	t.Run("Foreign leaf", func(t *testing.T) {
		foreign, err := NewLeaf(types.Recipient{
			Address: common.BigToAddress(big.NewInt(999)).Hex(),
			Amount:  big.NewInt(1),
		}, 99)
		require.NoError(t, err)
		require.False(t, VerifyProof(proof, foreign, tree.Root()))
	})

	t.Run("Truncated proof", func(t *testing.T) {
		if len(proof) == 0 {
			t.Skip("proof has no elements to drop")
		}
		require.False(t, VerifyProof(proof[:len(proof)-1], leaves[2], tree.Root()))
	})

	t.Run("Extended proof", func(t *testing.T) {
		extended := append(Proof{}, proof...)
		extended = append(extended, [32]byte{0xAB})
		require.False(t, VerifyProof(extended, leaves[2], tree.Root()))
	})

	t.Run("Empty proof on multi-leaf tree", func(t *testing.T) {
		require.False(t, VerifyProof(Proof{}, leaves[2], tree.Root()))
	})
}

// TestDeriveProofLeafNotFound tests lookup of an absent leaf
func TestDeriveProofLeafNotFound(t *testing.T) {
	leaves := createTestLeaves(t, 4)
	tree, err := Build(leaves)
	require.NoError(t, err)

	// Same authority, different amount: not the exact leaf
	altered := leaves[0]
	altered.Amount = big.NewInt(123456)

	proof, err := tree.DeriveProof(altered)
	require.Nil(t, proof)
	require.ErrorIs(t, err, types.ErrLeafNotFound)
}

// TestSaltUniqueness tests that identical triples at different indices hash differently
func TestSaltUniqueness(t *testing.T) {
	recipient := types.Recipient{
		Address:    common.BigToAddress(big.NewInt(7)).Hex(),
		Amount:     big.NewInt(500),
		UnlockTime: 0,
	}

	first, err := NewLeaf(recipient, 0)
	require.NoError(t, err)
	second, err := NewLeaf(recipient, 1)
	require.NoError(t, err)

	require.Equal(t, first.Authority, second.Authority)
	require.Equal(t, first.StartedAt, second.StartedAt)
	require.NotEqual(t, first.Salt, second.Salt)
	require.NotEqual(t, HashLeaf(first), HashLeaf(second))

	// Both leaves coexist in one tree and prove independently
	tree, err := Build([]types.Leaf{first, second})
	require.NoError(t, err)

	proof, err := tree.DeriveProof(first)
	require.NoError(t, err)
	require.True(t, VerifyProof(proof, first, tree.Root()))
	require.False(t, VerifyProof(proof, second, tree.Root()))
}

// TestTotalConservation tests exact summation for amounts past 64 bits
func TestTotalConservation(t *testing.T) {
	huge, ok := new(big.Int).SetString("340282366920938463463374607431768211455", 10) // 2^128 - 1
	require.True(t, ok)

	leaves := make([]types.Leaf, 3)
	expected := new(big.Int)
	for i := range leaves {
		amount := new(big.Int).Add(huge, big.NewInt(int64(i)))
		leaf, err := NewLeaf(types.Recipient{
			Address: common.BigToAddress(big.NewInt(int64(i + 1))).Hex(),
			Amount:  amount,
		}, i)
		require.NoError(t, err)
		leaves[i] = leaf
		expected.Add(expected, amount)
	}

	tree, err := Build(leaves)
	require.NoError(t, err)
	require.Zero(t, expected.Cmp(tree.Total()))

	// Total must be a copy, not a live pointer into the tree
	tree.Total().SetInt64(0)
	require.Zero(t, expected.Cmp(tree.Total()))
}

// TestNewLeafInvalidAddress tests address validation at the codec boundary
func TestNewLeafInvalidAddress(t *testing.T) {
	invalid := []string{
		"",
		"not-an-address",
		"0x1234",
		"0xZZ250d0d1bBaC0077F9e8bf04778459D99B12e75",
	}

	for _, address := range invalid {
		_, err := NewLeaf(types.Recipient{Address: address, Amount: big.NewInt(1)}, 0)
		require.True(t, errors.Is(err, types.ErrInvalidAddress), "address %q should be rejected", address)
	}
}
