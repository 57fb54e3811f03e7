package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openbloc/merkledrop-go/pkg/ledger"
	"github.com/openbloc/merkledrop-go/pkg/merkle"
	"github.com/openbloc/merkledrop-go/pkg/types"
)

func testLeaves(t *testing.T, n int) []types.Leaf {
	t.Helper()

	leaves := make([]types.Leaf, n)
	for i := 0; i < n; i++ {
		leaf, err := merkle.NewLeaf(types.Recipient{
			Address: common.BigToAddress(big.NewInt(int64(i + 1))).Hex(),
			Amount:  big.NewInt(int64((i + 1) * 100)),
		}, i)
		require.NoError(t, err)
		leaves[i] = leaf
	}
	return leaves
}

func initializeTestDistribution(t *testing.T, ml *MemoryLedger, tree *merkle.Tree, endedAt int64) common.Address {
	t.Helper()

	result, err := ml.InitializeDistributor(context.Background(), &ledger.InitializeParams{
		TokenAddress: common.BigToAddress(big.NewInt(1000)),
		Authority:    common.BigToAddress(big.NewInt(2000)),
		Total:        tree.Total(),
		MerkleRoot:   tree.Root(),
		EndedAt:      endedAt,
	})
	require.NoError(t, err)
	return result.DistributorAddress
}

func TestInitializeAndList(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())
	tree, err := merkle.Build(testLeaves(t, 3))
	require.NoError(t, err)

	address := initializeTestDistribution(t, ml, tree, 0)

	dists, err := ml.ListAllDistributors(context.Background())
	require.NoError(t, err)
	require.Len(t, dists, 1)
	require.Equal(t, address, dists[0].DistributorAddress)
	require.Equal(t, tree.Root(), dists[0].MerkleRoot)
	require.Zero(t, tree.Total().Cmp(dists[0].Total))
	require.False(t, dists[0].Revoked)
}

func TestClaimPaysOnce(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())
	leaves := testLeaves(t, 4)
	tree, err := merkle.Build(leaves)
	require.NoError(t, err)
	address := initializeTestDistribution(t, ml, tree, 0)
	ctx := context.Background()

	proof, err := tree.DeriveProof(leaves[1])
	require.NoError(t, err)

	result, err := ml.Claim(ctx, &ledger.ClaimParams{
		DistributorAddress: address,
		Proof:              proof,
		Data:               leaves[1],
	})
	require.NoError(t, err)
	require.Equal(t, leaves[1].Authority, result.DstAddress)

	remaining := ml.Remaining(address)
	expected := new(big.Int).Sub(tree.Total(), leaves[1].Amount)
	require.Zero(t, expected.Cmp(remaining))

	// Second payout of the same leaf must be rejected
	_, err = ml.Claim(ctx, &ledger.ClaimParams{
		DistributorAddress: address,
		Proof:              proof,
		Data:               leaves[1],
	})
	require.Error(t, err)
	require.Zero(t, expected.Cmp(ml.Remaining(address)))
}

func TestClaimRejectsBadProof(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())
	leaves := testLeaves(t, 4)
	tree, err := merkle.Build(leaves)
	require.NoError(t, err)
	address := initializeTestDistribution(t, ml, tree, 0)

	proof, err := tree.DeriveProof(leaves[0])
	require.NoError(t, err)

	// Proof for leaf 0 submitted with leaf 2's data
	_, err = ml.Claim(context.Background(), &ledger.ClaimParams{
		DistributorAddress: address,
		Proof:              proof,
		Data:               leaves[2],
	})
	require.Error(t, err)
	require.Zero(t, tree.Total().Cmp(ml.Remaining(address)))
}

func TestClaimRejectsLockedAllocation(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())

	tomorrow := time.Now().Add(48 * time.Hour).Unix()
	leaf, err := merkle.NewLeaf(types.Recipient{
		Address:    common.BigToAddress(big.NewInt(5)).Hex(),
		Amount:     big.NewInt(100),
		UnlockTime: tomorrow,
	}, 0)
	require.NoError(t, err)

	tree, err := merkle.Build([]types.Leaf{leaf})
	require.NoError(t, err)
	address := initializeTestDistribution(t, ml, tree, 0)

	proof, err := tree.DeriveProof(leaf)
	require.NoError(t, err)

	_, err = ml.Claim(context.Background(), &ledger.ClaimParams{
		DistributorAddress: address,
		Proof:              proof,
		Data:               leaf,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "locked")
}

func TestClaimUnknownDistributor(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())

	_, err := ml.Claim(context.Background(), &ledger.ClaimParams{
		DistributorAddress: common.BigToAddress(big.NewInt(404)),
	})
	require.Error(t, err)
}

func TestRevokeRules(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())
	ctx := context.Background()

	t.Run("No deadline never revocable", func(t *testing.T) {
		tree, err := merkle.Build(testLeaves(t, 2))
		require.NoError(t, err)
		address := initializeTestDistribution(t, ml, tree, 0)

		_, err = ml.Revoke(ctx, &ledger.RevokeParams{DistributorAddress: address})
		require.Error(t, err)
	})

	t.Run("Future deadline rejected", func(t *testing.T) {
		tree, err := merkle.Build(testLeaves(t, 2))
		require.NoError(t, err)
		address := initializeTestDistribution(t, ml, tree, time.Now().Add(time.Hour).Unix())

		_, err = ml.Revoke(ctx, &ledger.RevokeParams{DistributorAddress: address})
		require.Error(t, err)
	})

	t.Run("Elapsed deadline revokes once", func(t *testing.T) {
		tree, err := merkle.Build(testLeaves(t, 2))
		require.NoError(t, err)
		address := initializeTestDistribution(t, ml, tree, time.Now().Add(-time.Hour).Unix())

		result, err := ml.Revoke(ctx, &ledger.RevokeParams{DistributorAddress: address})
		require.NoError(t, err)
		require.NotEmpty(t, result.TxID)
		require.Zero(t, ml.Remaining(address).Sign())

		// Already revoked
		_, err = ml.Revoke(ctx, &ledger.RevokeParams{DistributorAddress: address})
		require.Error(t, err)

		// Claims against a revoked distributor fail
		leaves := tree.Leaves()
		proof, err := tree.DeriveProof(leaves[0])
		require.NoError(t, err)
		_, err = ml.Claim(ctx, &ledger.ClaimParams{
			DistributorAddress: address,
			Proof:              proof,
			Data:               leaves[0],
		})
		require.Error(t, err)
	})
}

func TestDistinctAddressesPerDistribution(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())
	tree, err := merkle.Build(testLeaves(t, 2))
	require.NoError(t, err)

	first := initializeTestDistribution(t, ml, tree, 0)
	second := initializeTestDistribution(t, ml, tree, 0)
	require.NotEqual(t, first, second)
}
