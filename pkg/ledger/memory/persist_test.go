package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openbloc/merkledrop-go/pkg/ledger"
	"github.com/openbloc/merkledrop-go/pkg/merkle"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())
	leaves := testLeaves(t, 4)
	tree, err := merkle.Build(leaves)
	require.NoError(t, err)
	ctx := context.Background()

	first := initializeTestDistribution(t, ml, tree, time.Now().Add(-time.Hour).Unix())
	second := initializeTestDistribution(t, ml, tree, 0)

	proof, err := tree.DeriveProof(leaves[0])
	require.NoError(t, err)
	_, err = ml.Claim(ctx, &ledger.ClaimParams{
		DistributorAddress: first,
		Proof:              proof,
		Data:               leaves[0],
	})
	require.NoError(t, err)

	data, err := ml.Snapshot()
	require.NoError(t, err)

	restored := NewMemoryLedger(zap.NewNop())
	require.NoError(t, restored.Restore(data))

	// Records come back in creation order with their balances intact
	dists, err := restored.ListAllDistributors(ctx)
	require.NoError(t, err)
	require.Len(t, dists, 2)
	require.Equal(t, first, dists[0].DistributorAddress)
	require.Equal(t, second, dists[1].DistributorAddress)
	require.Equal(t, tree.Root(), dists[0].MerkleRoot)

	expected := new(big.Int).Sub(tree.Total(), leaves[0].Amount)
	require.Zero(t, expected.Cmp(restored.Remaining(first)))
	require.Zero(t, tree.Total().Cmp(restored.Remaining(second)))

	// The claimed set survives: the paid leaf stays paid
	_, err = restored.Claim(ctx, &ledger.ClaimParams{
		DistributorAddress: first,
		Proof:              proof,
		Data:               leaves[0],
	})
	require.Error(t, err)

	// An unpaid leaf is still claimable
	proof1, err := tree.DeriveProof(leaves[1])
	require.NoError(t, err)
	_, err = restored.Claim(ctx, &ledger.ClaimParams{
		DistributorAddress: first,
		Proof:              proof1,
		Data:               leaves[1],
	})
	require.NoError(t, err)

	// Address assignment resumes past the snapshot, no collisions
	third := initializeTestDistribution(t, restored, tree, 0)
	require.NotEqual(t, first, third)
	require.NotEqual(t, second, third)
}

func TestRestoreRejectsMalformedSnapshot(t *testing.T) {
	ml := NewMemoryLedger(zap.NewNop())

	require.Error(t, ml.Restore([]byte("not json")))
	require.Error(t, ml.Restore([]byte(`{"distributions":[{"claimed":[]}]}`)))
}
