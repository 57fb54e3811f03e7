// Package ledger defines the ledger collaborator the orchestrator delegates
// to. The ledger owns the distribution records and the tokens; it is the
// sole enforcer of exactly-one-payout-per-leaf. This module only consumes
// the interface; the memory implementation exists for tests and demos.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openbloc/merkledrop-go/pkg/merkle"
	"github.com/openbloc/merkledrop-go/pkg/types"
)

// InitializeParams carries everything the ledger needs to create a
// distribution record.
type InitializeParams struct {
	TokenAddress common.Address
	Authority    common.Address
	Total        *big.Int
	MerkleRoot   [32]byte

	// Metadata is the raw sha256 digest of the serialized tree blob
	Metadata [32]byte

	// EndedAt is the revocation deadline in unix seconds, 0 for none
	EndedAt int64

	FeeOptions *types.FeeOptions
}

// InitializeResult is the transaction handle for a created distribution.
type InitializeResult struct {
	Tx                 []byte
	TxID               string
	DistributorAddress common.Address
}

// ClaimParams carries one claim submission: the claimant's leaf and the
// proof tying it to the committed root.
type ClaimParams struct {
	DistributorAddress common.Address
	Proof              merkle.Proof
	Data               types.Leaf
	FeeOptions         *types.FeeOptions
}

// ClaimResult is the transaction handle for a paid claim.
type ClaimResult struct {
	Tx         []byte
	TxID       string
	DstAddress common.Address
}

// RevokeParams carries a revocation request.
type RevokeParams struct {
	DistributorAddress common.Address
	FeeOptions         *types.FeeOptions
}

// RevokeResult is the transaction handle for a revocation.
type RevokeResult struct {
	Tx         []byte
	TxID       string
	DstAddress common.Address
}

// ILedger is the ledger collaborator interface.
type ILedger interface {
	// InitializeDistributor creates the on-ledger distribution record and
	// escrows the authorized total.
	InitializeDistributor(ctx context.Context, params *InitializeParams) (*InitializeResult, error)

	// Claim pays out one leaf. The ledger re-verifies the proof against
	// the committed root and atomically enforces one payout per leaf.
	Claim(ctx context.Context, params *ClaimParams) (*ClaimResult, error)

	// Revoke returns the unclaimed balance to the distribution authority.
	Revoke(ctx context.Context, params *RevokeParams) (*RevokeResult, error)

	// ListAllDistributors returns every known distribution record.
	ListAllDistributors(ctx context.Context) ([]*types.Distribution, error)
}
