package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Recipient is one entry of the allocation list supplied by the caller.
// The list is immutable once a distribution has been initialized.
type Recipient struct {
	// Address is the hex wallet address of the recipient
	Address string `json:"address"`

	// Amount is the token amount in base units (decimal string friendly via big.Int)
	Amount *big.Int `json:"amount"`

	// UnlockTime is the unix timestamp (seconds) before which the allocation
	// cannot be claimed. Zero means claimable immediately.
	UnlockTime int64 `json:"unlockTime"`
}

// Leaf is the committed form of one recipient allocation. Its byte encoding
// is fixed: any change to the layout breaks every proof against already
// committed roots.
type Leaf struct {
	// Authority is the wallet allowed to claim this allocation
	Authority common.Address `json:"authority"`

	// Amount is the claimable token amount in base units
	Amount *big.Int `json:"amount"`

	// StartedAt is the unlock time in unix seconds, normalized to the
	// UTC calendar date of the caller-supplied unlock time
	StartedAt uint64 `json:"startedAt"`

	// Salt is derived from the leaf's index within its distribution and
	// keeps identical (authority, amount, startedAt) triples from
	// colliding in proof derivation
	Salt [32]byte `json:"salt"`
}

// Equal reports whether two leaves agree on every field.
func (l Leaf) Equal(other Leaf) bool {
	if l.Authority != other.Authority {
		return false
	}
	if l.StartedAt != other.StartedAt {
		return false
	}
	if l.Salt != other.Salt {
		return false
	}
	if l.Amount == nil || other.Amount == nil {
		return l.Amount == other.Amount
	}
	return l.Amount.Cmp(other.Amount) == 0
}

// Distribution is the on-ledger record of one airdrop campaign. It is owned
// by the ledger collaborator; this package treats it as read-only input.
type Distribution struct {
	// DistributorAddress is the ledger-assigned handle for the campaign
	DistributorAddress common.Address `json:"distributorAddress"`

	// Mint is the token being distributed
	Mint common.Address `json:"mint"`

	// Authority is the campaign creator
	Authority common.Address `json:"authority"`

	// Total is the sum of all leaf amounts, the ledger's authorized payout cap
	Total *big.Int `json:"total"`

	// MerkleRoot commits to the full ordered leaf list
	MerkleRoot [32]byte `json:"merkleRoot"`

	// Metadata is the raw sha256 digest of the serialized tree blob.
	// Only the digest is stored on the ledger; the full content id is
	// reconstructed from it before fetching.
	Metadata [32]byte `json:"metadata"`

	// EndedAt is the revocation deadline in unix seconds; 0 means the
	// distribution can never be revoked
	EndedAt int64 `json:"endedAt"`

	// Revoked is set by the ledger once the creator has withdrawn the
	// remaining balance
	Revoked bool `json:"revoked"`
}

// AirdropReceived is one pending allocation found for a queried wallet,
// annotated with its source distribution.
type AirdropReceived struct {
	Source             common.Address `json:"source"`
	Mint               common.Address `json:"mint"`
	DistributorAddress common.Address `json:"distributorAddress"`
	Destination        common.Address `json:"destination"`
	Amount             *big.Int       `json:"amount"`
	UnlockTime         uint64         `json:"unlockTime"`
	Salt               [32]byte       `json:"salt"`
}

// FeeOptions optionally routes a platform fee alongside a ledger
// transaction. Interpreted by the ledger collaborator, opaque here.
type FeeOptions struct {
	Fee          *big.Int       `json:"fee"`
	FeeCollector common.Address `json:"feeCollector"`
}
