package types

import "github.com/pkg/errors"

// Error kinds surfaced by the public operations. Callers match them with
// errors.Is; collaborator failures (store I/O, ledger rejection) are wrapped
// with their origin preserved and are never remapped onto these kinds.
var (
	// ErrInvalidAddress indicates a malformed recipient or query address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrMalformedAddress indicates a content id that cannot be decoded
	// (wrong prefix, truncated digest).
	ErrMalformedAddress = errors.New("malformed content address")

	// ErrCorruptTree indicates a serialized tree blob that fails its
	// length or checksum validation.
	ErrCorruptTree = errors.New("corrupt tree data")

	// ErrEmptyTree indicates an attempt to build a tree with no leaves.
	ErrEmptyTree = errors.New("empty tree")

	// ErrLeafNotFound indicates the exact leaf is absent from the tree.
	ErrLeafNotFound = errors.New("leaf not found")

	// ErrNotEligible indicates the queried wallet has no allocation in
	// the given distribution. A normal no-result outcome, surfaced
	// distinctly from system failures.
	ErrNotEligible = errors.New("wallet is not in the recipient list")

	// ErrInvalidProof indicates local proof verification failed against
	// the distribution's committed root.
	ErrInvalidProof = errors.New("invalid merkle proof")

	// ErrDistributorNotFound indicates the referenced distribution does
	// not exist in the ledger's current list.
	ErrDistributorNotFound = errors.New("distributor not found")

	// ErrRevocationNotAllowed indicates a revoke before the deadline, or
	// on a distribution with no deadline.
	ErrRevocationNotAllowed = errors.New("revocation not allowed")
)
