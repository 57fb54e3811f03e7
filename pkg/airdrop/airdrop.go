// Package airdrop is the distribution orchestrator: it turns a recipient
// list into a committed merkle distribution, finds a wallet's pending
// allocations, and drives claims and revocations through the ledger
// collaborator.
package airdrop

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openbloc/merkledrop-go/pkg/cid"
	"github.com/openbloc/merkledrop-go/pkg/ledger"
	"github.com/openbloc/merkledrop-go/pkg/merkle"
	"github.com/openbloc/merkledrop-go/pkg/store"
	"github.com/openbloc/merkledrop-go/pkg/types"
)

// Clock supplies current unix time; injected so revocation-deadline tests
// do not sleep.
type Clock func() int64

// ClientConfig holds the collaborators for an orchestrator client.
type ClientConfig struct {
	Ledger ledger.ILedger
	Store  store.IContentStore
	Logger *zap.Logger

	// Now overrides the revocation clock; defaults to time.Now
	Now Clock
}

// Client exposes the public airdrop operations. It holds no mutable
// distribution state of its own: every operation re-fetches authoritative
// data and may run concurrently with any other.
type Client struct {
	ledger ledger.ILedger
	store  store.IContentStore
	logger *zap.Logger
	now    Clock
	index  *addressIndex
}

// NewClient creates an orchestrator client with dependency injection.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if config.Store == nil {
		return nil, errors.New("content store is required")
	}
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}

	now := config.Now
	if now == nil {
		now = unixNow
	}

	return &Client{
		ledger: config.Ledger,
		store:  config.Store,
		logger: config.Logger,
		now:    now,
		index:  newAddressIndex(),
	}, nil
}

// InitializeAirdropParams describes a new distribution.
type InitializeAirdropParams struct {
	// Recipients is the ordered allocation list. Order is committed:
	// the same set in a different order produces a different root.
	Recipients []types.Recipient

	// TokenAddress is the token to distribute
	TokenAddress string

	// Authority is the creator wallet, allowed to revoke after EndedAt
	Authority string

	// EndedAt is the revocation deadline in unix seconds, 0 for none
	EndedAt int64

	FeeOptions *types.FeeOptions
}

// InitializeAirdrop encodes the recipients into leaves, builds the tree,
// stores the serialized tree in the content store, and hands the root,
// total and blob digest to the ledger.
func (c *Client) InitializeAirdrop(ctx context.Context, params *InitializeAirdropParams) (*ledger.InitializeResult, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}
	opID := uuid.NewString()

	tokenAddress, err := parseAddress(params.TokenAddress)
	if err != nil {
		return nil, err
	}
	authority, err := parseAddress(params.Authority)
	if err != nil {
		return nil, err
	}

	leaves := make([]types.Leaf, len(params.Recipients))
	for i, recipient := range params.Recipients {
		leaf, err := merkle.NewLeaf(recipient, i)
		if err != nil {
			return nil, err
		}
		leaves[i] = leaf
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		return nil, err
	}

	blob := tree.Serialize()
	id, err := c.store.Put(ctx, blob)
	if err != nil {
		return nil, errors.Wrap(err, "failed to store tree blob")
	}

	// Only the raw digest goes on the ledger
	digest, err := cid.ToDigest(id)
	if err != nil {
		return nil, err
	}

	root := tree.Root()
	result, err := c.ledger.InitializeDistributor(ctx, &ledger.InitializeParams{
		TokenAddress: tokenAddress,
		Authority:    authority,
		Total:        tree.Total(),
		MerkleRoot:   root,
		Metadata:     digest,
		EndedAt:      params.EndedAt,
		FeeOptions:   params.FeeOptions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "ledger initialize failed")
	}

	dists, err := c.ledger.ListAllDistributors(ctx)
	if err == nil {
		for _, dist := range dists {
			if dist.DistributorAddress == result.DistributorAddress {
				c.index.AddDistribution(dist, tree.Leaves())
				break
			}
		}
	}

	c.logger.Sugar().Infow("Initialized airdrop",
		"op_id", opID,
		"distributor_address", result.DistributorAddress.Hex(),
		"merkle_root", common.Hash(root).Hex(),
		"content_id", id,
		"recipients", len(leaves),
		"total", tree.Total().String(),
	)

	return result, nil
}

// GetRedeemListByAddress returns every pending allocation for a wallet
// across all known distributions, each annotated with its source
// distribution.
func (c *Client) GetRedeemListByAddress(ctx context.Context, walletAddress string) ([]*types.AirdropReceived, error) {
	wallet, err := parseAddress(walletAddress)
	if err != nil {
		return nil, err
	}

	dists, err := c.ledger.ListAllDistributors(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list distributors")
	}

	live := make(map[common.Address]bool, len(dists))
	for _, dist := range dists {
		live[dist.DistributorAddress] = true

		if c.index.Seen(dist.DistributorAddress) {
			continue
		}
		tree, err := c.fetchTree(ctx, dist)
		if err != nil {
			return nil, err
		}
		c.index.AddDistribution(dist, tree.Leaves())
	}

	return c.index.Lookup(wallet, live), nil
}

// GetSentAirdropByAddress returns every distribution created by a wallet.
func (c *Client) GetSentAirdropByAddress(ctx context.Context, walletAddress string) ([]*types.Distribution, error) {
	wallet, err := parseAddress(walletAddress)
	if err != nil {
		return nil, err
	}

	dists, err := c.ledger.ListAllDistributors(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list distributors")
	}

	sent := make([]*types.Distribution, 0)
	for _, dist := range dists {
		if dist.Authority != wallet {
			continue
		}
		sent = append(sent, dist)
	}
	return sent, nil
}

// ClaimParams identifies one claim: which distribution, and for which
// wallet.
type ClaimParams struct {
	DistributorAddress string
	WalletAddress      string
	FeeOptions         *types.FeeOptions
}

// Claim reconstructs the caller's leaf for the given distribution, derives
// its proof, verifies the proof locally against the committed root, and
// only then submits to the ledger. The local check fails fast with
// ErrInvalidProof instead of spending a transaction on a doomed claim.
func (c *Client) Claim(ctx context.Context, params *ClaimParams) (*ledger.ClaimResult, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}
	opID := uuid.NewString()

	wallet, err := parseAddress(params.WalletAddress)
	if err != nil {
		return nil, err
	}
	distributor, err := parseAddress(params.DistributorAddress)
	if err != nil {
		return nil, err
	}

	dist, err := c.findDistributor(ctx, distributor)
	if err != nil {
		return nil, err
	}

	// Rebuild the tree from the exact bytes that produced the committed
	// root, never from a cache
	tree, err := c.fetchTree(ctx, dist)
	if err != nil {
		return nil, err
	}

	var leaf types.Leaf
	found := false
	for _, candidate := range tree.Leaves() {
		if candidate.Authority == wallet {
			leaf = candidate
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Wrapf(types.ErrNotEligible, "wallet %s in distributor %s", wallet.Hex(), distributor.Hex())
	}

	proof, err := tree.DeriveProof(leaf)
	if err != nil {
		return nil, err
	}
	if !merkle.VerifyProof(proof, leaf, dist.MerkleRoot) {
		return nil, errors.Wrapf(types.ErrInvalidProof, "distributor %s", distributor.Hex())
	}

	result, err := c.ledger.Claim(ctx, &ledger.ClaimParams{
		DistributorAddress: distributor,
		Proof:              proof,
		Data:               leaf,
		FeeOptions:         params.FeeOptions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "ledger claim failed")
	}

	c.logger.Sugar().Infow("Claimed airdrop",
		"op_id", opID,
		"distributor_address", distributor.Hex(),
		"destination", wallet.Hex(),
		"amount", leaf.Amount.String(),
		"tx_id", result.TxID,
	)

	return result, nil
}

// RevokeParams identifies the distribution to revoke.
type RevokeParams struct {
	DistributorAddress string
	FeeOptions         *types.FeeOptions
}

// Revoke withdraws the unclaimed balance of a distribution. Allowed only
// once the distribution's non-zero deadline has elapsed; a distribution
// with EndedAt == 0 can never be revoked.
func (c *Client) Revoke(ctx context.Context, params *RevokeParams) (*ledger.RevokeResult, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}

	distributor, err := parseAddress(params.DistributorAddress)
	if err != nil {
		return nil, err
	}

	dist, err := c.findDistributor(ctx, distributor)
	if err != nil {
		return nil, err
	}

	if dist.EndedAt == 0 || dist.EndedAt > c.now() {
		return nil, errors.Wrapf(types.ErrRevocationNotAllowed, "distributor %s ends at %d", distributor.Hex(), dist.EndedAt)
	}

	result, err := c.ledger.Revoke(ctx, &ledger.RevokeParams{
		DistributorAddress: distributor,
		FeeOptions:         params.FeeOptions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "ledger revoke failed")
	}

	c.logger.Sugar().Infow("Revoked airdrop",
		"distributor_address", distributor.Hex(),
		"tx_id", result.TxID,
	)

	return result, nil
}

// findDistributor locates one distribution in the ledger's current list.
func (c *Client) findDistributor(ctx context.Context, distributor common.Address) (*types.Distribution, error) {
	dists, err := c.ledger.ListAllDistributors(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list distributors")
	}
	for _, dist := range dists {
		if dist.DistributorAddress == distributor {
			return dist, nil
		}
	}
	return nil, errors.Wrap(types.ErrDistributorNotFound, distributor.Hex())
}

// fetchTree re-prefixes the on-ledger digest into a content id, fetches the
// blob, and rehydrates the tree.
func (c *Client) fetchTree(ctx context.Context, dist *types.Distribution) (*merkle.Tree, error) {
	id, err := cid.FromDigest(dist.Metadata)
	if err != nil {
		return nil, err
	}

	blob, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch tree for distributor %s", dist.DistributorAddress.Hex())
	}

	tree, err := merkle.Deserialize(blob)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func unixNow() int64 {
	return time.Now().Unix()
}

// parseAddress validates and parses a hex wallet address at the boundary.
func parseAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, errors.Wrapf(types.ErrInvalidAddress, "%q", address)
	}
	return common.HexToAddress(address), nil
}
