package airdrop

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openbloc/merkledrop-go/pkg/types"
)

// addressIndex is an incremental wallet → allocation index. Without it,
// every redeem-list query rehydrates every known tree; with it, a tree is
// rehydrated once per process and its allocations are served from memory
// afterwards. The index is advisory: entries are immutable because trees
// are, and a distributor the index has not seen yet is simply scanned on
// the next query.
type addressIndex struct {
	mu sync.RWMutex

	// seen marks distributors whose full leaf list has been indexed
	seen map[common.Address]bool

	// entries maps a destination wallet to its allocations across all
	// indexed distributors
	entries map[common.Address][]*types.AirdropReceived
}

func newAddressIndex() *addressIndex {
	return &addressIndex{
		seen:    make(map[common.Address]bool),
		entries: make(map[common.Address][]*types.AirdropReceived),
	}
}

// Seen reports whether a distributor's leaves are already indexed.
func (idx *addressIndex) Seen(distributor common.Address) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.seen[distributor]
}

// AddDistribution indexes every leaf of one distribution. Idempotent per
// distributor address.
func (idx *addressIndex) AddDistribution(dist *types.Distribution, leaves []types.Leaf) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.seen[dist.DistributorAddress] {
		return
	}
	idx.seen[dist.DistributorAddress] = true

	for _, leaf := range leaves {
		entry := &types.AirdropReceived{
			Source:             dist.Authority,
			Mint:               dist.Mint,
			DistributorAddress: dist.DistributorAddress,
			Destination:        leaf.Authority,
			Amount:             new(big.Int).Set(leaf.Amount),
			UnlockTime:         leaf.StartedAt,
			Salt:               leaf.Salt,
		}
		idx.entries[leaf.Authority] = append(idx.entries[leaf.Authority], entry)
	}
}

// Lookup returns the indexed allocations for a wallet, restricted to
// distributors in the live set (dropping entries for distributions the
// ledger no longer lists).
func (idx *addressIndex) Lookup(wallet common.Address, live map[common.Address]bool) []*types.AirdropReceived {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]*types.AirdropReceived, 0)
	for _, entry := range idx.entries[wallet] {
		if !live[entry.DistributorAddress] {
			continue
		}
		copied := *entry
		copied.Amount = new(big.Int).Set(entry.Amount)
		out = append(out, &copied)
	}
	return out
}
