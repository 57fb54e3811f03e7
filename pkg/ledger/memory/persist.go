package memory

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/openbloc/merkledrop-go/pkg/types"
)

// ledgerSnapshot is the JSON form of the full ledger state. The claimed set
// is carried as hex leaf hashes so the one-payout-per-leaf invariant
// survives a save/load cycle.
type ledgerSnapshot struct {
	Nonce         uint64                 `json:"nonce"`
	Distributions []distributionSnapshot `json:"distributions"`
}

type distributionSnapshot struct {
	Record    *types.Distribution `json:"record"`
	Claimed   []string            `json:"claimed"`
	Remaining *big.Int            `json:"remaining"`
}

// Snapshot serializes the full ledger state, in creation order, so a CLI
// process can carry the ledger across invocations.
func (m *MemoryLedger) Snapshot() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := ledgerSnapshot{
		Nonce:         m.nonce,
		Distributions: make([]distributionSnapshot, 0, len(m.order)),
	}
	for _, address := range m.order {
		state := m.distributions[address]

		claimed := make([]string, 0, len(state.claimed))
		for leafHash := range state.claimed {
			claimed = append(claimed, common.Hash(leafHash).Hex())
		}

		record := *state.record
		record.Total = new(big.Int).Set(record.Total)
		snap.Distributions = append(snap.Distributions, distributionSnapshot{
			Record:    &record,
			Claimed:   claimed,
			Remaining: new(big.Int).Set(state.remaining),
		})
	}

	return json.MarshalIndent(snap, "", "  ")
}

// Restore replaces the ledger state with a previously taken snapshot.
func (m *MemoryLedger) Restore(data []byte) error {
	var snap ledgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Wrap(err, "failed to decode ledger snapshot")
	}

	order := make([]common.Address, 0, len(snap.Distributions))
	distributions := make(map[common.Address]*distributorState, len(snap.Distributions))
	for _, entry := range snap.Distributions {
		if entry.Record == nil {
			return errors.New("ledger snapshot entry has no record")
		}
		if entry.Record.Total == nil {
			return errors.Errorf("distributor %s snapshot has no total", entry.Record.DistributorAddress.Hex())
		}

		claimed := make(map[[32]byte]bool, len(entry.Claimed))
		for _, hash := range entry.Claimed {
			claimed[common.HexToHash(hash)] = true
		}

		remaining := entry.Remaining
		if remaining == nil {
			remaining = new(big.Int)
		}

		address := entry.Record.DistributorAddress
		order = append(order, address)
		distributions[address] = &distributorState{
			record:    entry.Record,
			claimed:   claimed,
			remaining: new(big.Int).Set(remaining),
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nonce = snap.Nonce
	m.order = order
	m.distributions = distributions
	return nil
}
