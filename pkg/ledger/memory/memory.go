package memory

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openbloc/merkledrop-go/pkg/ledger"
	"github.com/openbloc/merkledrop-go/pkg/merkle"
	"github.com/openbloc/merkledrop-go/pkg/types"
)

// defaultSubmissionsPerSecond models the transaction budget a real ledger
// client enforces per sender.
const defaultSubmissionsPerSecond = 20

// MemoryLedger is an in-process ILedger for tests and single-process demos.
// It behaves like the on-chain distributor program: it re-verifies every
// submitted proof by recomputing the root from the submitted leaf encoding,
// pays each leaf at most once, honors unlock times, and only releases funds
// to the authority after the revocation deadline.
type MemoryLedger struct {
	mu      sync.Mutex
	logger  *zap.Logger
	limiter *rate.Limiter
	nonce   uint64

	// ordered by creation so ListAllDistributors is stable
	order         []common.Address
	distributions map[common.Address]*distributorState
}

var _ ledger.ILedger = (*MemoryLedger)(nil)

type distributorState struct {
	record *types.Distribution

	// claimed leaf hashes; the one-payout-per-leaf invariant lives here
	claimed map[[32]byte]bool

	remaining *big.Int
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger(logger *zap.Logger) *MemoryLedger {
	return &MemoryLedger{
		logger:        logger,
		limiter:       rate.NewLimiter(rate.Limit(defaultSubmissionsPerSecond), defaultSubmissionsPerSecond),
		distributions: make(map[common.Address]*distributorState),
	}
}

// InitializeDistributor creates a distribution record under a deterministic
// ledger-assigned address.
func (m *MemoryLedger) InitializeDistributor(ctx context.Context, params *ledger.InitializeParams) (*ledger.InitializeResult, error) {
	if params == nil {
		return nil, errors.New("initialize params cannot be nil")
	}
	if params.Total == nil || params.Total.Sign() <= 0 {
		return nil, errors.New("distribution total must be positive")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	address := m.assignAddress(params.MerkleRoot)
	record := &types.Distribution{
		DistributorAddress: address,
		Mint:               params.TokenAddress,
		Authority:          params.Authority,
		Total:              new(big.Int).Set(params.Total),
		MerkleRoot:         params.MerkleRoot,
		Metadata:           params.Metadata,
		EndedAt:            params.EndedAt,
	}

	m.order = append(m.order, address)
	m.distributions[address] = &distributorState{
		record:    record,
		claimed:   make(map[[32]byte]bool),
		remaining: new(big.Int).Set(params.Total),
	}

	m.logger.Sugar().Infow("Initialized distributor",
		"distributor_address", address.Hex(),
		"total", params.Total.String(),
		"ended_at", params.EndedAt,
	)

	return &ledger.InitializeResult{
		Tx:                 address.Bytes(),
		TxID:               uuid.NewString(),
		DistributorAddress: address,
	}, nil
}

// Claim pays out one leaf after re-verifying its proof against the
// committed root. A leaf is paid at most once.
func (m *MemoryLedger) Claim(ctx context.Context, params *ledger.ClaimParams) (*ledger.ClaimResult, error) {
	if params == nil {
		return nil, errors.New("claim params cannot be nil")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.distributions[params.DistributorAddress]
	if !exists {
		return nil, errors.Errorf("distributor %s does not exist", params.DistributorAddress.Hex())
	}
	if state.record.Revoked {
		return nil, errors.Errorf("distributor %s is revoked", params.DistributorAddress.Hex())
	}

	// The program-side verification: recompute the root from the
	// submitted leaf encoding and fold in the proof
	if !merkle.VerifyProof(params.Proof, params.Data, state.record.MerkleRoot) {
		return nil, errors.New("merkle proof rejected")
	}

	if params.Data.StartedAt > uint64(time.Now().Unix()) {
		return nil, errors.Errorf("allocation is locked until %d", params.Data.StartedAt)
	}

	leafHash := merkle.HashLeaf(params.Data)
	if state.claimed[leafHash] {
		return nil, errors.New("allocation already claimed")
	}

	amount := params.Data.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	if state.remaining.Cmp(amount) < 0 {
		return nil, errors.New("insufficient distributor balance")
	}

	state.claimed[leafHash] = true
	state.remaining.Sub(state.remaining, amount)

	m.logger.Sugar().Infow("Paid claim",
		"distributor_address", params.DistributorAddress.Hex(),
		"destination", params.Data.Authority.Hex(),
		"amount", amount.String(),
	)

	return &ledger.ClaimResult{
		Tx:         leafHash[:],
		TxID:       uuid.NewString(),
		DstAddress: params.Data.Authority,
	}, nil
}

// Revoke returns the unclaimed balance to the authority. Only allowed after
// a non-zero deadline has elapsed, matching the distributor program rule.
func (m *MemoryLedger) Revoke(ctx context.Context, params *ledger.RevokeParams) (*ledger.RevokeResult, error) {
	if params == nil {
		return nil, errors.New("revoke params cannot be nil")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.distributions[params.DistributorAddress]
	if !exists {
		return nil, errors.Errorf("distributor %s does not exist", params.DistributorAddress.Hex())
	}
	if state.record.Revoked {
		return nil, errors.Errorf("distributor %s is already revoked", params.DistributorAddress.Hex())
	}
	if state.record.EndedAt == 0 || state.record.EndedAt > time.Now().Unix() {
		return nil, errors.Errorf("distributor %s deadline has not elapsed", params.DistributorAddress.Hex())
	}

	state.record.Revoked = true
	reclaimed := new(big.Int).Set(state.remaining)
	state.remaining.SetInt64(0)

	m.logger.Sugar().Infow("Revoked distributor",
		"distributor_address", params.DistributorAddress.Hex(),
		"reclaimed", reclaimed.String(),
	)

	return &ledger.RevokeResult{
		Tx:         params.DistributorAddress.Bytes(),
		TxID:       uuid.NewString(),
		DstAddress: state.record.Authority,
	}, nil
}

// ListAllDistributors returns copies of every distribution record in
// creation order.
func (m *MemoryLedger) ListAllDistributors(_ context.Context) ([]*types.Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Distribution, 0, len(m.order))
	for _, address := range m.order {
		record := *m.distributions[address].record
		record.Total = new(big.Int).Set(record.Total)
		out = append(out, &record)
	}
	return out, nil
}

// Remaining exposes the unclaimed balance of a distributor, for tests.
func (m *MemoryLedger) Remaining(address common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.distributions[address]
	if !exists {
		return nil
	}
	return new(big.Int).Set(state.remaining)
}

// assignAddress derives a deterministic distributor address from the root
// and a creation nonce. Caller holds the lock.
func (m *MemoryLedger) assignAddress(root [32]byte) common.Address {
	m.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], m.nonce)
	hash := crypto.Keccak256(root[:], nonce[:])
	return common.BytesToAddress(hash[12:])
}
