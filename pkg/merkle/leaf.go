package merkle

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/openbloc/merkledrop-go/pkg/types"
)

// leafEncodedSize is the packed size of one leaf:
// authority (20) || amount (32, big-endian) || startedAt (8) || salt (32)
const leafEncodedSize = 20 + 32 + 8 + 32

// Salt derives the anti-collision salt for the leaf at the given zero-based
// index: keccak256 of the decimal index string. It is a pure function of the
// index, so a tree can be reconstructed byte-for-byte from the recipient
// list alone.
func Salt(index int) [32]byte {
	return [32]byte(crypto.Keccak256Hash([]byte(strconv.Itoa(index))))
}

// NormalizeUnlock truncates an unlock timestamp to the UTC calendar date it
// falls on. Sub-day precision is discarded so claim windows stay stable
// across time-zone-naive callers; this truncation is part of the committed
// leaf encoding, not a convenience.
func NormalizeUnlock(unlockTime int64) uint64 {
	if unlockTime <= 0 {
		return 0
	}
	t := time.Unix(unlockTime, 0).UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return uint64(midnight.Unix())
}

// NewLeaf encodes one recipient into the leaf committed at the given index.
// Returns types.ErrInvalidAddress if the recipient's address fails format
// validation.
func NewLeaf(recipient types.Recipient, index int) (types.Leaf, error) {
	if !common.IsHexAddress(recipient.Address) {
		return types.Leaf{}, errors.Wrapf(types.ErrInvalidAddress, "recipient %q at index %d", recipient.Address, index)
	}
	if recipient.Amount == nil || recipient.Amount.Sign() < 0 {
		return types.Leaf{}, errors.Errorf("recipient %s at index %d has invalid amount", recipient.Address, index)
	}
	if recipient.Amount.BitLen() > 256 {
		return types.Leaf{}, errors.Errorf("recipient %s at index %d amount exceeds 256 bits", recipient.Address, index)
	}

	return types.Leaf{
		Authority: common.HexToAddress(recipient.Address),
		Amount:    recipient.Amount,
		StartedAt: NormalizeUnlock(recipient.UnlockTime),
		Salt:      Salt(index),
	}, nil
}

// EncodeLeaf packs a leaf into its fixed byte layout. The layout is shared
// by tree construction and the on-ledger verifier; any divergence breaks
// every proof.
func EncodeLeaf(leaf types.Leaf) []byte {
	buf := make([]byte, 0, leafEncodedSize)
	buf = append(buf, leaf.Authority.Bytes()...)

	var amount [32]byte
	if leaf.Amount != nil {
		leaf.Amount.FillBytes(amount[:])
	}
	buf = append(buf, amount[:]...)

	var startedAt [8]byte
	binary.BigEndian.PutUint64(startedAt[:], leaf.StartedAt)
	buf = append(buf, startedAt[:]...)
	buf = append(buf, leaf.Salt[:]...)
	return buf
}

// HashLeaf computes the keccak256 hash of the packed leaf encoding.
func HashLeaf(leaf types.Leaf) [32]byte {
	return [32]byte(crypto.Keccak256Hash(EncodeLeaf(leaf)))
}
