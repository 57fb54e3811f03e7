package merkle

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/openbloc/merkledrop-go/pkg/types"
)

// Serialized layout, all big-endian:
//
//	uint32 leaf count
//	count * 92-byte packed leaf records (see EncodeLeaf)
//	32-byte keccak256 checksum of everything above
//
// The blob is itself committed content (its digest is stored on the ledger),
// so the layout is byte-stable and carries no self-describing framing.
const (
	countSize    = 4
	checksumSize = 32
)

// Serialize encodes the tree's ordered leaf list. The tree structure is not
// stored: Deserialize rebuilds it, guaranteeing the rehydrated tree derives
// from exactly the bytes that produced the committed root.
func (t *Tree) Serialize() []byte {
	buf := make([]byte, 0, countSize+len(t.leaves)*leafEncodedSize+checksumSize)

	var count [countSize]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(t.leaves)))
	buf = append(buf, count[:]...)

	for _, leaf := range t.leaves {
		buf = append(buf, EncodeLeaf(leaf)...)
	}

	checksum := crypto.Keccak256(buf)
	return append(buf, checksum...)
}

// Deserialize rebuilds a tree from a serialized blob. Returns
// types.ErrCorruptTree on any length or checksum mismatch. A well-formed
// blob carrying zero leaves is not corrupt; it fails the rebuild with
// types.ErrEmptyTree, the same error Serialize's caller saw at build time.
func Deserialize(data []byte) (*Tree, error) {
	if len(data) < countSize+checksumSize {
		return nil, errors.Wrapf(types.ErrCorruptTree, "blob too short: %d bytes", len(data))
	}

	body := data[:len(data)-checksumSize]
	checksum := data[len(data)-checksumSize:]
	if [32]byte(crypto.Keccak256Hash(body)) != [32]byte(checksum) {
		return nil, errors.Wrap(types.ErrCorruptTree, "checksum mismatch")
	}

	count := binary.BigEndian.Uint32(body[:countSize])
	records := body[countSize:]
	if len(records) != int(count)*leafEncodedSize {
		return nil, errors.Wrapf(types.ErrCorruptTree, "expected %d leaf records in %d bytes", count, len(records))
	}

	leaves := make([]types.Leaf, count)
	for i := range leaves {
		leaves[i] = decodeLeaf(records[i*leafEncodedSize : (i+1)*leafEncodedSize])
	}

	return Build(leaves)
}

// decodeLeaf unpacks one fixed-layout leaf record. The record length is
// validated by the caller.
func decodeLeaf(record []byte) types.Leaf {
	var leaf types.Leaf
	leaf.Authority = common.BytesToAddress(record[0:20])
	leaf.Amount = new(big.Int).SetBytes(record[20:52])
	leaf.StartedAt = binary.BigEndian.Uint64(record[52:60])
	copy(leaf.Salt[:], record[60:92])
	return leaf
}
