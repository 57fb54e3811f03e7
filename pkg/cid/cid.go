// Package cid converts between raw sha256 digests and the textual CIDv0
// content ids used by the content store. The on-ledger metadata field holds
// only the 32-byte digest; the full id is the 2-byte multihash prefix
// {0x12, 0x20} (sha2-256, 32-byte length) followed by the digest, base58
// encoded.
package cid

import (
	gocid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/pkg/errors"

	"github.com/openbloc/merkledrop-go/pkg/types"
)

// FromDigest re-prefixes a raw sha256 digest into its full textual content
// id.
func FromDigest(digest [32]byte) (string, error) {
	encoded, err := mh.Encode(digest[:], mh.SHA2_256)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode multihash")
	}
	return gocid.NewCidV0(encoded).String(), nil
}

// ToDigest decodes a textual content id back to the raw digest it wraps.
// Returns types.ErrMalformedAddress if the id does not parse or does not
// carry a 32-byte sha2-256 multihash.
func ToDigest(id string) ([32]byte, error) {
	var digest [32]byte

	parsed, err := gocid.Decode(id)
	if err != nil {
		return digest, errors.Wrapf(types.ErrMalformedAddress, "%q: %v", id, err)
	}

	decoded, err := mh.Decode(parsed.Hash())
	if err != nil {
		return digest, errors.Wrapf(types.ErrMalformedAddress, "%q: %v", id, err)
	}
	if decoded.Code != mh.SHA2_256 || decoded.Length != 32 {
		return digest, errors.Wrapf(types.ErrMalformedAddress, "%q: unexpected multihash code %d length %d", id, decoded.Code, decoded.Length)
	}

	copy(digest[:], decoded.Digest)
	return digest, nil
}
