package merkle

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openbloc/merkledrop-go/pkg/types"
)

// TestSaltStability tests that the salt depends on the index alone
func TestSaltStability(t *testing.T) {
	require.Equal(t, Salt(0), Salt(0))
	require.Equal(t, Salt(42), Salt(42))
	require.NotEqual(t, Salt(0), Salt(1))

	// The salt is keccak of the decimal index string, so index 1 and
	// index 10 must not collide through string prefixing
	require.NotEqual(t, Salt(1), Salt(10))
}

// TestNormalizeUnlock tests the UTC calendar-date truncation
func TestNormalizeUnlock(t *testing.T) {
	testCases := []struct {
		name     string
		input    int64
		expected uint64
	}{
		{"Zero stays zero", 0, 0},
		{"Negative clamps to zero", -5, 0},
		{
			"Midnight unchanged",
			time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC).Unix(),
			uint64(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC).Unix()),
		},
		{
			"Midday truncates to midnight",
			time.Date(2024, 3, 15, 13, 45, 12, 0, time.UTC).Unix(),
			uint64(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC).Unix()),
		},
		{
			"One second before next day stays on its day",
			time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC).Unix(),
			uint64(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC).Unix()),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, NormalizeUnlock(tc.input))
		})
	}
}

// TestEncodeLeafLayout tests the fixed byte layout the verifier depends on
func TestEncodeLeafLayout(t *testing.T) {
	leaf := types.Leaf{
		Authority: common.HexToAddress("0x00112233445566778899aabbccddeeff00112233"),
		Amount:    big.NewInt(0x0102),
		StartedAt: 0x0304,
		Salt:      Salt(5),
	}

	encoded := EncodeLeaf(leaf)
	require.Len(t, encoded, leafEncodedSize)

	require.Equal(t, leaf.Authority.Bytes(), encoded[0:20])

	// Amount is 32-byte big-endian
	require.Equal(t, byte(0x01), encoded[50])
	require.Equal(t, byte(0x02), encoded[51])
	for _, b := range encoded[20:50] {
		require.Equal(t, byte(0), b)
	}

	// StartedAt is 8-byte big-endian
	require.Equal(t, byte(0x03), encoded[58])
	require.Equal(t, byte(0x04), encoded[59])

	require.Equal(t, leaf.Salt[:], encoded[60:92])
}

// TestEncodeLeafNilAmount tests that a nil amount encodes as zero
func TestEncodeLeafNilAmount(t *testing.T) {
	leaf := types.Leaf{Authority: common.BigToAddress(big.NewInt(1))}
	encoded := EncodeLeaf(leaf)
	require.Len(t, encoded, leafEncodedSize)
	for _, b := range encoded[20:52] {
		require.Equal(t, byte(0), b)
	}
}

// TestNewLeafNormalizesUnlock tests that the codec applies the truncation
func TestNewLeafNormalizesUnlock(t *testing.T) {
	unlock := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)
	leaf, err := NewLeaf(types.Recipient{
		Address:    common.BigToAddress(big.NewInt(3)).Hex(),
		Amount:     big.NewInt(10),
		UnlockTime: unlock.Unix(),
	}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Unix()), leaf.StartedAt)
}

// TestNewLeafAmountBounds tests amount validation
func TestNewLeafAmountBounds(t *testing.T) {
	address := common.BigToAddress(big.NewInt(9)).Hex()

	_, err := NewLeaf(types.Recipient{Address: address, Amount: nil}, 0)
	require.Error(t, err)

	_, err = NewLeaf(types.Recipient{Address: address, Amount: big.NewInt(-1)}, 0)
	require.Error(t, err)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = NewLeaf(types.Recipient{Address: address, Amount: tooBig}, 0)
	require.Error(t, err)

	_, err = NewLeaf(types.Recipient{Address: address, Amount: big.NewInt(0)}, 0)
	require.NoError(t, err)
}
