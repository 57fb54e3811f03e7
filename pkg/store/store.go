// Package store defines the content-addressed blob store consumed by the
// distribution orchestrator. One serialized tree blob is stored per
// distribution; the blob's content id is derived from its sha256 digest, so
// storing identical bytes twice yields the same id and fetched bytes are
// tamper-evident against the id alone.
package store

import (
	"context"
	"crypto/sha256"

	"github.com/pkg/errors"

	"github.com/openbloc/merkledrop-go/pkg/cid"
)

// ErrNotFound is returned by Get for a content id with no stored blob.
var ErrNotFound = errors.New("content not found")

// IContentStore is the interface every content store backend implements.
// All implementations must be safe for concurrent use; backends may sit in
// front of distributed, high-latency storage, so every operation takes a
// context for cancellation and timeouts.
type IContentStore interface {
	// Put stores a blob and returns its content id. Idempotent: storing
	// identical bytes twice yields the same id and keeps one copy.
	Put(ctx context.Context, blob []byte) (string, error)

	// Get fetches the blob for a content id. Returns ErrNotFound if no
	// blob is stored under the id; fetched bytes are re-hashed against
	// the id before being returned.
	Get(ctx context.Context, id string) ([]byte, error)

	// Has reports whether a blob is stored under the id.
	Has(ctx context.Context, id string) (bool, error)

	// Close cleanly shuts down the backend. Idempotent.
	Close() error

	// HealthCheck verifies the backend is operational.
	HealthCheck(ctx context.Context) error
}

// Address derives the content id for a blob.
func Address(blob []byte) (string, error) {
	return cid.FromDigest(sha256.Sum256(blob))
}

// VerifyBlob checks fetched bytes against the content id they were fetched
// by. Shared by backends so a corrupted or substituted blob never reaches a
// caller.
func VerifyBlob(id string, blob []byte) error {
	derived, err := Address(blob)
	if err != nil {
		return err
	}
	if derived != id {
		return errors.Errorf("content %s failed verification: fetched bytes hash to %s", id, derived)
	}
	return nil
}
