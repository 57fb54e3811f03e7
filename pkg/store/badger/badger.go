package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openbloc/merkledrop-go/pkg/cid"
	"github.com/openbloc/merkledrop-go/pkg/store"
)

// Key prefixes for namespacing
const (
	keyPrefixBlob        = "blob:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerStore is a durable, disk-based content store backed by Badger.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ store.IContentStore = (*BadgerStore)(nil)

// NewBadgerStore opens a Badger-backed content store at the given path with
// SyncWrites enabled for durability. A background goroutine runs value log
// garbage collection until Close.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve absolute path")
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newDBLog(logger)
	opts.SyncWrites = true // fsync on every write
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1 // Blobs are immutable, no versioning needed

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger database at %s", absPath)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger content store initialized", "path", absPath)

	return bs, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return errors.Wrap(err, "failed to read schema version")
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "failed to read schema version value")
		}

		if existingVersion != currentSchemaVersion {
			return errors.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic garbage collection in the background
func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Put stores a blob keyed by its derived content id.
func (b *BadgerStore) Put(ctx context.Context, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", errors.New("cannot store empty blob")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := store.Address(blob)
	if err != nil {
		return "", err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", errors.New("content store is closed")
	}

	key := []byte(keyPrefixBlob + id)
	err = b.db.Update(func(txn *badgerdb.Txn) error {
		// Idempotent: identical bytes hash to an existing key
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, blob)
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to store blob %s", id)
	}

	return id, nil
}

// Get fetches a blob by content id and re-verifies it against the id.
func (b *BadgerStore) Get(ctx context.Context, id string) ([]byte, error) {
	if _, err := cid.ToDigest(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, errors.New("content store is closed")
	}

	var blob []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyPrefixBlob + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			blob = append([]byte{}, val...) // Copy value
			return nil
		})
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, errors.Wrap(store.ErrNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch blob %s", id)
	}

	if err := store.VerifyBlob(id, blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// Has reports whether a blob exists for the content id.
func (b *BadgerStore) Has(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, errors.New("content store is closed")
	}

	exists := false
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keyPrefixBlob + id))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to check blob %s", id)
	}

	return exists, nil
}

// Close stops the GC goroutine and closes the database. Idempotent.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close badger database")
	}

	b.logger.Sugar().Info("Badger content store closed")
	return nil
}

// HealthCheck verifies the store is operational.
func (b *BadgerStore) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New("content store is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
