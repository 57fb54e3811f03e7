package redis

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openbloc/merkledrop-go/pkg/cid"
	"github.com/openbloc/merkledrop-go/pkg/store"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixBlob        = "merkledrop:blob:"
	keySchemaVersion     = "merkledrop:metadata:schema_version"
	currentSchemaVersion = "v1"
)

// RedisStore is a content store backed by Redis, suitable for deployments
// where several processes share one blob store.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ store.IContentStore = (*RedisStore)(nil)

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix prepended to all keys, for
	// multi-tenant setups. If empty, keys use the default "merkledrop:"
	// namespace.
	KeyPrefix string
}

// NewRedisStore creates a Redis-backed content store and verifies the
// connection with a ping.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to Redis at %s", cfg.Address)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	logger.Sugar().Infow("Redis content store initialized", "address", cfg.Address, "db", cfg.DB)

	return rs, nil
}

// initSchema initializes or validates the schema version
func (r *RedisStore) initSchema(ctx context.Context) error {
	key := r.keyPrefix + keySchemaVersion

	existing, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, key, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return errors.Wrap(err, "failed to read schema version")
	}

	if existing != currentSchemaVersion {
		return errors.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
	}

	return nil
}

func (r *RedisStore) blobKey(id string) string {
	return r.keyPrefix + keyPrefixBlob + id
}

// Put stores a blob keyed by its derived content id. SetNX keeps the first
// stored copy when identical bytes arrive concurrently.
func (r *RedisStore) Put(ctx context.Context, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", errors.New("cannot store empty blob")
	}

	id, err := store.Address(blob)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return "", errors.New("content store is closed")
	}

	if err := r.client.SetNX(ctx, r.blobKey(id), blob, 0).Err(); err != nil {
		return "", errors.Wrapf(err, "failed to store blob %s", id)
	}

	return id, nil
}

// Get fetches a blob by content id and re-verifies it against the id.
func (r *RedisStore) Get(ctx context.Context, id string) ([]byte, error) {
	if _, err := cid.ToDigest(id); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, errors.New("content store is closed")
	}

	blob, err := r.client.Get(ctx, r.blobKey(id)).Bytes()
	if err == redis.Nil {
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
func (r *RedisStore) Has(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, errors.New("content store is closed")
	}

	count, err := r.client.Exists(ctx, r.blobKey(id)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "failed to check blob %s", id)
	}
	return count > 0, nil
}

// Close shuts down the Redis client. Idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return errors.Wrap(err, "failed to close redis client")
	}

	r.logger.Sugar().Info("Redis content store closed")
	return nil
}

// HealthCheck verifies the Redis connection is alive.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return errors.New("content store is closed")
	}

	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping failed")
	}
	return nil
}
