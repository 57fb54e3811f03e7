package config

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for merkledrop configuration
const (
	EnvStoreType     = "MERKLEDROP_STORE_TYPE"
	EnvBadgerPath    = "MERKLEDROP_BADGER_PATH"
	EnvRedisAddress  = "MERKLEDROP_REDIS_ADDRESS"
	EnvRedisPassword = "MERKLEDROP_REDIS_PASSWORD"
	EnvRedisDB       = "MERKLEDROP_REDIS_DB"
	EnvLedgerState   = "MERKLEDROP_LEDGER_STATE"
	EnvVerbose       = "MERKLEDROP_VERBOSE"
)

// StoreType selects a content store backend.
type StoreType string

func (s StoreType) String() string {
	return string(s)
}

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

// ParseStoreType validates a backend name from flag or env input.
func ParseStoreType(value string) (StoreType, error) {
	switch StoreType(value) {
	case StoreTypeMemory, StoreTypeBadger, StoreTypeRedis:
		return StoreType(value), nil
	default:
		return "", fmt.Errorf("unsupported store type: %q (expected memory, badger or redis)", value)
	}
}

// Config is the assembled runtime configuration, built from CLI flags and
// environment and passed into each operation explicitly rather than held as
// process-global state.
type Config struct {
	StoreType     StoreType
	BadgerPath    string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	Verbose       bool
}

// Validate checks the configuration field by field.
func (c *Config) Validate() error {
	var errs field.ErrorList
	root := field.NewPath("config")

	switch c.StoreType {
	case StoreTypeMemory:
	case StoreTypeBadger:
		if c.BadgerPath == "" {
			errs = append(errs, field.Required(root.Child("badgerPath"), "badger store requires a data path"))
		}
	case StoreTypeRedis:
		if c.RedisAddress == "" {
			errs = append(errs, field.Required(root.Child("redisAddress"), "redis store requires a server address"))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			errs = append(errs, field.Invalid(root.Child("redisDB"), c.RedisDB, "must be between 0 and 15"))
		}
	default:
		errs = append(errs, field.NotSupported(root.Child("storeType"), string(c.StoreType), []string{
			string(StoreTypeMemory), string(StoreTypeBadger), string(StoreTypeRedis),
		}))
	}

	if len(errs) > 0 {
		return errs.ToAggregate()
	}
	return nil
}
