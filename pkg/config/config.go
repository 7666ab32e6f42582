package config

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for merkle server configuration
const (
	EnvMerklePort            = "MERKLE_PORT"
	EnvMerklePersistenceType = "MERKLE_PERSISTENCE_TYPE"
	EnvMerkleDataPath        = "MERKLE_DATA_PATH"
	EnvMerkleRedisAddress    = "MERKLE_REDIS_ADDRESS"
	EnvMerkleRedisPassword   = "MERKLE_REDIS_PASSWORD"
	EnvMerkleRedisDB         = "MERKLE_REDIS_DB"
	EnvMerkleRedisKeyPrefix  = "MERKLE_REDIS_KEY_PREFIX"
	EnvMerkleRateLimit       = "MERKLE_RATE_LIMIT"
	EnvMerkleRateBurst       = "MERKLE_RATE_BURST"
	EnvMerkleSessionTTL      = "MERKLE_SESSION_TTL"
	EnvMerkleMaxIdentifiers  = "MERKLE_MAX_IDENTIFIERS"
	EnvMerkleBuildWorkers    = "MERKLE_BUILD_WORKERS"
	EnvMerkleTreeCacheSize   = "MERKLE_TREE_CACHE_SIZE"
	EnvMerkleDebug           = "MERKLE_DEBUG"
)

// Defaults applied by DefaultServerConfig and the server flags
const (
	DefaultPort           = 8080
	DefaultDataPath       = "./data/merkle"
	DefaultRedisAddress   = "localhost:6379"
	DefaultRateLimit      = 50.0
	DefaultRateBurst      = 100
	DefaultSessionTTL     = 24 * time.Hour
	DefaultMaxIdentifiers = 100000
	DefaultBuildWorkers   = 1
	DefaultTreeCacheSize  = 128
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// GetSupportedPersistenceTypes returns all supported persistence backends
func GetSupportedPersistenceTypes() []PersistenceType {
	return []PersistenceType{
		PersistenceTypeMemory,
		PersistenceTypeBadger,
		PersistenceTypeRedis,
	}
}

// GetSupportedPersistenceTypesString returns supported backends for CLI help
func GetSupportedPersistenceTypesString() string {
	return fmt.Sprintf("%s, %s, %s", PersistenceTypeMemory, PersistenceTypeBadger, PersistenceTypeRedis)
}

// ServerConfig represents the complete configuration for a merkle server
type ServerConfig struct {
	Port int `json:"port"`

	// Session storage
	PersistenceType PersistenceType `json:"persistence_type"`
	DataPath        string          `json:"data_path"` // badger only
	RedisAddress    string          `json:"redis_address"`
	RedisPassword   string          `json:"-"`
	RedisDB         int             `json:"redis_db"`
	RedisKeyPrefix  string          `json:"redis_key_prefix"`

	// Request limits. A RateLimit of 0 disables rate limiting.
	RateLimit      float64 `json:"rate_limit"` // requests per second
	RateBurst      int     `json:"rate_burst"`
	MaxIdentifiers int     `json:"max_identifiers"`

	// SessionTTL is how long a tree session is kept. 0 keeps sessions forever.
	SessionTTL time.Duration `json:"session_ttl"`

	// BuildWorkers > 1 builds trees concurrently with that many workers
	BuildWorkers int `json:"build_workers"`

	// TreeCacheSize is the number of rebuilt trees kept in memory. 0 disables the cache.
	TreeCacheSize int `json:"tree_cache_size"`

	Debug bool `json:"debug"`
}

// DefaultServerConfig returns a config backed by in-memory persistence
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            DefaultPort,
		PersistenceType: PersistenceTypeMemory,
		DataPath:        DefaultDataPath,
		RedisAddress:    DefaultRedisAddress,
		RateLimit:       DefaultRateLimit,
		RateBurst:       DefaultRateBurst,
		SessionTTL:      DefaultSessionTTL,
		MaxIdentifiers:  DefaultMaxIdentifiers,
		BuildWorkers:    DefaultBuildWorkers,
		TreeCacheSize:   DefaultTreeCacheSize,
	}
}

// Validate validates the merkle server configuration
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}

	switch c.PersistenceType {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if c.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for redis persistence"))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redisDB"), c.RedisDB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistenceType"), c.PersistenceType, []string{
			PersistenceTypeMemory.String(),
			PersistenceTypeBadger.String(),
			PersistenceTypeRedis.String(),
		}))
	}

	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must be at least 1 when rate limiting is enabled"))
	}
	if c.MaxIdentifiers < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxIdentifiers"), c.MaxIdentifiers, "must be at least 1"))
	}
	if c.SessionTTL < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("sessionTTL"), c.SessionTTL.String(), "must not be negative"))
	}
	if c.BuildWorkers < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("buildWorkers"), c.BuildWorkers, "must be at least 1"))
	}

	if c.TreeCacheSize < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("treeCacheSize"), c.TreeCacheSize, "must not be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
