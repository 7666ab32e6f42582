package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixTree        = "merkle:tree:"
	keySchemaVersion     = "merkle:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Redis has no prefix iteration, so session IDs are tracked in a set
	keySetTrees = "merkle:trees:index"

	operationTimeout = 5 * time.Second
)

// RedisPersistence is an ITreePersistence backed by Redis, suitable when
// several service replicas share their sessions.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional prefix for all keys, e.g. "staging:" results
	// in keys like "staging:merkle:tree:<id>".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) treeKey(id string) string {
	return r.prefixKey(keyPrefixTree + id)
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveTreeSession persists a tree session and indexes its ID
func (r *RedisPersistence) SaveTreeSession(session *persistence.TreeSession) error {
	if session == nil {
		return fmt.Errorf("cannot save nil TreeSession")
	}
	if session.ID == "" {
		return fmt.Errorf("cannot save TreeSession without an id")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalTreeSession(session)
	if err != nil {
		return fmt.Errorf("failed to marshal TreeSession: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.treeKey(session.ID), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetTrees), session.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save TreeSession: %w", err)
	}

	return nil
}

// LoadTreeSession retrieves a tree session
func (r *RedisPersistence) LoadTreeSession(id string) (*persistence.TreeSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.treeKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load TreeSession: %w", err)
	}

	session, err := persistence.UnmarshalTreeSession(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal TreeSession: %w", err)
	}

	return session, nil
}

// ListTreeSessions returns all tree sessions ordered by creation time
func (r *RedisPersistence) ListTreeSessions() ([]*persistence.TreeSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	sessions, _, err := r.fetchSessions(ctx)
	if err != nil {
		return nil, err
	}

	persistence.SortTreeSessions(sessions)
	return sessions, nil
}

// fetchSessions loads every indexed session with a single MGET. IDs whose
// key has disappeared are dropped from the index. IDs whose value fails to
// decode are skipped and returned separately. Callers must hold r.mu.
func (r *RedisPersistence) fetchSessions(ctx context.Context) ([]*persistence.TreeSession, []string, error) {
	indexKey := r.prefixKey(keySetTrees)

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list TreeSession ids: %w", err)
	}

	sessions := make([]*persistence.TreeSession, 0, len(ids))
	if len(ids) == 0 {
		return sessions, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.treeKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch TreeSessions: %w", err)
	}

	var corrupt []string
	for i, val := range values {
		if val == nil {
			if err := r.client.SRem(ctx, indexKey, ids[i]).Err(); err != nil {
				r.logger.Sugar().Warnw("Failed to remove stale TreeSession id from index",
					"id", ids[i], "error", err)
			}
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for TreeSession", "key", keys[i])
			corrupt = append(corrupt, ids[i])
			continue
		}

		session, err := persistence.UnmarshalTreeSession([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal TreeSession, skipping",
				"key", keys[i], "error", err)
			corrupt = append(corrupt, ids[i])
			continue
		}

		sessions = append(sessions, session)
	}

	return sessions, corrupt, nil
}

// DeleteTreeSession removes a tree session and its index entry
func (r *RedisPersistence) DeleteTreeSession(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.deleteSessions(ctx, []string{id}); err != nil {
		return fmt.Errorf("failed to delete TreeSession: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session older than ttl. Entries that
// cannot be decoded are removed too and counted.
func (r *RedisPersistence) DeleteExpiredSessions(ttl time.Duration) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, persistence.ErrClosed
	}

	if ttl <= 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	sessions, corrupt, err := r.fetchSessions(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	expired := corrupt
	for _, session := range sessions {
		if session.IsExpired(ttl, now) {
			expired = append(expired, session.ID)
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}

	if err := r.deleteSessions(ctx, expired); err != nil {
		return 0, fmt.Errorf("failed to delete expired TreeSessions: %w", err)
	}

	return len(expired), nil
}

func (r *RedisPersistence) deleteSessions(ctx context.Context, ids []string) error {
	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = r.treeKey(id)
		members[i] = id
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, r.prefixKey(keySetTrees), members...)

	_, err := pipe.Exec(ctx)
	return err
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
