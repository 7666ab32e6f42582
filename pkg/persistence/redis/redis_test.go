package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/logger"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func testConfig() *RedisConfig {
	return &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // dedicated test database
		KeyPrefix: "test-" + uuid.NewString() + ":",
	}
}

// requireRedis skips the test if Redis is not available. Every call gets a
// unique key prefix whose keys are removed when the test ends.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()
	return requireRedisWithConfig(t, testConfig())
}

func requireRedisWithConfig(t *testing.T, cfg *RedisConfig) *RedisPersistence {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}

	t.Cleanup(func() { cleanupRedis(t, cfg) })
	return rp
}

func cleanupRedis(t *testing.T, cfg *RedisConfig) {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	rp, err := NewRedisPersistence(cfg, testLogger)
	if err != nil {
		return
	}
	defer func() { _ = rp.Close() }()

	ctx := context.Background()
	iter := rp.client.Scan(ctx, 0, cfg.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rp.client.Del(ctx, iter.Val())
	}
}

func newTestSession(createdAt int64) *persistence.TreeSession {
	session := persistence.NewTreeSession(
		"0xd894f25a6e6605c9d2e689f976c59bede03b2958b311a682e54249ac060da45f",
		[]string{
			"0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b",
			"0x2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c",
			"0x3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d",
			"0x4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e",
		},
	)
	session.CreatedAt = createdAt
	return session
}

func TestRedisPersistence_SaveAndLoad(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	session := newTestSession(time.Now().Unix())
	require.NoError(t, rp.SaveTreeSession(session))

	loaded, err := rp.LoadTreeSession(session.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, session, loaded)
}

func TestRedisPersistence_Load_NotFound(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	loaded, err := rp.LoadTreeSession(uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisPersistence_Save_Nil(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	err := rp.SaveTreeSession(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil TreeSession")
}

func TestRedisPersistence_Delete(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	session := newTestSession(1)
	require.NoError(t, rp.SaveTreeSession(session))
	require.NoError(t, rp.DeleteTreeSession(session.ID))

	loaded, err := rp.LoadTreeSession(session.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	sessions, err := rp.ListTreeSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Idempotent
	require.NoError(t, rp.DeleteTreeSession(session.ID))
}

func TestRedisPersistence_List(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	empty, err := rp.ListTreeSessions()
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, createdAt := range []int64{30, 10, 20} {
		require.NoError(t, rp.SaveTreeSession(newTestSession(createdAt)))
	}

	sessions, err := rp.ListTreeSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, int64(10), sessions[0].CreatedAt)
	assert.Equal(t, int64(20), sessions[1].CreatedAt)
	assert.Equal(t, int64(30), sessions[2].CreatedAt)
}

func TestRedisPersistence_List_CleansStaleIndex(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	session := newTestSession(1)
	require.NoError(t, rp.SaveTreeSession(session))

	// Remove the value behind the index's back
	ctx := context.Background()
	require.NoError(t, rp.client.Del(ctx, rp.treeKey(session.ID)).Err())

	sessions, err := rp.ListTreeSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)

	members, err := rp.client.SMembers(ctx, rp.prefixKey(keySetTrees)).Result()
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRedisPersistence_DeleteExpiredSessions(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	now := time.Now()
	stale := newTestSession(now.Add(-2 * time.Hour).Unix())
	fresh := newTestSession(now.Unix())
	require.NoError(t, rp.SaveTreeSession(stale))
	require.NoError(t, rp.SaveTreeSession(fresh))

	removed, err := rp.DeleteExpiredSessions(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	sessions, err := rp.ListTreeSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, fresh.ID, sessions[0].ID)

	removed, err = rp.DeleteExpiredSessions(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestRedisPersistence_DeleteExpiredSessions_RemovesCorruptEntries(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	fresh := newTestSession(time.Now().Unix())
	require.NoError(t, rp.SaveTreeSession(fresh))

	ctx := context.Background()
	corruptID := uuid.NewString()
	require.NoError(t, rp.client.Set(ctx, rp.treeKey(corruptID), "{not json", 0).Err())
	require.NoError(t, rp.client.SAdd(ctx, rp.prefixKey(keySetTrees), corruptID).Err())

	sessions, err := rp.ListTreeSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	removed, err := rp.DeleteExpiredSessions(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	exists, err := rp.client.Exists(ctx, rp.treeKey(corruptID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	members, err := rp.client.SMembers(ctx, rp.prefixKey(keySetTrees)).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID}, members)
}

func TestRedisPersistence_KeyPrefixIsolation(t *testing.T) {
	rp1 := requireRedis(t)
	defer func() { _ = rp1.Close() }()
	rp2 := requireRedis(t)
	defer func() { _ = rp2.Close() }()

	session := newTestSession(1)
	require.NoError(t, rp1.SaveTreeSession(session))

	loaded, err := rp2.LoadTreeSession(session.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	sessions, err := rp2.ListTreeSessions()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestRedisPersistence_Close(t *testing.T) {
	rp := requireRedis(t)

	require.NoError(t, rp.HealthCheck())
	require.NoError(t, rp.Close())
	require.NoError(t, rp.Close())

	require.ErrorIs(t, rp.HealthCheck(), persistence.ErrClosed)
	require.ErrorIs(t, rp.SaveTreeSession(newTestSession(1)), persistence.ErrClosed)
	_, err := rp.ListTreeSessions()
	require.ErrorIs(t, err, persistence.ErrClosed)
}

func TestRedisPersistence_ThreadSafety(t *testing.T) {
	rp := requireRedis(t)
	defer func() { _ = rp.Close() }()

	var wg sync.WaitGroup
	numGoroutines := 5

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				session := newTestSession(int64(g*10 + i))
				assert.NoError(t, rp.SaveTreeSession(session))
				_, err := rp.LoadTreeSession(session.ID)
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	sessions, err := rp.ListTreeSessions()
	require.NoError(t, err)
	assert.Len(t, sessions, numGoroutines*10)
}

func TestRedisPersistence_Config_Nil(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(nil, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil")
}

func TestRedisPersistence_Config_EmptyAddress(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisPersistence(&RedisConfig{Address: ""}, testLogger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
