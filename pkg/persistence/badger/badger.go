package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixTree        = "tree:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerPersistence is a disk-backed ITreePersistence using Badger.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence creates a new Badger-backed persistence layer.
// The database is opened at the specified path with SyncWrites enabled for durability.
// A background goroutine is started for value log garbage collection.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection in the background
func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func treeKey(id string) []byte {
	return []byte(keyPrefixTree + id)
}

// SaveTreeSession persists a tree session
func (b *BadgerPersistence) SaveTreeSession(session *persistence.TreeSession) error {
	if session == nil {
		return fmt.Errorf("cannot save nil TreeSession")
	}
	if session.ID == "" {
		return fmt.Errorf("cannot save TreeSession without an id")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalTreeSession(session)
	if err != nil {
		return fmt.Errorf("failed to marshal TreeSession: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(treeKey(session.ID), data)
	})
}

// LoadTreeSession retrieves a tree session
func (b *BadgerPersistence) LoadTreeSession(id string) (*persistence.TreeSession, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte

	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(treeKey(id))
		if err == badgerdb.ErrKeyNotFound {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load TreeSession: %w", err)
	}

	if data == nil {
		return nil, nil
	}

	session, err := persistence.UnmarshalTreeSession(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal TreeSession: %w", err)
	}

	return session, nil
}

// ListTreeSessions returns all tree sessions ordered by creation time
func (b *BadgerPersistence) ListTreeSessions() ([]*persistence.TreeSession, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	sessions, _, err := b.scanSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list TreeSessions: %w", err)
	}

	persistence.SortTreeSessions(sessions)
	return sessions, nil
}

// scanSessions reads every stored session. Entries that fail to decode are
// skipped and their keys returned separately. Callers must hold b.mu.
func (b *BadgerPersistence) scanSessions() ([]*persistence.TreeSession, [][]byte, error) {
	sessions := make([]*persistence.TreeSession, 0)
	var corrupt [][]byte

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixTree)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			session, err := persistence.UnmarshalTreeSession(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal TreeSession, skipping",
					"key", string(item.Key()), "error", err)
				corrupt = append(corrupt, item.KeyCopy(nil))
				continue
			}

			sessions = append(sessions, session)
		}

		return nil
	})

	return sessions, corrupt, err
}

// DeleteTreeSession removes a tree session
func (b *BadgerPersistence) DeleteTreeSession(id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(treeKey(id))
	})
}

// DeleteExpiredSessions removes every session older than ttl. Entries that
// cannot be decoded are removed too and counted.
func (b *BadgerPersistence) DeleteExpiredSessions(ttl time.Duration) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, persistence.ErrClosed
	}

	if ttl <= 0 {
		return 0, nil
	}

	sessions, corrupt, err := b.scanSessions()
	if err != nil {
		return 0, fmt.Errorf("failed to scan TreeSessions: %w", err)
	}

	now := time.Now()
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	removed := 0
	for _, session := range sessions {
		if !session.IsExpired(ttl, now) {
			continue
		}
		if err := wb.Delete(treeKey(session.ID)); err != nil {
			return 0, fmt.Errorf("failed to queue delete for %s: %w", session.ID, err)
		}
		removed++
	}

	for _, key := range corrupt {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("failed to queue delete for %s: %w", key, err)
		}
		removed++
	}

	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to delete expired TreeSessions: %w", err)
	}

	return removed, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
