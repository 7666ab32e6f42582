package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence"
	"go.uber.org/zap"
)

// MemoryPersistence is an in-memory implementation of ITreePersistence.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Deep copies data to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	// Tree sessions: id -> TreeSession
	sessions map[string]*persistence.TreeSession

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Logs a loud warning since sessions do not survive a restart.
func NewMemoryPersistence(logger *zap.Logger) *MemoryPersistence {
	if logger != nil {
		logger.Sugar().Warnw("Using in-memory persistence - ALL TREE SESSIONS WILL BE LOST ON RESTART",
			"hint", "set MERKLE_PERSISTENCE_TYPE=badger or redis for durable sessions")
	}

	return &MemoryPersistence{
		sessions: make(map[string]*persistence.TreeSession),
	}
}

// SaveTreeSession persists a tree session.
func (m *MemoryPersistence) SaveTreeSession(session *persistence.TreeSession) error {
	if session == nil {
		return fmt.Errorf("cannot save nil TreeSession")
	}
	if session.ID == "" {
		return fmt.Errorf("cannot save TreeSession without an id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.sessions[session.ID] = session.Copy()
	return nil
}

// LoadTreeSession retrieves a tree session.
func (m *MemoryPersistence) LoadTreeSession(id string) (*persistence.TreeSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	session, exists := m.sessions[id]
	if !exists {
		return nil, nil // Not found is not an error
	}

	return session.Copy(), nil
}

// ListTreeSessions returns all tree sessions ordered by creation time.
func (m *MemoryPersistence) ListTreeSessions() ([]*persistence.TreeSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	result := make([]*persistence.TreeSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session.Copy())
	}
	persistence.SortTreeSessions(result)

	return result, nil
}

// DeleteTreeSession removes a tree session.
func (m *MemoryPersistence) DeleteTreeSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	delete(m.sessions, id)
	return nil
}

// DeleteExpiredSessions removes sessions older than ttl.
func (m *MemoryPersistence) DeleteExpiredSessions(ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, persistence.ErrClosed
	}

	now := time.Now()
	removed := 0
	for id, session := range m.sessions {
		if session.IsExpired(ttl, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Close shuts down the persistence layer.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}

	return nil
}
