package persistence

import "time"

// ITreePersistence stores tree sessions for the service.
// All implementations must be thread-safe as requests are served concurrently.
type ITreePersistence interface {
	// SaveTreeSession persists a session under its ID.
	// Overwrites any existing session with the same ID.
	SaveTreeSession(session *TreeSession) error

	// LoadTreeSession retrieves a session by ID.
	// Returns nil if the session doesn't exist, error only on storage failure.
	LoadTreeSession(id string) (*TreeSession, error)

	// ListTreeSessions returns all sessions sorted by CreatedAt, then ID.
	// Returns empty slice if no sessions exist.
	ListTreeSessions() ([]*TreeSession, error)

	// DeleteTreeSession removes a session.
	// Idempotent - returns nil if the session doesn't exist.
	DeleteTreeSession(id string) error

	// DeleteExpiredSessions removes every session older than ttl and returns
	// how many were removed. Stored entries that cannot be decoded are
	// removed as well. A non-positive ttl removes nothing.
	DeleteExpiredSessions(ttl time.Duration) (int, error)

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return ErrClosed.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
