package persistence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by every operation on a closed persistence layer.
var ErrClosed = errors.New("persistence layer is closed")

// TreeSession is the stored form of a built tree.
// Only the input and the root are kept; the tree itself is rebuilt on load.
type TreeSession struct {
	// ID is a random UUID assigned when the session is created.
	ID string `json:"id"`

	// Root is the 0x-prefixed hex root digest. Empty for a tree without leaves.
	Root string `json:"root"`

	// Addresses are the lowercase 0x-prefixed identifiers in input order,
	// duplicates included.
	Addresses []string `json:"addresses"`

	// CreatedAt is the Unix timestamp when the session was created
	CreatedAt int64 `json:"createdAt"`
}

// NewTreeSession creates a session with a fresh ID stamped with the current time.
func NewTreeSession(root string, addresses []string) *TreeSession {
	return &TreeSession{
		ID:        uuid.NewString(),
		Root:      root,
		Addresses: append([]string{}, addresses...),
		CreatedAt: time.Now().Unix(),
	}
}

// IsExpired reports whether the session is older than ttl at now.
// A non-positive ttl never expires anything.
func (ts *TreeSession) IsExpired(ttl time.Duration, now time.Time) bool {
	if ts == nil {
		return true
	}
	if ttl <= 0 {
		return false
	}
	return now.Sub(time.Unix(ts.CreatedAt, 0)) > ttl
}

// Copy returns a deep copy of the session.
func (ts *TreeSession) Copy() *TreeSession {
	if ts == nil {
		return nil
	}
	return &TreeSession{
		ID:        ts.ID,
		Root:      ts.Root,
		Addresses: append([]string{}, ts.Addresses...),
		CreatedAt: ts.CreatedAt,
	}
}

// ValidateSessionID checks that id is a UUID.
func ValidateSessionID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid session id %q: %w", id, err)
	}
	return nil
}

// SortTreeSessions orders sessions by CreatedAt, then by ID.
func SortTreeSessions(sessions []*TreeSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt != sessions[j].CreatedAt {
			return sessions[i].CreatedAt < sessions[j].CreatedAt
		}
		return sessions[i].ID < sessions[j].ID
	})
}
