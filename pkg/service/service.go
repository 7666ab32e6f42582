// Package service serves merkle allowlist trees over HTTP.
//
// A tree is built once from an address list and stored as a session
// (input addresses plus root). Later requests rebuild the tree from the
// session, check the rebuilt root against the stored one and answer proof
// queries from it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/identifier"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence"
)

var (
	ErrTreeNotFound       = errors.New("tree not found")
	ErrAddressNotFound    = errors.New("address not in tree")
	ErrTooManyIdentifiers = errors.New("too many identifiers")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrCorruptSession     = errors.New("stored tree session is corrupt")
)

// Config holds the tree service limits.
type Config struct {
	MaxIdentifiers int
	BuildWorkers   int
	SessionTTL     time.Duration
	TreeCacheSize  int
}

// Tree is a stored session together with the tree rebuilt from it.
type Tree struct {
	Session     *persistence.TreeSession
	Identifiers []merkle.Identifier
	Merkle      *merkle.MerkleTree
}

// Proof is an inclusion proof for one leaf of a stored tree.
type Proof struct {
	TreeID     string
	Identifier merkle.Identifier
	Root       merkle.Digest
	*merkle.MerkleProof
}

// TreeService builds, stores and queries trees.
type TreeService struct {
	config *Config
	store  persistence.ITreePersistence
	cache  *lru.Cache[string, *Tree]
	logger *zap.Logger
}

// NewTreeService creates a tree service on top of store.
func NewTreeService(cfg *Config, store persistence.ITreePersistence, logger *zap.Logger) (*TreeService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("persistence is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &TreeService{
		config: cfg,
		store:  store,
		logger: logger,
	}

	if cfg.TreeCacheSize > 0 {
		cache, err := lru.New[string, *Tree](cfg.TreeCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create tree cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// BuildTree validates addresses, builds the tree over them in order and stores
// a new session for it.
func (s *TreeService) BuildTree(ctx context.Context, addresses []string) (*Tree, error) {
	if s.config.MaxIdentifiers > 0 && len(addresses) > s.config.MaxIdentifiers {
		return nil, fmt.Errorf("%w: got %d, limit is %d", ErrTooManyIdentifiers, len(addresses), s.config.MaxIdentifiers)
	}

	ids, err := identifier.ParseAll(addresses)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	start := time.Now()
	tree, err := s.buildMerkleTree(ctx, ids)
	if err != nil {
		return nil, err
	}

	session := persistence.NewTreeSession(rootString(tree), identifier.FormatAll(ids))
	if err := s.store.SaveTreeSession(session); err != nil {
		return nil, fmt.Errorf("failed to save tree session: %w", err)
	}

	t := &Tree{Session: session, Identifiers: ids, Merkle: tree}
	s.cacheTree(t)

	s.logger.Sugar().Infow("Built merkle tree",
		"tree_id", session.ID,
		"leaf_count", tree.LeafCount(),
		"root", session.Root,
		"duration", time.Since(start))

	return t, nil
}

func (s *TreeService) buildMerkleTree(ctx context.Context, ids []merkle.Identifier) (*merkle.MerkleTree, error) {
	if s.config.BuildWorkers > 1 {
		tree, err := merkle.BuildMerkleTreeParallel(ctx, ids, s.config.BuildWorkers)
		if err != nil {
			return nil, fmt.Errorf("failed to build tree: %w", err)
		}
		return tree, nil
	}
	return merkle.BuildMerkleTree(ids), nil
}

// GetTree loads a session and rebuilds its tree. The rebuilt root must match
// the stored root.
func (s *TreeService) GetTree(ctx context.Context, id string) (*Tree, error) {
	if err := persistence.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	// The store decides whether the tree exists; the cache only saves the rebuild.
	session, err := s.store.LoadTreeSession(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree session: %w", err)
	}
	if session == nil {
		if s.cache != nil {
			s.cache.Remove(id)
		}
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, id)
	}

	if s.cache != nil {
		if t, ok := s.cache.Get(id); ok && t.Session.Root == session.Root {
			return t, nil
		}
	}

	ids, err := identifier.ParseAll(session.Addresses)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptSession, id, err)
	}

	tree, err := s.buildMerkleTree(ctx, ids)
	if err != nil {
		return nil, err
	}

	if rebuilt := rootString(tree); rebuilt != session.Root {
		s.logger.Sugar().Errorw("Rebuilt root does not match stored root",
			"tree_id", id, "stored_root", session.Root, "rebuilt_root", rebuilt)
		return nil, fmt.Errorf("%w: %s: root mismatch", ErrCorruptSession, id)
	}

	t := &Tree{Session: session, Identifiers: ids, Merkle: tree}
	s.cacheTree(t)
	return t, nil
}

// ListTrees returns every stored session, oldest first.
func (s *TreeService) ListTrees() ([]*persistence.TreeSession, error) {
	sessions, err := s.store.ListTreeSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list tree sessions: %w", err)
	}
	return sessions, nil
}

// DeleteTree removes a session. Deleting an unknown tree is not an error.
func (s *TreeService) DeleteTree(id string) error {
	if err := persistence.ValidateSessionID(id); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if s.cache != nil {
		s.cache.Remove(id)
	}

	if err := s.store.DeleteTreeSession(id); err != nil {
		return fmt.Errorf("failed to delete tree session: %w", err)
	}

	s.logger.Sugar().Infow("Deleted merkle tree", "tree_id", id)
	return nil
}

// ProofForAddress returns the proof for the first leaf built from address.
func (s *TreeService) ProofForAddress(ctx context.Context, treeID, address string) (*Proof, error) {
	id, err := identifier.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	t, err := s.GetTree(ctx, treeID)
	if err != nil {
		return nil, err
	}

	index, ok := t.Merkle.LeafIndex(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressNotFound, identifier.Format(id))
	}

	return t.proof(index)
}

// ProofForIndex returns the proof for the leaf at index.
func (s *TreeService) ProofForIndex(ctx context.Context, treeID string, index int) (*Proof, error) {
	t, err := s.GetTree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return t.proof(index)
}

// AllProofs returns one proof per leaf, in leaf order.
func (s *TreeService) AllProofs(ctx context.Context, treeID string) (*Tree, []*Proof, error) {
	t, err := s.GetTree(ctx, treeID)
	if err != nil {
		return nil, nil, err
	}

	merkleProofs, err := t.Merkle.GenerateAllProofs()
	if err != nil {
		return nil, nil, err
	}

	proofs := make([]*Proof, len(merkleProofs))
	for i, p := range merkleProofs {
		proofs[i] = &Proof{
			TreeID:      t.Session.ID,
			Identifier:  t.Identifiers[i],
			Root:        t.Merkle.Root(),
			MerkleProof: p,
		}
	}
	return t, proofs, nil
}

// VerifyAddress hashes address into a leaf and verifies proof against root.
func (s *TreeService) VerifyAddress(address string, proof []merkle.Digest, root merkle.Digest) (merkle.Digest, bool, error) {
	id, err := identifier.Parse(address)
	if err != nil {
		return merkle.Digest{}, false, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	leaf := merkle.HashLeaf(id)
	return leaf, merkle.VerifyProof(leaf, proof, root), nil
}

// PruneExpired deletes sessions older than the configured TTL.
func (s *TreeService) PruneExpired() (int, error) {
	removed, err := s.store.DeleteExpiredSessions(s.config.SessionTTL)
	if err != nil {
		return 0, fmt.Errorf("failed to prune tree sessions: %w", err)
	}
	if removed > 0 {
		s.logger.Sugar().Infow("Pruned expired tree sessions", "removed", removed, "ttl", s.config.SessionTTL)
	}
	return removed, nil
}

// HealthCheck reports whether the session store is usable.
func (s *TreeService) HealthCheck() error {
	return s.store.HealthCheck()
}

func (s *TreeService) cacheTree(t *Tree) {
	if s.cache != nil {
		s.cache.Add(t.Session.ID, t)
	}
}

func (t *Tree) proof(index int) (*Proof, error) {
	p, err := t.Merkle.GenerateProof(index)
	if err != nil {
		return nil, err
	}
	return &Proof{
		TreeID:      t.Session.ID,
		Identifier:  t.Identifiers[index],
		Root:        t.Merkle.Root(),
		MerkleProof: p,
	}, nil
}

// rootString is the stored form of a root: lowercase hex, empty for no leaves.
func rootString(tree *merkle.MerkleTree) string {
	if !tree.HasRoot() {
		return ""
	}
	return tree.Root().Hex()
}
