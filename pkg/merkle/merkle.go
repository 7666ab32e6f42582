package merkle

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BuildMerkleTree creates a binary merkle tree from identifiers.
// Leaves keep the order of ids; leaf indices refer to that order.
//
// If there's an odd number of nodes at any level, the last node is carried
// up to the next level unchanged. It is never paired with a copy of itself.
func BuildMerkleTree(ids []Identifier) *MerkleTree {
	// Hash all leaves
	leaves := make([]Digest, len(ids))
	for i, id := range ids {
		leaves[i] = HashLeaf(id)
	}

	// Build tree levels bottom-up
	levels := [][]Digest{leaves}
	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([]Digest, parentCount(len(currentLevel)))
		for i := range nextLevel {
			nextLevel[i] = parentAt(currentLevel, i)
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{levels: levels}
}

// BuildMerkleTreeParallel builds the same tree as BuildMerkleTree, hashing
// the nodes of each level on up to workers goroutines. A level is complete
// before the next one starts. workers < 1 means GOMAXPROCS.
//
// The only possible error is the cancellation of ctx.
func BuildMerkleTreeParallel(ctx context.Context, ids []Identifier, workers int) (*MerkleTree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	leaves := make([]Digest, len(ids))
	err := parallelFor(ctx, len(ids), workers, func(i int) {
		leaves[i] = HashLeaf(ids[i])
	})
	if err != nil {
		return nil, err
	}

	levels := [][]Digest{leaves}
	currentLevel := leaves
	for len(currentLevel) > 1 {
		level := currentLevel
		nextLevel := make([]Digest, parentCount(len(level)))
		err := parallelFor(ctx, len(nextLevel), workers, func(i int) {
			nextLevel[i] = parentAt(level, i)
		})
		if err != nil {
			return nil, err
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	return &MerkleTree{levels: levels}, nil
}

// parentCount is ceil(n / 2).
func parentCount(n int) int {
	return (n + 1) / 2
}

// parentAt returns the i-th node of the level above level.
func parentAt(level []Digest, i int) Digest {
	left := 2 * i
	if left+1 >= len(level) {
		// unpaired last node, carried up
		return level[left]
	}
	return HashPair(level[left], level[left+1])
}

// parallelFor runs fn(0..n-1) split into contiguous chunks, one chunk per worker.
func parallelFor(ctx context.Context, n, workers int, fn func(i int)) error {
	if n == 0 {
		return nil
	}
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		start, end := start, min(start+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}

// LeafCount returns the number of leaves (identifiers) in the tree.
func (mt *MerkleTree) LeafCount() int {
	if mt == nil || len(mt.levels) == 0 {
		return 0
	}
	return len(mt.levels[0])
}

// Depth returns the number of levels, leaves and root level included.
// An empty tree has depth 1.
func (mt *MerkleTree) Depth() int {
	if mt == nil {
		return 0
	}
	return len(mt.levels)
}

// HasRoot reports whether the tree has a root. Only the empty tree has none.
func (mt *MerkleTree) HasRoot() bool {
	return mt.LeafCount() > 0
}

// Root returns the merkle root, or the zero digest for an empty tree.
func (mt *MerkleTree) Root() Digest {
	if !mt.HasRoot() {
		return Digest{}
	}
	return mt.levels[len(mt.levels)-1][0]
}

// Leaves returns a copy of the leaf digests in input order.
func (mt *MerkleTree) Leaves() []Digest {
	if mt.LeafCount() == 0 {
		return []Digest{}
	}
	return append([]Digest(nil), mt.levels[0]...)
}

// Levels returns a copy of every level, leaves first.
func (mt *MerkleTree) Levels() [][]Digest {
	if mt == nil {
		return nil
	}
	levels := make([][]Digest, len(mt.levels))
	for i, level := range mt.levels {
		levels[i] = append([]Digest{}, level...)
	}
	return levels
}

// LeafIndex returns the index of the first leaf built from id.
func (mt *MerkleTree) LeafIndex(id Identifier) (int, bool) {
	leaf := HashLeaf(id)
	for i := 0; i < mt.LeafCount(); i++ {
		if mt.levels[0][i] == leaf {
			return i, true
		}
	}
	return -1, false
}

// GenerateProof creates a merkle proof for the leaf at the given index.
// The proof consists of sibling hashes along the path from leaf to root,
// bottom level first. A level where the followed node has no sibling
// contributes nothing.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	leafCount := mt.LeafCount()
	if leafCount == 0 {
		return nil, &ProofError{Index: leafIndex, Err: ErrEmptyTree}
	}
	if leafIndex < 0 || leafIndex >= leafCount {
		return nil, &ProofError{Index: leafIndex, LeafCount: leafCount, Err: ErrIndexOutOfRange}
	}

	proof := make([]Digest, 0, len(mt.levels)-1)
	index := leafIndex

	// Traverse from leaf to just below the root, collecting sibling hashes
	for level := 0; level < len(mt.levels)-1; level++ {
		currentLevel := mt.levels[level]

		var siblingIndex int
		if index%2 == 0 {
			siblingIndex = index + 1
		} else {
			siblingIndex = index - 1
		}

		if siblingIndex < len(currentLevel) {
			proof = append(proof, currentLevel[siblingIndex])
		}

		// Move to parent index in next level
		index = index / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.levels[0][leafIndex],
		Proof:     proof,
	}, nil
}

// GenerateAllProofs returns one proof per leaf, in leaf order.
func (mt *MerkleTree) GenerateAllProofs() ([]*MerkleProof, error) {
	if mt.LeafCount() == 0 {
		return nil, &ProofError{Err: ErrEmptyTree}
	}
	proofs := make([]*MerkleProof, mt.LeafCount())
	for i := range proofs {
		proof, err := mt.GenerateProof(i)
		if err != nil {
			return nil, err
		}
		proofs[i] = proof
	}
	return proofs, nil
}

// VerifyProof reports whether leaf, folded with proof in order, yields root.
// Each step computes HashPair(sibling, accumulator).
//
// A leaf equal to the root is accepted as is, which covers single-leaf trees.
// Forged, truncated or reordered proofs return false; VerifyProof never fails.
func VerifyProof(leaf Digest, proof []Digest, root Digest) bool {
	if leaf == root {
		return true
	}

	currentHash := leaf
	for _, siblingHash := range proof {
		currentHash = HashPair(siblingHash, currentHash)
	}
	return currentHash == root
}

// Verify checks the proof against root. A nil proof is never valid.
func (p *MerkleProof) Verify(root Digest) bool {
	if p == nil {
		return false
	}
	return VerifyProof(p.Leaf, p.Proof, root)
}
