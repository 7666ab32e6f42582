package merkle

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// IdentifierLength is the fixed width of an identifier (an Ethereum address).
const IdentifierLength = common.AddressLength

// Identifier is a fixed-width leaf input. The engine never looks inside it.
type Identifier [IdentifierLength]byte

// Digest is the output of every hash operation in the tree.
type Digest = common.Hash

var (
	// ErrIndexOutOfRange is returned when a proof is requested for an index
	// that is negative or not smaller than the number of leaves.
	ErrIndexOutOfRange = errors.New("leaf index out of range")

	// ErrEmptyTree is returned when a proof is requested from a tree that was
	// built from zero identifiers.
	ErrEmptyTree = errors.New("proof requested from empty tree")
)

// ProofError describes a failed proof request.
type ProofError struct {
	Index     int
	LeafCount int
	Err       error
}

func (e *ProofError) Error() string {
	if errors.Is(e.Err, ErrEmptyTree) {
		return fmt.Sprintf("cannot generate proof for leaf %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("leaf index %d out of bounds (tree has %d leaves): %v", e.Index, e.LeafCount, e.Err)
}

func (e *ProofError) Unwrap() error {
	return e.Err
}

// MerkleTree represents a binary merkle tree built from identifiers.
// The tree uses keccak256 hashing for Solidity compatibility.
//
// A MerkleTree is never modified after construction and is safe for
// concurrent readers.
type MerkleTree struct {
	// levels stores all tree levels for proof generation
	// levels[0] = leaves in input order, levels[len-1] = root level
	levels [][]Digest
}

// MerkleProof represents a proof that a leaf is included in the tree.
type MerkleProof struct {
	// LeafIndex is the index of the leaf in the input order
	LeafIndex int

	// Leaf is the hash of the leaf being proven
	Leaf Digest

	// Proof contains the sibling hashes from leaf to root.
	// Levels where the followed node was carried up have no entry.
	Proof []Digest
}
