package merkle

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashLeaf computes the leaf digest of an identifier:
// keccak256(keccak256(leftPad32(id))).
//
// Leaves are hashed twice and internal nodes once so that an internal node's
// 64-byte pre-image can never be presented as a leaf.
func HashLeaf(id Identifier) Digest {
	padded := common.LeftPadBytes(id[:], common.HashLength)
	first := crypto.Keccak256(padded)
	return crypto.Keccak256Hash(first)
}

// HashPair computes keccak256(min(a, b) || max(a, b)), comparing the digests
// as raw big-endian byte strings. The result does not depend on argument order.
func HashPair(a, b Digest) Digest {
	if bytes.Compare(a[:], b[:]) < 0 {
		return crypto.Keccak256Hash(a[:], b[:])
	}
	return crypto.Keccak256Hash(b[:], a[:])
}
