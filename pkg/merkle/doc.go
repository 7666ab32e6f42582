// Package merkle builds keccak256 binary merkle trees over fixed-width
// identifiers, generates inclusion proofs and verifies them.
//
// Hashing rules, compatible with OpenZeppelin's MerkleProof.verify:
//
//	leaf = keccak256(keccak256(leftPad32(id)))
//	node = keccak256(min(a, b) || max(a, b))
//
// An unpaired last node of a level is carried up unchanged. Proofs list the
// sibling digests bottom-up and carry no left/right flags.
package merkle
