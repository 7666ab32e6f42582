package merkle

import (
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// randomDigest generates a random 32-byte digest for testing
func randomDigest() Digest {
	var d Digest
	_, _ = rand.Read(d[:]) // Ignore error in test helper
	return d
}

func TestHashLeaf(t *testing.T) {
	id := Identifier{0xaa, 0xbb}

	// keccak256(keccak256(12 zero bytes || id))
	padded := append(make([]byte, 12), id[:]...)
	expected := crypto.Keccak256Hash(crypto.Keccak256(padded))

	require.Equal(t, expected, HashLeaf(id))
	require.Equal(t, HashLeaf(id), HashLeaf(id))

	// A single hash of the padded id is what an internal node would look like
	require.NotEqual(t, crypto.Keccak256Hash(padded), HashLeaf(id))
}

func TestHashLeaf_DifferentInputs(t *testing.T) {
	require.NotEqual(t, HashLeaf(Identifier{1}), HashLeaf(Identifier{2}))
	require.NotEqual(t, HashLeaf(Identifier{}), Digest{})
}

func TestHashPair_Symmetric(t *testing.T) {
	for i := 0; i < 100; i++ {
		a, b := randomDigest(), randomDigest()
		require.Equal(t, HashPair(a, b), HashPair(b, a))
	}
}

func TestHashPair_SortedConcatenation(t *testing.T) {
	small := Digest{0x01}
	large := Digest{0x02}

	expected := crypto.Keccak256Hash(small[:], large[:])
	require.Equal(t, expected, HashPair(small, large))
	require.Equal(t, expected, HashPair(large, small))

	// Ordering is decided by the most significant differing byte
	lower := Digest{31: 0xff}
	higher := Digest{0: 0x01}
	require.Equal(t, crypto.Keccak256Hash(lower[:], higher[:]), HashPair(higher, lower))
}

func TestHashPair_Equal(t *testing.T) {
	d := randomDigest()
	require.Equal(t, crypto.Keccak256Hash(d[:], d[:]), HashPair(d, d))
}
