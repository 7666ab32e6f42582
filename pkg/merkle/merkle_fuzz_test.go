package merkle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func FuzzEveryProofVerifies(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{1, 2, 3, 4})
	f.Add(make([]byte, IdentifierLength*3))

	f.Fuzz(func(t *testing.T, data []byte) {
		// one identifier per byte, so duplicates and odd counts both show up
		if len(data) > 64 {
			data = data[:64]
		}
		ids := make([]Identifier, len(data))
		for i, b := range data {
			ids[i][IdentifierLength-1] = b
		}

		tree := BuildMerkleTree(ids)
		require.Equal(t, len(ids), tree.LeafCount())

		parallel, err := BuildMerkleTreeParallel(context.Background(), ids, 4)
		require.NoError(t, err)
		require.Equal(t, tree.Levels(), parallel.Levels())

		for i := range ids {
			proof, err := tree.GenerateProof(i)
			require.NoError(t, err)
			require.True(t, VerifyProof(proof.Leaf, proof.Proof, tree.Root()))
		}
	})
}
