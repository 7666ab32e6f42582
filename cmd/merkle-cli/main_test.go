package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence/memory"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/service"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/types"
)

const (
	testRoot      = "0xd894f25a6e6605c9d2e689f976c59bede03b2958b311a682e54249ac060da45f"
	testAddresses = `0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b
0x2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c

0x3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d
  0x4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e
`
)

func writeAddressFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "addresses.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"merkle-cli"}, args...))
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	path := writeAddressFile(t, testAddresses)

	out, err := run(t, "", "root", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, testRoot+"\n", out)

	out, err = run(t, testAddresses, "root", "--file", "-")
	require.NoError(t, err)
	assert.Equal(t, testRoot+"\n", out)
}

func TestRootCommandErrors(t *testing.T) {
	_, err := run(t, "", "root", "--file", writeAddressFile(t, "\n\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no addresses")

	_, err = run(t, "", "root", "--file", writeAddressFile(t, "0x1234\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid address file")

	_, err = run(t, "", "root", "--file", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestTreeCommand(t *testing.T) {
	out, err := run(t, "", "tree", "--file", writeAddressFile(t, testAddresses))
	require.NoError(t, err)

	var resp types.TreeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 4, resp.LeafCount)
	assert.Equal(t, 3, resp.Depth)
	require.Len(t, resp.Levels, 3)
	require.NotNil(t, resp.Root)
	assert.Equal(t, testRoot, resp.Root.Hex())
	assert.Equal(t, "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b", resp.Addresses[0])
}

func TestProofAndVerifyCommands(t *testing.T) {
	path := writeAddressFile(t, testAddresses)
	address := "0x3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d"

	out, err := run(t, "", "proof", "--file", path, "--address", address)
	require.NoError(t, err)

	var proof types.ProofResponse
	require.NoError(t, json.Unmarshal([]byte(out), &proof))
	assert.Equal(t, 2, proof.Index)
	assert.Equal(t, address, proof.Address)
	assert.Equal(t, testRoot, proof.Root.Hex())
	require.Len(t, proof.Proof, 2)

	byIndex, err := run(t, "", "proof", "--file", path, "--index", "2")
	require.NoError(t, err)
	assert.JSONEq(t, out, byIndex)

	proofArgs := []string{"--proof", proof.Proof[0].Hex(), "--proof", proof.Proof[1].Hex()}

	t.Run("address", func(t *testing.T) {
		args := append([]string{"verify", "--address", address, "--root", testRoot}, proofArgs...)
		out, err := run(t, "", args...)
		require.NoError(t, err)

		var resp types.VerifyResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.True(t, resp.Valid)
		assert.Equal(t, proof.Leaf, resp.Leaf)
	})

	t.Run("leaf", func(t *testing.T) {
		args := append([]string{"verify", "--leaf", proof.Leaf.Hex(), "--root", testRoot}, proofArgs...)
		_, err := run(t, "", args...)
		require.NoError(t, err)
	})

	t.Run("wrong address", func(t *testing.T) {
		args := append([]string{"verify", "--address", "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b", "--root", testRoot}, proofArgs...)
		out, err := run(t, "", args...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "proof is invalid")
		assert.Contains(t, out, `"valid": false`)
	})

	t.Run("missing leaf", func(t *testing.T) {
		_, err := run(t, "", "verify", "--root", testRoot)
		require.Error(t, err)
	})

	t.Run("bad root", func(t *testing.T) {
		_, err := run(t, "", "verify", "--leaf", proof.Leaf.Hex(), "--root", "0x1234")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid root")
	})
}

func TestProofCommandErrors(t *testing.T) {
	path := writeAddressFile(t, testAddresses)

	_, err := run(t, "", "proof", "--file", path, "--address", "0x000000000000000000000000000000000000dead")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the tree")

	_, err = run(t, "", "proof", "--file", path, "--index", "4")
	require.Error(t, err)
}

func TestRemoteCommands(t *testing.T) {
	store := memory.NewMemoryPersistence(zap.NewNop())
	svc, err := service.NewTreeService(&service.Config{MaxIdentifiers: 100, BuildWorkers: 1}, store, zap.NewNop())
	require.NoError(t, err)
	srv := service.NewServer(svc, &service.ServerConfig{}, zap.NewNop())
	ts := httptest.NewServer(srv.GetHandler())
	t.Cleanup(ts.Close)

	out, err := run(t, "", "--server", ts.URL, "build", "--file", writeAddressFile(t, testAddresses))
	require.NoError(t, err)

	var tree types.TreeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &tree))
	require.NotNil(t, tree.Root)
	assert.Equal(t, testRoot, tree.Root.Hex())

	out, err = run(t, "", "--server", ts.URL, "list")
	require.NoError(t, err)
	var list types.TreeListResponse
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Trees, 1)
	assert.Equal(t, tree.TreeID, list.Trees[0].TreeID)

	out, err = run(t, "", "--server", ts.URL, "fetch-proof", "--tree-id", tree.TreeID, "--index", "1")
	require.NoError(t, err)
	var proof types.ProofResponse
	require.NoError(t, json.Unmarshal([]byte(out), &proof))
	assert.Equal(t, 1, proof.Index)

	out, err = run(t, "", "--server", ts.URL, "fetch-proofs", "--tree-id", tree.TreeID)
	require.NoError(t, err)
	var all types.AllProofsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	assert.Len(t, all.Proofs, 4)

	_, err = run(t, "", "--server", ts.URL, "delete", "--tree-id", tree.TreeID)
	require.NoError(t, err)

	_, err = run(t, "", "--server", ts.URL, "get", "--tree-id", tree.TreeID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
