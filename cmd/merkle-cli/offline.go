package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/identifier"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/types"
)

// readAddressFile returns the raw contents of path, or of stdin when path is "-".
func readAddressFile(c *cli.Context, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read address file: %w", err)
	}
	return string(data), nil
}

func loadTree(c *cli.Context) ([]merkle.Identifier, *merkle.MerkleTree, error) {
	text, err := readAddressFile(c, c.String("file"))
	if err != nil {
		return nil, nil, err
	}
	ids, err := identifier.ParseList(text)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid address file: %w", err)
	}
	return ids, merkle.BuildMerkleTree(ids), nil
}

func rootCommand(c *cli.Context) error {
	_, tree, err := loadTree(c)
	if err != nil {
		return err
	}
	if !tree.HasRoot() {
		return cli.Exit("address file has no addresses", 1)
	}
	_, err = fmt.Fprintln(c.App.Writer, tree.Root().Hex())
	return err
}

func treeCommand(c *cli.Context) error {
	ids, tree, err := loadTree(c)
	if err != nil {
		return err
	}

	resp := types.TreeResponse{
		LeafCount: tree.LeafCount(),
		Depth:     tree.Depth(),
		Levels:    tree.Levels(),
		Addresses: identifier.FormatAll(ids),
	}
	if tree.HasRoot() {
		root := tree.Root()
		resp.Root = &root
	}
	return printJSON(c, resp)
}

func proofCommand(c *cli.Context) error {
	ids, tree, err := loadTree(c)
	if err != nil {
		return err
	}

	index := c.Int("index")
	if address := c.String("address"); address != "" {
		id, err := identifier.Parse(address)
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}
		i, ok := tree.LeafIndex(id)
		if !ok {
			return cli.Exit(fmt.Sprintf("address %s is not in the tree", identifier.Format(id)), 1)
		}
		index = i
	}

	proof, err := tree.GenerateProof(index)
	if err != nil {
		return err
	}

	return printJSON(c, types.ProofResponse{
		Index:   proof.LeafIndex,
		Address: identifier.Format(ids[proof.LeafIndex]),
		Leaf:    proof.Leaf,
		Proof:   nonNilDigests(proof.Proof),
		Root:    tree.Root(),
	})
}

func verifyCommand(c *cli.Context) error {
	root, err := parseDigest(c.String("root"))
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}

	proof := make([]merkle.Digest, 0, len(c.StringSlice("proof")))
	for _, s := range c.StringSlice("proof") {
		d, err := parseDigest(s)
		if err != nil {
			return fmt.Errorf("invalid proof element %q: %w", s, err)
		}
		proof = append(proof, d)
	}

	var leaf merkle.Digest
	switch {
	case c.String("address") != "":
		id, err := identifier.Parse(c.String("address"))
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}
		leaf = merkle.HashLeaf(id)
	case c.String("leaf") != "":
		leaf, err = parseDigest(c.String("leaf"))
		if err != nil {
			return fmt.Errorf("invalid leaf: %w", err)
		}
	default:
		return cli.Exit("one of --address or --leaf is required", 1)
	}

	valid := merkle.VerifyProof(leaf, proof, root)
	if err := printJSON(c, types.VerifyResponse{Valid: valid, Leaf: leaf}); err != nil {
		return err
	}
	if !valid {
		return cli.Exit("proof is invalid", 1)
	}
	return nil
}

// parseDigest decodes a 0x-prefixed 32-byte hex digest.
func parseDigest(s string) (merkle.Digest, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return merkle.Digest{}, err
	}
	if len(b) != common.HashLength {
		return merkle.Digest{}, fmt.Errorf("expected %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

func nonNilDigests(d []merkle.Digest) []merkle.Digest {
	if d == nil {
		return []merkle.Digest{}
	}
	return d
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
