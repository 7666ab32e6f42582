package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/client"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/identifier"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/logger"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/types"
)

// createClient creates a merkle service client from CLI context
func createClient(c *cli.Context) (*client.Client, error) {
	zapLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return client.NewClient(&client.ClientConfig{
		BaseURL: c.String("server"),
		Logger:  zapLogger,
	})
}

func buildCommand(c *cli.Context) error {
	text, err := readAddressFile(c, c.String("file"))
	if err != nil {
		return err
	}

	mc, err := createClient(c)
	if err != nil {
		return err
	}

	resp, err := mc.BuildTree(c.Context, identifier.SplitLines(text))
	if err != nil {
		return err
	}
	return printJSON(c, resp)
}

func listCommand(c *cli.Context) error {
	mc, err := createClient(c)
	if err != nil {
		return err
	}

	resp, err := mc.ListTrees(c.Context)
	if err != nil {
		return err
	}
	return printJSON(c, resp)
}

func getCommand(c *cli.Context) error {
	mc, err := createClient(c)
	if err != nil {
		return err
	}

	resp, err := mc.GetTree(c.Context, c.String("tree-id"))
	if err != nil {
		return err
	}
	return printJSON(c, resp)
}

func deleteCommand(c *cli.Context) error {
	mc, err := createClient(c)
	if err != nil {
		return err
	}

	if err := mc.DeleteTree(c.Context, c.String("tree-id")); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "deleted tree %s\n", c.String("tree-id"))
	return err
}

func fetchProofCommand(c *cli.Context) error {
	mc, err := createClient(c)
	if err != nil {
		return err
	}

	req := &types.ProofRequest{Address: c.String("address")}
	if req.Address == "" {
		index := c.Int("index")
		req.Index = &index
	}

	resp, err := mc.GetProof(c.Context, c.String("tree-id"), req)
	if err != nil {
		return err
	}
	return printJSON(c, resp)
}

func fetchProofsCommand(c *cli.Context) error {
	mc, err := createClient(c)
	if err != nil {
		return err
	}

	resp, err := mc.GetAllProofs(c.Context, c.String("tree-id"))
	if err != nil {
		return err
	}
	return printJSON(c, resp)
}
