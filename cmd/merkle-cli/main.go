package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	fileFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    "File with one address per line, - reads stdin",
			Required: true,
		}
	}
	treeIDFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "tree-id",
			Aliases:  []string{"id"},
			Usage:    "Tree ID returned by build",
			Required: true,
		}
	}
	addressFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "Address of the leaf",
		}
	}
	indexFlag := func() cli.Flag {
		return &cli.IntFlag{
			Name:    "index",
			Aliases: []string{"i"},
			Usage:   "Leaf index, used when --address is not set",
		}
	}

	return &cli.App{
		Name:  "merkle-cli",
		Usage: "Build merkle allowlist trees and proofs",
		Description: `A client for building merkle trees over address allowlists.

Offline commands (root, tree, proof, verify) work on a local address file.
Remote commands talk to a merkle-server given by --server.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Merkle server URL",
				Value:   "http://localhost:8080",
				EnvVars: []string{"MERKLE_SERVER_URL"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "root",
				Usage:  "Print the root of the tree built from an address file",
				Flags:  []cli.Flag{fileFlag()},
				Action: rootCommand,
			},
			{
				Name:   "tree",
				Usage:  "Print every level of the tree built from an address file",
				Flags:  []cli.Flag{fileFlag()},
				Action: treeCommand,
			},
			{
				Name:   "proof",
				Usage:  "Print the proof for one leaf of the tree built from an address file",
				Flags:  []cli.Flag{fileFlag(), addressFlag(), indexFlag()},
				Action: proofCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify a proof locally",
				Flags: []cli.Flag{
					addressFlag(),
					&cli.StringFlag{
						Name:  "leaf",
						Usage: "Leaf digest, used when --address is not set",
					},
					&cli.StringSliceFlag{
						Name:  "proof",
						Usage: "Sibling digests from leaf to root, comma separated or repeated",
					},
					&cli.StringFlag{
						Name:     "root",
						Usage:    "Expected root digest",
						Required: true,
					},
				},
				Action: verifyCommand,
			},
			{
				Name:   "build",
				Usage:  "Build and store a tree on the server",
				Flags:  []cli.Flag{fileFlag()},
				Action: buildCommand,
			},
			{
				Name:   "list",
				Usage:  "List trees stored on the server",
				Action: listCommand,
			},
			{
				Name:   "get",
				Usage:  "Fetch a stored tree",
				Flags:  []cli.Flag{treeIDFlag()},
				Action: getCommand,
			},
			{
				Name:   "delete",
				Usage:  "Delete a stored tree",
				Flags:  []cli.Flag{treeIDFlag()},
				Action: deleteCommand,
			},
			{
				Name:   "fetch-proof",
				Usage:  "Fetch the proof for one leaf of a stored tree",
				Flags:  []cli.Flag{treeIDFlag(), addressFlag(), indexFlag()},
				Action: fetchProofCommand,
			},
			{
				Name:   "fetch-proofs",
				Usage:  "Fetch the proofs for every leaf of a stored tree",
				Flags:  []cli.Flag{treeIDFlag()},
				Action: fetchProofsCommand,
			},
		},
	}
}
