package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// BuildTreeRequest asks the service to build a tree over Addresses, in order.
type BuildTreeRequest struct {
	Addresses []string `json:"addresses"`
}

// TreeResponse describes a built tree. Root is absent for an empty tree.
type TreeResponse struct {
	TreeID    string          `json:"tree_id"`
	Root      *common.Hash    `json:"root,omitempty"`
	LeafCount int             `json:"leaf_count"`
	Depth     int             `json:"depth"`
	Levels    [][]common.Hash `json:"levels"`
	Addresses []string        `json:"addresses"`
	CreatedAt int64           `json:"created_at"`
}

// TreeSummary describes a stored tree without its levels.
type TreeSummary struct {
	TreeID    string       `json:"tree_id"`
	Root      *common.Hash `json:"root,omitempty"`
	LeafCount int          `json:"leaf_count"`
	CreatedAt int64        `json:"created_at"`
}

// TreeListResponse lists stored trees, oldest first.
type TreeListResponse struct {
	Trees []TreeSummary `json:"trees"`
}

// ProofRequest selects a leaf by Address (first occurrence) or by Index.
// Address wins when both are set.
type ProofRequest struct {
	Address string `json:"address,omitempty"`
	Index   *int   `json:"index,omitempty"`
}

// ProofResponse is an inclusion proof for one leaf of a stored tree.
type ProofResponse struct {
	TreeID  string        `json:"tree_id"`
	Index   int           `json:"index"`
	Address string        `json:"address"`
	Leaf    common.Hash   `json:"leaf"`
	Proof   []common.Hash `json:"proof"`
	Root    common.Hash   `json:"root"`
}

// AllProofsResponse carries one proof per leaf, in leaf order.
type AllProofsResponse struct {
	TreeID string          `json:"tree_id"`
	Root   common.Hash     `json:"root"`
	Proofs []ProofResponse `json:"proofs"`
}

// VerifyRequest checks a proof against Root. The leaf is given either as an
// Address, which is hashed by the service, or as an already hashed Leaf.
type VerifyRequest struct {
	Address string        `json:"address,omitempty"`
	Leaf    *common.Hash  `json:"leaf,omitempty"`
	Proof   []common.Hash `json:"proof"`
	Root    common.Hash   `json:"root"`
}

// VerifyResponse reports the verification outcome.
type VerifyResponse struct {
	Valid bool        `json:"valid"`
	Leaf  common.Hash `json:"leaf"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
