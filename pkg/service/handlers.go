package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/identifier"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/merkle"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-allowlist-go/pkg/types"
)

// Upper bound on a request body: one quoted address plus separator per
// identifier, with room for the JSON envelope.
const (
	bytesPerAddress  = 48
	requestBodySlack = 4096
)

// handleBuildTree handles POST /trees
func (s *Server) handleBuildTree(w http.ResponseWriter, r *http.Request) {
	var req types.BuildTreeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	t, err := s.service.BuildTree(r.Context(), req.Addresses)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, treeResponse(t))
}

// handleListTrees handles GET /trees
func (s *Server) handleListTrees(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListTrees()
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := types.TreeListResponse{Trees: make([]types.TreeSummary, 0, len(sessions))}
	for _, session := range sessions {
		summary := types.TreeSummary{
			TreeID:    session.ID,
			LeafCount: len(session.Addresses),
			CreatedAt: session.CreatedAt,
		}
		if session.Root != "" {
			root := common.HexToHash(session.Root)
			summary.Root = &root
		}
		resp.Trees = append(resp.Trees, summary)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetTree handles GET /trees/{id}
func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	t, err := s.service.GetTree(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, treeResponse(t))
}

// handleDeleteTree handles DELETE /trees/{id}
func (s *Server) handleDeleteTree(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteTree(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetProof handles POST /trees/{id}/proof
func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	var req types.ProofRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	treeID := r.PathValue("id")

	var (
		proof *Proof
		err   error
	)
	switch {
	case req.Address != "":
		proof, err = s.service.ProofForAddress(r.Context(), treeID, req.Address)
	case req.Index != nil:
		proof, err = s.service.ProofForIndex(r.Context(), treeID, *req.Index)
	default:
		err = fmt.Errorf("%w: address or index is required", ErrInvalidRequest)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, proofResponse(proof))
}

// handleGetAllProofs handles GET /trees/{id}/proofs
func (s *Server) handleGetAllProofs(w http.ResponseWriter, r *http.Request) {
	t, proofs, err := s.service.AllProofs(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := types.AllProofsResponse{
		TreeID: t.Session.ID,
		Root:   t.Merkle.Root(),
		Proofs: make([]types.ProofResponse, len(proofs)),
	}
	for i, p := range proofs {
		resp.Proofs[i] = proofResponse(p)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleVerify handles POST /verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	proof := req.Proof
	if proof == nil {
		proof = []common.Hash{}
	}

	var resp types.VerifyResponse
	switch {
	case req.Address != "":
		leaf, valid, err := s.service.VerifyAddress(req.Address, proof, req.Root)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if req.Leaf != nil && *req.Leaf != leaf {
			s.writeError(w, fmt.Errorf("%w: leaf does not match address", ErrInvalidRequest))
			return
		}
		resp = types.VerifyResponse{Valid: valid, Leaf: leaf}
	case req.Leaf != nil:
		resp = types.VerifyResponse{Valid: merkle.VerifyProof(*req.Leaf, proof, req.Root), Leaf: *req.Leaf}
	default:
		s.writeError(w, fmt.Errorf("%w: address or leaf is required", ErrInvalidRequest))
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.HealthCheck(); err != nil {
		s.logger.Sugar().Warnw("Health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, types.ErrorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok"})
}

// decodeBody decodes a JSON request body into v, bounded by the identifier
// limit. It writes the error response itself and reports whether to go on.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if maxIDs := s.service.config.MaxIdentifiers; maxIDs > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(maxIDs)*bytesPerAddress+requestBodySlack)
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, types.ErrorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
			})
			return false
		}
		s.writeJSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error: fmt.Sprintf("failed to parse request: %v", err),
		})
		return false
	}
	return true
}

// statusForError maps service and engine errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrTreeNotFound), errors.Is(err, ErrAddressNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManyIdentifiers):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, merkle.ErrIndexOutOfRange),
		errors.Is(err, merkle.ErrEmptyTree):
		return http.StatusBadRequest
	case errors.Is(err, persistence.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, types.ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Sugar().Warnw("Failed to encode response", "error", err)
	}
}

func treeResponse(t *Tree) types.TreeResponse {
	resp := types.TreeResponse{
		TreeID:    t.Session.ID,
		LeafCount: t.Merkle.LeafCount(),
		Depth:     t.Merkle.Depth(),
		Levels:    t.Merkle.Levels(),
		Addresses: t.Session.Addresses,
		CreatedAt: t.Session.CreatedAt,
	}
	if t.Merkle.HasRoot() {
		root := t.Merkle.Root()
		resp.Root = &root
	}
	return resp
}

func proofResponse(p *Proof) types.ProofResponse {
	siblings := p.Proof
	if siblings == nil {
		siblings = []common.Hash{}
	}
	return types.ProofResponse{
		TreeID:  p.TreeID,
		Index:   p.LeafIndex,
		Address: identifier.Format(p.Identifier),
		Leaf:    p.Leaf,
		Proof:   siblings,
		Root:    p.Root,
	}
}
