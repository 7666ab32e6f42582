package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port      int
	RateLimit float64 // requests per second per client, 0 disables limiting
	RateBurst int
}

/*
Server exposes a TreeService over HTTP.

	POST   /trees             build and store a tree from an address list
	GET    /trees             list stored trees
	GET    /trees/{id}        rebuild a stored tree, all levels included
	DELETE /trees/{id}        drop a stored tree
	POST   /trees/{id}/proof  proof for one leaf, selected by address or index
	GET    /trees/{id}/proofs proofs for every leaf
	POST   /verify            check a proof against a root, no stored state
	GET    /healthz           session store health

Every non-2xx response carries a JSON ErrorResponse body.
*/
type Server struct {
	service    *TreeService
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer creates a new server instance
func NewServer(svc *TreeService, cfg *ServerConfig, logger *zap.Logger) *Server {
	s := &Server{
		service: svc,
		logger:  logger,
	}

	mux := http.NewServeMux()

	// Tree endpoints
	mux.HandleFunc("POST /trees", s.handleBuildTree)
	mux.HandleFunc("GET /trees", s.handleListTrees)
	mux.HandleFunc("GET /trees/{id}", s.handleGetTree)
	mux.HandleFunc("DELETE /trees/{id}", s.handleDeleteTree)

	// Proof endpoints
	mux.HandleFunc("POST /trees/{id}/proof", s.handleGetProof)
	mux.HandleFunc("GET /trees/{id}/proofs", s.handleGetAllProofs)
	mux.HandleFunc("POST /verify", s.handleVerify)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	var handler http.Handler = mux
	if cfg.RateLimit > 0 {
		handler = newRateLimiter(cfg.RateLimit, cfg.RateBurst, logger).middleware(handler)
	}
	handler = requestLogger(logger, handler)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
