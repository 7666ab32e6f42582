// Package client is a Go client for the merkle allowlist HTTP service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-allowlist-go/pkg/types"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

const defaultRequestTimeout = 30 * time.Second

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("merkle service returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ClientConfig holds the configuration for the merkle client
type ClientConfig struct {
	// BaseURL is the service root, e.g. http://localhost:8080
	BaseURL string
	Logger  *zap.Logger

	// HTTPClient defaults to a client with a 30s timeout
	HTTPClient *http.Client

	// Retry defaults to DefaultRetryConfig
	Retry *RetryConfig
}

// Client talks to a merkle allowlist service
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *zap.Logger
}

// NewClient creates a new client instance
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid base URL %q", config.BaseURL)
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	retry := DefaultRetryConfig
	if config.Retry != nil {
		retry = *config.Retry
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		httpClient:  httpClient,
		retryConfig: retry,
		logger:      config.Logger,
	}, nil
}

// BuildTree builds and stores a tree over addresses, in order.
func (c *Client) BuildTree(ctx context.Context, addresses []string) (*types.TreeResponse, error) {
	var resp types.TreeResponse
	req := types.BuildTreeRequest{Addresses: addresses}
	if err := c.do(ctx, http.MethodPost, "/trees", req, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to build tree over %d addresses", len(addresses))
	}
	return &resp, nil
}

// ListTrees lists the stored trees, oldest first.
func (c *Client) ListTrees(ctx context.Context) (*types.TreeListResponse, error) {
	var resp types.TreeListResponse
	if err := c.do(ctx, http.MethodGet, "/trees", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list trees")
	}
	return &resp, nil
}

// GetTree fetches a stored tree with all of its levels.
func (c *Client) GetTree(ctx context.Context, treeID string) (*types.TreeResponse, error) {
	var resp types.TreeResponse
	if err := c.do(ctx, http.MethodGet, treePath(treeID), nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get tree %s", treeID)
	}
	return &resp, nil
}

// DeleteTree removes a stored tree.
func (c *Client) DeleteTree(ctx context.Context, treeID string) error {
	if err := c.do(ctx, http.MethodDelete, treePath(treeID), nil, nil); err != nil {
		return errors.Wrapf(err, "failed to delete tree %s", treeID)
	}
	return nil
}

// GetProof fetches the proof for the leaf selected by req.
func (c *Client) GetProof(ctx context.Context, treeID string, req *types.ProofRequest) (*types.ProofResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("proof request cannot be nil")
	}
	var resp types.ProofResponse
	if err := c.do(ctx, http.MethodPost, treePath(treeID)+"/proof", req, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get proof from tree %s", treeID)
	}
	return &resp, nil
}

// GetProofByAddress fetches the proof for the first leaf built from address.
func (c *Client) GetProofByAddress(ctx context.Context, treeID, address string) (*types.ProofResponse, error) {
	return c.GetProof(ctx, treeID, &types.ProofRequest{Address: address})
}

// GetProofByIndex fetches the proof for the leaf at index.
func (c *Client) GetProofByIndex(ctx context.Context, treeID string, index int) (*types.ProofResponse, error) {
	return c.GetProof(ctx, treeID, &types.ProofRequest{Index: &index})
}

// GetAllProofs fetches one proof per leaf.
func (c *Client) GetAllProofs(ctx context.Context, treeID string) (*types.AllProofsResponse, error) {
	var resp types.AllProofsResponse
	if err := c.do(ctx, http.MethodGet, treePath(treeID)+"/proofs", nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to get proofs from tree %s", treeID)
	}
	return &resp, nil
}

// Verify asks the service to check a proof.
func (c *Client) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("verify request cannot be nil")
	}
	var resp types.VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/verify", req, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to verify proof")
	}
	return &resp, nil
}

// Health checks the service's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var resp types.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return errors.Wrap(err, "health check failed")
	}
	return nil
}

func treePath(treeID string) string {
	return "/trees/" + url.PathEscape(treeID)
}

// do sends a JSON request and decodes the JSON response into out, retrying
// transport errors, 429 and 5xx responses with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		payload = data
	}

	backoff := c.retryConfig.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		retryable, err := c.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			return err
		}

		if attempt < c.retryConfig.MaxAttempts-1 {
			c.logger.Sugar().Debugw("Retrying request",
				"method", method,
				"path", path,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}

			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}
	}

	return errors.Wrapf(lastErr, "giving up after %d attempts", c.retryConfig.MaxAttempts)
}

// attempt performs a single request and reports whether a failure is worth retrying.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out interface{}) (bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, errors.Wrap(err, "failed to create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, errors.Wrap(err, "failed to decode response")
		}
		return false, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var errResp types.ErrorResponse
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
	} else if msg := strings.TrimSpace(string(data)); msg != "" {
		apiErr.Message = msg
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
	return retryable, apiErr
}
