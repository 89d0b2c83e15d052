// Package predict submits feature records to the remote risk prediction service.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a3tai/cardiopredict/internal/auth"
	"github.com/a3tai/cardiopredict/internal/features"
)

// Request shapes understood by the prediction endpoint
const (
	ShapeWrapped = "wrapped" // {"data": {...}, "email": "..."}
	ShapeFlat    = "flat"    // {...}
)

const maxResponseSize = 4 * 1024 * 1024

// SubmissionError reports a failed submission. The message is shown to the user
// verbatim and no partial result is kept.
type SubmissionError struct {
	StatusCode int // zero for transport failures
	Message    string
	Err        error
}

// Error implements the error interface
func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("prediction request failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("prediction request failed: %s", e.Message)
}

// Unwrap returns the underlying cause
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Client sends final records to the prediction endpoint
type Client struct {
	url        string
	shape      string
	session    *auth.Context
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*clientConfig) error

type clientConfig struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	shape      string
	session    *auth.Context
}

// New creates a Client for the given endpoint URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("predict: endpoint is required")
	}

	cfg := &clientConfig{shape: ShapeWrapped}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		url:        endpoint,
		shape:      cfg.shape,
		session:    cfg.session,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) error {
		cfg.timeout = d
		return nil
	}
}

// WithShape selects the request body shape.
func WithShape(shape string) Option {
	return func(cfg *clientConfig) error {
		switch shape {
		case ShapeWrapped, ShapeFlat:
			cfg.shape = shape
			return nil
		default:
			return fmt.Errorf("predict: unknown request shape %q", shape)
		}
	}
}

// WithSession attaches the signed-in user's session. Its token is sent as a bearer
// token and, for the wrapped shape, its email lets the service keep history.
func WithSession(s *auth.Context) Option {
	return func(cfg *clientConfig) error {
		cfg.session = s
		return nil
	}
}

// Submit sends record in a single request and returns the per-disease results.
// There is no retry; callers re-trigger submission themselves.
func (c *Client) Submit(ctx context.Context, record features.Record) (*Result, error) {
	body, err := c.encode(record)
	if err != nil {
		return nil, &SubmissionError{Message: "could not encode record", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &SubmissionError{Message: "could not create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.session.Authenticated() {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}

	c.logger.InfoContext(ctx, "prediction request", "url", c.url, "features", len(record), "shape", c.shape)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SubmissionError{Message: "prediction service unreachable", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Message: "could not read response", Err: err}
	}

	c.logger.DebugContext(ctx, "prediction response", "status", resp.StatusCode, "bytes", len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Message: errorMessage(respBody, resp.Status)}
	}

	result, err := parseResponse(respBody)
	if err != nil {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	if failed := result.Failed(); len(failed) > 0 {
		c.logger.WarnContext(ctx, "some predictions unavailable", "failed", len(failed), "total", len(result.Predictions))
	}

	return result, nil
}

func (c *Client) encode(record features.Record) ([]byte, error) {
	if c.shape == ShapeFlat {
		return json.Marshal(record)
	}

	payload := struct {
		Data  features.Record `json:"data"`
		Email string          `json:"email,omitempty"`
	}{Data: record}
	if c.session != nil {
		payload.Email = c.session.Email
	}
	return json.Marshal(payload)
}

// errorMessage prefers the service's own error field over the HTTP status text
func errorMessage(body []byte, status string) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) < 200 {
		return s
	}
	return status
}
