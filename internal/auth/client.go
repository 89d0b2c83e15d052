package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

const loginSuccessMessage = "Login successful"

// Credentials are the login form fields
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest are the registration form fields
type SignupRequest struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the fields the account service requires
func (r SignupRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return fmt.Errorf("invalid email address %q", r.Email)
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// Error is a failure reported by the account service
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth request failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "auth request failed: " + e.Message
}

// Client calls the signup and login endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithLogger configures structured logging.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithTimeout sets a timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpClient.Timeout = d }
}

// NewClient creates a Client for the account service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type accountResponse struct {
	Message  string `json:"message"`
	Token    string `json:"token"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Error    string `json:"error"`
}

// Signup registers a new account. It does not sign the user in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var resp accountResponse
	if err := c.doJSON(ctx, "/signup", req, &resp); err != nil {
		return "", err
	}
	if resp.Message == "" {
		resp.Message = "Signup successful"
	}
	return resp.Message, nil
}

// Login signs in and returns the session context. When the service does not issue a
// token, a random local token is used so the session still gates access.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Context, error) {
	if creds.Email == "" || creds.Password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	var resp accountResponse
	if err := c.doJSON(ctx, "/login", creds, &resp); err != nil {
		return nil, err
	}

	if resp.Token == "" && resp.Message != loginSuccessMessage {
		msg := resp.Message
		if msg == "" {
			msg = "login rejected"
		}
		return nil, &Error{Message: msg}
	}

	session := &Context{
		Token:    resp.Token,
		Username: resp.Username,
		Email:    resp.Email,
	}
	if session.Token == "" {
		session.Token = "local-" + uuid.NewString()
		c.logger.DebugContext(ctx, "login response had no token, issued local token")
	}
	if session.Email == "" {
		session.Email = creds.Email
	}
	if session.Username == "" {
		session.Username = session.Email
	}

	c.logger.InfoContext(ctx, "signed in", "username", session.Username)
	return session, nil
}

func (c *Client) doJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Message: fmt.Sprintf("account service unreachable: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var parsed accountResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Error
		if msg == "" {
			msg = resp.Status
		}
		return &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	if parsed.Error != "" {
		return &Error{StatusCode: resp.StatusCode, Message: parsed.Error}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
