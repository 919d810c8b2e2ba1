// Package api provides the client for the ACE Orbit chat backend.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"go.uber.org/zap"

	"github.com/diogo/aceorbit/internal/logging"
	"github.com/diogo/aceorbit/internal/models"
)

// HTTPDoer is the part of an HTTP client the backend client needs.
// tls_client.HttpClient satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Backend is the chat backend contract used by the session
type Backend interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Client talks to the ACE Orbit backend over HTTP
type Client struct {
	httpClient HTTPDoer
	baseURL    string
	timeout    time.Duration
	logger     *zap.Logger
	newID      func() string
}

var _ Backend = (*Client)(nil)

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithBaseURL sets the backend base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the default TLS client
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithTimeout bounds each request
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// withRequestIDs overrides request ID generation (for testing)
func withRequestIDs(f func() string) ClientOption {
	return func(c *Client) {
		c.newID = f
	}
}

// NewClient creates a new backend client
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		baseURL: models.DefaultBackendURL,
		timeout: 30 * time.Second,
		logger:  zap.NewNop(),
		newID:   newRequestID,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		options := []tls_client.HttpClientOption{
			tls_client.WithTimeoutSeconds(int(client.timeout / time.Second)),
			tls_client.WithClientProfile(profiles.Chrome_120),
		}

		httpClient, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		client.httpClient = httpClient
	}

	return client, nil
}

// BaseURL returns the configured backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// withTimeout derives a request context bounded by the client timeout
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
