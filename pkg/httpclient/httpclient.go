package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
	"github.com/R3E-Network/r3e-faas-go/pkg/retry"
)

// RetryConfig holds configuration for HTTP retry operations
type RetryConfig struct {
	RetryConfig     *retry.Config
	Timeout         time.Duration
	IdleConnTimeout time.Duration
	MaxResponseSize int64 // Maximum response size to read for error messages
}

// DefaultRetryConfig returns default configuration for HTTP retry operations
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		RetryConfig:     retry.DefaultConfig(),
		Timeout:         10 * time.Second,
		IdleConnTimeout: 30 * time.Second,
		MaxResponseSize: 4096,
	}
}

// Validate checks the HTTP configuration for reasonable values
func (c *RetryConfig) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.IdleConnTimeout <= 0 {
		return fmt.Errorf("idleConnTimeout must be positive")
	}
	if c.MaxResponseSize < 0 {
		return fmt.Errorf("maxResponseSize must be >= 0")
	}
	return nil
}

// HTTPError represents an HTTP-specific error with status code
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client is a wrapper around http.Client that includes retry logic
type Client struct {
	client *http.Client
	config *RetryConfig
	logger logging.Logger
}

// NewClient creates a new HTTP client with retry capabilities
func NewClient(config *RetryConfig, logger logging.Logger) (*Client, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid HTTP retry config: %w", err)
	}

	if config.RetryConfig.ShouldRetry == nil {
		config.RetryConfig.ShouldRetry = func(err error, attempt int) bool {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				// Retry on 5xx and 429 only.
				return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
			}
			// Network errors and the like are assumed retryable.
			return true
		}
	}

	client := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			IdleConnTimeout:   config.IdleConnTimeout,
			DisableKeepAlives: false,
			DialContext: (&net.Dialer{
				Timeout:   config.Timeout / 2,
				KeepAlive: config.IdleConnTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   config.Timeout / 2,
			ResponseHeaderTimeout: config.Timeout / 2,
		},
	}

	return &Client{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// DoWithRetry executes the request, retrying per the configured policy.
// The request body, if any, is buffered so it can be replayed on retry.
func (c *Client) DoWithRetry(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		_ = req.Body.Close()
	}

	operation := func() (*http.Response, error) {
		attempt := req.Clone(req.Context())
		if bodyBytes != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			attempt.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.client.Do(attempt)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 400 {
			msg := c.readErrorBody(resp)
			_ = resp.Body.Close()
			return nil, &HTTPError{StatusCode: resp.StatusCode, Message: msg}
		}
		return resp, nil
	}

	return retry.Retry(req.Context(), operation, c.config.RetryConfig, c.logger)
}

// Do executes the request once, without retries.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

func (c *Client) readErrorBody(resp *http.Response) string {
	limit := c.config.MaxResponseSize
	if limit == 0 {
		return resp.Status
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil || len(body) == 0 {
		return resp.Status
	}
	return string(body)
}
