// Package api is the HTTP client for the share server: upload, file-info,
// preview, download and delete.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/sharedrop/sharedrop/internal/config"
	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/http"
	"github.com/sharedrop/sharedrop/internal/logging"
	"github.com/sharedrop/sharedrop/internal/version"
)

// retryLogger implements the retryablehttp.LeveledLogger interface on top of zerolog
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Request-level info lines are too noisy for the CLI
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// Client talks to one share server.
//
// Two HTTP clients are kept: GET requests (file-info, preview, download) go
// through go-retryablehttp, which retries only when max_retries > 0. Uploads
// and deletes use the plain transfer client and are never retried; a streamed
// upload body cannot be replayed without buffering the whole file.
type Client struct {
	httpClient     *nethttp.Client
	transferClient *nethttp.Client
	config         *config.Config
	baseURL        string
	logger         *logging.Logger
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, fmt.Errorf("server URL is empty: set it with --server, %s or 'sharedrop config init'", config.EnvServerURL)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	transferClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = transferClient
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = constants.RetryWaitMin
	retryClient.RetryWaitMax = constants.RetryWaitMax
	retryClient.Logger = &retryLogger{logger: logger}
	// Hand back the last response instead of a generic "giving up" error so
	// status codes and server messages reach the caller
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		httpClient:     retryClient.StandardClient(),
		transferClient: transferClient,
		config:         cfg,
		baseURL:        strings.TrimSuffix(cfg.ServerURL, "/"),
		logger:         logger,
	}, nil
}

// GetConfig returns the configuration used by this API client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the transfer client so the real-time dialer and remote
// drop sources share the same proxy configuration.
func (c *Client) HTTPClient() *nethttp.Client {
	return c.transferClient
}

func (c *Client) endpoint(route, fileID string) string {
	return c.baseURL + route + url.PathEscape(fileID)
}

// doGet performs a retryable GET and returns the response when its status is 200.
func (c *Client) doGet(ctx context.Context, op, rawURL string) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	return c.do(c.httpClient, op, req)
}

func (c *Client) do(client *nethttp.Client, op string, req *nethttp.Request) (*nethttp.Response, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.logger.Debug().Str("op", op).Str("url", req.URL.Redacted()).Err(err).Msg("request failed")
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return nil, &TransportError{Op: op, Err: err}
	}

	c.logger.Debug().
		Str("op", op).
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request complete")

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Message: errorMessage(body)}
	}
	return resp, nil
}
