//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"golang.org/x/time/rate"
)

// Client fetches files from the bundle folder over HTTP with a polite
// request rate and a per-call timeout.
type Client struct {
	// httpClient is the underlying HTTP client.
	httpClient *http.Client
	// limiter paces requests against the hosting folder.
	limiter *rate.Limiter
	// baseURL is the bundle folder all fetches are relative to.
	baseURL *url.URL

	// callTimeout is the default timeout for individual fetches.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for individual fetches.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithRateLimit overrides the requests-per-second pacing.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

const (
	// defaultRequestsPerSecond paces fetches; bundle folders are often plain
	// static hosting, so the client stays polite by default.
	defaultRequestsPerSecond = 4.0

	// defaultCallTimeout bounds a single file fetch.
	defaultCallTimeout = 30 * time.Second
)

var (
	// errFolderRequired is returned when a required folder URL is missing.
	errFolderRequired = errors.New("bundle folder must be provided")
	// errBadHTTPStatus is returned for any response other than 200 OK.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// NewClient builds a client for the provided bundle folder URL.
func NewClient(folder string, opts ...Option) (*Client, error) {
	if folder == "" {
		return nil, errFolderRequired
	}

	baseURL, err := url.Parse(folder)
	if err != nil {
		return nil, fmt.Errorf("parse bundle folder: %w", err)
	}

	client := &Client{
		httpClient:  http.DefaultClient,
		limiter:     rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		baseURL:     baseURL,
		callTimeout: defaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// FetchFile downloads a single file from the bundle folder and returns its contents.
func (c *Client) FetchFile(ctx context.Context, fileName string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for request slot: %w", err)
	}

	fileURL := *c.baseURL
	// Use path.Join to normalize duplicate slashes when composing the URL path.
	fileURL.Path = path.Join(fileURL.Path, fileName)
	finalURL := fileURL.String()

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, errBadHTTPStatus)
	}

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}

	return contents, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
