package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/maauso/portal-listings/internal/entity"
)

// Static errors for portal client operations.
var (
	// ErrBaseURLRequired is returned when the backend base URL is not provided.
	ErrBaseURLRequired = errors.New("portal: base URL is required")
	// ErrIDRequired is returned when an entity ID is not provided.
	ErrIDRequired = errors.New("portal: entity ID is required")
	// ErrUserIDRequired is returned when a per-user call has no user ID.
	ErrUserIDRequired = errors.New("portal: user ID is required")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("portal: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("portal: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("portal: request failed")
	// ErrUnauthorized is returned on 401 and 403 responses.
	ErrUnauthorized = errors.New("portal: unauthorized")
)

// Client defines the interface for interacting with the portal backend.
type Client interface {
	// List returns the normalized, deduplicated collection for a type.
	List(ctx context.Context, t entity.Type, scope Scope) ([]entity.Entity, error)

	// Saved returns the records a user has saved.
	Saved(ctx context.Context, t entity.Type, userID string) ([]entity.Entity, error)

	// SavedIDs returns the IDs a user has saved.
	SavedIDs(ctx context.Context, t entity.Type, userID string) ([]string, error)

	// Save adds an entity to the caller's saved list.
	Save(ctx context.Context, t entity.Type, id string) error

	// Unsave removes an entity from the caller's saved list.
	Unsave(ctx context.Context, t entity.Type, id string) error

	// IncrementViewCount records one view of an entity.
	IncrementViewCount(ctx context.Context, id string) error
}

type tokenKey struct{}

// ContextWithToken attaches the caller's bearer token to ctx. Requests made
// with that context authenticate as the caller.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// HTTPClient is the HTTP implementation of the portal Client interface.
type HTTPClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	timeout     time.Duration
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithToken sets a fallback token used when the context carries none.
func WithToken(token string) ClientOption {
	return func(hc *HTTPClient) {
		hc.token = token
	}
}

// WithHTTPClient sets a custom HTTP client. A nil client keeps the default.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// HTTP client, so a client passed with WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.timeout = d
	}
}

// WithRateLimit caps outbound requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(hc *HTTPClient) {
		if rps <= 0 {
			hc.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		hc.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
// The default is zero: failed fetches surface immediately.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new portal HTTP client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  0,
		baseBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}

	return c, nil
}

// List returns the collection for t from the published or managed endpoint.
func (c *HTTPClient) List(ctx context.Context, t entity.Type, scope Scope) ([]entity.Entity, error) {
	path, err := listPath(t, scope)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequestWithRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	entities, err := entity.DecodeList(t, body)
	if err != nil {
		return nil, fmt.Errorf("portal: decode %s: %w", path, err)
	}
	return entities, nil
}

// Saved returns the full records a user has saved.
func (c *HTTPClient) Saved(ctx context.Context, t entity.Type, userID string) ([]entity.Entity, error) {
	body, err := c.savedBody(ctx, t, userID)
	if err != nil {
		return nil, err
	}

	entities, err := entity.DecodeList(t, body)
	if err != nil {
		return nil, fmt.Errorf("portal: decode saved %s: %w", t.Plural(), err)
	}
	return entities, nil
}

// SavedIDs returns the IDs a user has saved.
func (c *HTTPClient) SavedIDs(ctx context.Context, t entity.Type, userID string) ([]string, error) {
	body, err := c.savedBody(ctx, t, userID)
	if err != nil {
		return nil, err
	}

	ids, err := entity.DecodeIDs(t, body)
	if err != nil {
		return nil, fmt.Errorf("portal: decode saved %s: %w", t.Plural(), err)
	}
	return ids, nil
}

func (c *HTTPClient) savedBody(ctx context.Context, t entity.Type, userID string) ([]byte, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownType, t)
	}
	return c.doRequestWithRetry(ctx, http.MethodGet, savedListPath(t, userID), nil)
}

// Save adds an entity to the caller's saved list.
func (c *HTTPClient) Save(ctx context.Context, t entity.Type, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	return c.toggle(ctx, savePath(t, id))
}

// Unsave removes an entity from the caller's saved list.
func (c *HTTPClient) Unsave(ctx context.Context, t entity.Type, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	return c.toggle(ctx, unsavePath(t, id))
}

func (c *HTTPClient) toggle(ctx context.Context, path string) error {
	body, err := c.doRequestWithRetry(ctx, http.MethodPost, path, []byte("{}"))
	if err != nil {
		return err
	}

	// Some backend versions answer 200 with an error field.
	var resp toggleResponse
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &resp) == nil && resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return nil
}

// IncrementViewCount records one view of an entity.
func (c *HTTPClient) IncrementViewCount(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	_, err := c.doRequestWithRetry(ctx, http.MethodPost, viewCountPath(id), []byte("{}"))
	return err
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("portal: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		respBody, err := c.doRequest(ctx, method, path, body)
		if err == nil {
			return respBody, nil
		}

		if !isRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	if c.maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("portal: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request and returns the response body.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("portal: rate limiter: %w", err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("portal: create request: %w", err)
	}

	token := tokenFromContext(ctx)
	if token == "" {
		token = c.token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("portal: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("portal: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		switch {
		case resp.StatusCode >= 500:
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w with status %d", ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
