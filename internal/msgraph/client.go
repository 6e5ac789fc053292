package msgraph

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/mailgraph/internal/errors"
)

const (
	// DefaultBaseURL is the Graph v1.0 service root
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultMaxAttempts is the attempt budget of one logical request
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the fixed pause between attempts
	DefaultRetryDelay = 2 * time.Second
)

// Graph error codes signalling that the bearer token must be replaced
var expiredTokenCodes = map[string]bool{
	"InvalidAuthenticationToken":  true,
	"Authentication_ExpiredToken": true,
}

// ClientConfig tunes a Client. Zero values select the defaults.
type ClientConfig struct {
	BaseURL     string
	HTTPClient  *http.Client
	RateLimit   float64 // Requests per second, 0 disables pacing
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *slog.Logger

	// Sleep waits between attempts; tests replace it to observe delays
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is an authenticated Graph API client.
//
// The access token moves between two states: absent and cached. It is
// acquired lazily on first use and dropped when an attempt observes an
// expired or invalid token; the replacement is acquired under mu before the
// next attempt is sent, so no request ever reads a token mid-refresh.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      TokenProvider
	limiter     *rate.Limiter
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a Graph client that authenticates with tokens
func NewClient(tokens TokenProvider, cfg ClientConfig) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  cfg.HTTPClient,
		tokens:      tokens,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		sleep:       cfg.Sleep,
		logger:      cfg.Logger,
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.retryDelay == 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "msgraph")
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return c
}

// responseError is an HTTP failure that has not been classified yet
type responseError struct {
	Status  int
	Code    string
	Message string
}

func (e *responseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph API returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("graph API returned %d: %s", e.Status, e.Message)
}

// Validate forces one token acquisition
func (c *Client) Validate(ctx context.Context) error {
	if err := c.refreshToken(ctx); err != nil {
		var appErr *errors.Error
		if stderrors.As(err, &appErr) {
			return err
		}
		return errors.AuthenticationError(err, "failed to acquire access token")
	}
	return nil
}

// accessToken returns the cached token, acquiring one if absent
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return "", err
		}
		c.token = token
		c.logger.Debug("acquired access token")
	}
	return c.token, nil
}

// refreshToken drops the cached token and acquires a new one
func (c *Client) refreshToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	c.token = token
	return nil
}

// Request performs one logical GET and classifies the final failure.
// A 404 yields (nil, nil): the resource is absent and the caller moves on.
func (c *Client) Request(ctx context.Context, endpoint string) ([]byte, error) {
	target := c.resolve(endpoint)

	body, err := c.retryRequest(ctx, target)
	if err == nil {
		return body, nil
	}
	return nil, c.classify(target, err)
}

func (c *Client) retryRequest(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	refresh := false

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return nil, err
			}
		}

		if refresh {
			c.logger.Info("refreshing access token", "endpoint", target)
			if err := c.refreshToken(ctx); err != nil {
				lastErr = err
				c.logger.Warn("access token refresh failed",
					"endpoint", target,
					"attempt", attempt,
					"error", err,
				)
				continue
			}
			refresh = false
		}

		body, err := c.get(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err

		c.logger.Info("encountered retryable error in graph API",
			"endpoint", target,
			"attempt", attempt,
			"attempts_remaining", c.maxAttempts-attempt,
			"error", err,
		)

		if isExpiredToken(err) {
			refresh = true
		}
	}

	return nil, lastErr
}

// get performs a single attempt
func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.InternalErrorf("build request for %s: %v", target, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.TransportError(err, target)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.TransportError(err, target)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, parseResponseError(resp.StatusCode, body)
	}
	return body, nil
}

// classify maps the last attempt's failure onto the error taxonomy
func (c *Client) classify(endpoint string, err error) error {
	var re *responseError
	if !stderrors.As(err, &re) {
		c.logger.Warn("encountered fetch error in graph client", "endpoint", endpoint, "error", err)
		return err
	}

	switch re.Status {
	case http.StatusForbidden:
		c.logger.Warn("encountered auth error in graph client", "endpoint", endpoint, "error", err)
		return errors.AuthorizationError(endpoint, re.Status, re.Code, re.Message)
	case http.StatusNotFound:
		c.logger.Warn("resource not found, continuing", "endpoint", endpoint)
		return nil
	default:
		c.logger.Warn("encountered error in graph client", "endpoint", endpoint, "error", err)
		return errors.APIError(endpoint, re.Status, re.Code, re.Message)
	}
}

func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "https://") || strings.HasPrefix(endpoint, "http://") {
		return endpoint
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// iterate walks a paginated listing, following @odata.nextLink until absent.
// A listing that is not found yields no items.
func (c *Client) iterate(ctx context.Context, endpoint string, fn func(raw json.RawMessage) error) error {
	next := endpoint
	for next != "" {
		body, err := c.Request(ctx, next)
		if err != nil {
			return err
		}
		if body == nil {
			return nil
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return errors.APIError(c.resolve(next), http.StatusOK, "", fmt.Sprintf("decode page: %v", err))
		}

		for _, raw := range p.Value {
			if err := fn(raw); err != nil {
				return err
			}
		}
		next = p.NextLink
	}
	return nil
}

func parseResponseError(status int, body []byte) *responseError {
	re := &responseError{Status: status}
	if gjson.ValidBytes(body) {
		re.Code = gjson.GetBytes(body, "error.code").String()
		re.Message = gjson.GetBytes(body, "error.message").String()
	}
	if re.Message == "" {
		re.Message = http.StatusText(status)
	}
	return re
}

func isExpiredToken(err error) bool {
	var re *responseError
	if !stderrors.As(err, &re) {
		return false
	}
	return re.Status == http.StatusUnauthorized || expiredTokenCodes[re.Code]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
