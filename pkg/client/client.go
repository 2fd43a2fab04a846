package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every request unless WithTimeout or WithHTTPClient
// says otherwise.
const DefaultTimeout = 15 * time.Second

// Observer receives one call per completed HTTP exchange. status is 0 when
// the request never produced a response.
type Observer interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Client is the takedown API entry point. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	observer   Observer
	retries    int

	// onExpired is invoked once per rejected token.
	onExpired func(err error)

	// guarded by mu
	mu          sync.RWMutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// WithBearerToken attaches a previously obtained session token.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
// rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		if rps <= 0 {
			c.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithRetries sets how many times idempotent reads are retried after a
// transport error or 5xx response.
func WithRetries(n int) Option {
	return func(c *Client) error {
		if n < 0 {
			return fmt.Errorf("retries must not be negative, got %d", n)
		}
		c.retries = n
		return nil
	}
}

// WithObserver records request metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) error {
		c.observer = o
		return nil
	}
}

// WithSessionExpiredHook registers fn to be called whenever the backend
// rejects the bearer token. The session store uses it to force a logout.
func WithSessionExpiredHook(fn func(err error)) Option {
	return func(c *Client) error {
		c.onExpired = fn
		return nil
	}
}

// New creates a Client for the API rooted at baseURL.
//
//	c, err := client.New("http://localhost:3001",
//	    client.WithTimeout(10*time.Second),
//	    client.WithRetries(2),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("base URL is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken replaces the bearer token. An empty token makes subsequent
// requests anonymous.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.bearerToken = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearerToken
}

// call describes one API exchange. route is the templated path used as a
// metrics label, path the concrete one.
type call struct {
	method string
	route  string
	path   string
	body   any
	auth   bool
}

// send executes the call and returns the response body. Reads are retried
// with backoff; writes are attempted exactly once.
func (c *Client) send(ctx context.Context, cl call) ([]byte, error) {
	if cl.method != http.MethodGet || c.retries == 0 {
		return c.sendOnce(ctx, cl)
	}

	var body []byte
	err := retry.Do(
		func() error {
			b, err := c.sendOnce(ctx, cl)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.retries+1)),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying request",
				zap.String("route", cl.route),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	return body, err
}

// retryable reports whether a read may be repeated: transport failures and
// 5xx responses only.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return errors.Is(err, ErrRequestFailed)
}

func (c *Client) sendOnce(ctx context.Context, cl call) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrRequestFailed, err)
		}
	}

	var bodyReader io.Reader
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	token := ""
	if cl.auth {
		token = c.Token()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(cl, 0, elapsed)
		c.logger.Debug("request failed",
			zap.String("method", cl.method),
			zap.String("path", cl.path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, cl.method, cl.path, err)
	}
	defer resp.Body.Close()
	c.observe(cl, resp.StatusCode, elapsed)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRequestFailed, err)
	}

	c.logger.Debug("request",
		zap.String("method", cl.method),
		zap.String("path", cl.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	apiErr := newAPIError(resp.StatusCode, body)
	if token != "" &&
		(resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) &&
		mentionsToken(apiErr.Message) {
		apiErr.kind = ErrSessionExpired
		if c.onExpired != nil {
			c.onExpired(apiErr)
		}
	}
	return nil, apiErr
}

func (c *Client) observe(cl call, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(cl.method, cl.route, status, elapsed)
	}
}

// sendJSON executes the call and decodes a JSON response into out. An empty
// body leaves out untouched.
func (c *Client) sendJSON(ctx context.Context, cl call, out any) error {
	body, err := c.send(ctx, cl)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrRequestFailed, cl.route, err)
	}
	return nil
}

// decodeCollection decodes either a JSON array or an object keyed by id.
// For objects, setKey is called with the map key so records lacking an id
// can inherit it. Map entries come back ordered by key.
func decodeCollection[T any](body []byte, setKey func(*T, string)) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	if body[0] == '[' {
		var out []T
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var byKey map[string]T
	if err := json.Unmarshal(body, &byKey); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int { return ID(a).Compare(ID(b)) })
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		v := byKey[k]
		if setKey != nil {
			setKey(&v, k)
		}
		out = append(out, v)
	}
	return out, nil
}
