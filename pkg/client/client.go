// Package client provides the authenticated request pipeline of the
// storefront client: per-request public/private classification, bearer and
// anti-forgery header attachment, response caching with deduplication, and
// uniform handling of authentication failure.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/phuocvo832004/storefront-client/pkg/auth"
	"github.com/phuocvo832004/storefront-client/pkg/cache"
	"github.com/phuocvo832004/storefront-client/pkg/logging"
)

// Config holds the pipeline configuration.
type Config struct {
	// BaseURL is the API origin (e.g., "https://api.shop.example.com").
	BaseURL string

	// APIPrefix is the version prefix joined to every endpoint path.
	APIPrefix string

	// CacheTTL is the TTL for generic cached reads.
	CacheTTL time.Duration

	// CartCacheTTL is the shorter TTL for cart reads, which go stale fast.
	CartCacheTTL time.Duration

	// RequestTimeout bounds every outbound call.
	RequestTimeout time.Duration

	// CSRFEndpoint is the cookie-setting anti-forgery endpoint, resolved
	// against BaseURL outside the API prefix.
	CSRFEndpoint string

	// Rules classify public vs protected paths. Zero value means
	// auth.DefaultRules.
	Rules auth.Rules

	// Retry applies to network errors on reads only.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration for the given origin.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		APIPrefix:      "/api/v1",
		CacheTTL:       5 * time.Minute,
		CartCacheTTL:   30 * time.Second,
		RequestTimeout: 10 * time.Second,
		CSRFEndpoint:   auth.DefaultCSRFEndpoint,
		Rules:          auth.DefaultRules(),
		Retry:          DefaultRetryConfig(),
	}
}

// Client is the authenticated request pipeline. It composes the stdlib HTTP
// client with the response cache, the pending-request registry, the identity
// provider and the anti-forgery source; it never extends or mutates the
// underlying client.
type Client struct {
	httpClient *http.Client
	store      cache.Store
	flight     *cache.Flight
	tokens     auth.TokenProvider
	classifier *auth.Classifier
	csrf       *auth.CSRFSource
	cfg        Config
	base       *url.URL
	logger     zerolog.Logger

	mu        sync.Mutex
	location  string
	loggedOut bool

	inFlight atomic.Int32
}

// New creates a pipeline client. tokens is required; store defaults to an
// in-process MemoryStore when nil.
func New(cfg Config, tokens auth.TokenProvider, store cache.Store) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CartCacheTTL <= 0 {
		cfg.CartCacheTTL = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.CSRFEndpoint == "" {
		cfg.CSRFEndpoint = auth.DefaultCSRFEndpoint
	}
	if len(cfg.Rules.Exact) == 0 && len(cfg.Rules.Prefixes) == 0 && len(cfg.Rules.AuthEntryPoints) == 0 {
		cfg.Rules = auth.DefaultRules()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	if store == nil {
		store = cache.NewMemoryStore()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	logger := logging.NewLogger("api-client")

	httpClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Jar:     jar,
	}

	return &Client{
		httpClient: httpClient,
		store:      store,
		flight:     cache.NewFlight(),
		tokens:     tokens,
		classifier: auth.NewClassifier(cfg.Rules),
		csrf:       auth.NewCSRFSource(httpClient, base, cfg.CSRFEndpoint, logger),
		cfg:        cfg,
		base:       base,
		logger:     logger,
	}, nil
}

// SetLocation records the current navigation location. It feeds the auth
// bootstrap rule: missing credentials are tolerated only on auth entry points.
func (c *Client) SetLocation(path string) {
	c.mu.Lock()
	c.location = path
	c.mu.Unlock()
}

// Location returns the current navigation location.
func (c *Client) Location() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.location
}

// ResetSession re-arms the forced-logout trigger after a fresh login.
func (c *Client) ResetSession() {
	c.mu.Lock()
	c.loggedOut = false
	c.mu.Unlock()
}

// InFlight returns the number of requests currently dispatched and not yet
// settled. UI loading indicators key off it.
func (c *Client) InFlight() int {
	return int(c.inFlight.Load())
}

// RequestTimeout returns the configured per-request timeout, so embedders
// working off their own contexts can match it.
func (c *Client) RequestTimeout() time.Duration {
	return c.cfg.RequestTimeout
}

// EnsureCSRF makes sure an anti-forgery token is held, fetching one from the
// dedicated endpoint when absent.
func (c *Client) EnsureCSRF(ctx context.Context) error {
	_, err := c.csrf.Ensure(ctx)
	return err
}

// InvalidateMatching drops every cached read whose key contains substr.
func (c *Client) InvalidateMatching(ctx context.Context, substr string) int {
	n, err := c.store.DeleteMatching(ctx, substr)
	if err != nil {
		c.logger.Warn().Err(err).Str("pattern", substr).Msg("Cache invalidation failed")
		return 0
	}
	if n > 0 {
		c.logger.Debug().Str("pattern", substr).Int("removed", n).Msg("Invalidated cached reads")
	}
	return n
}

// Close releases the pipeline's resources.
func (c *Client) Close() error {
	return c.store.Close()
}

// GetJSON performs a cached, deduplicated GET and decodes the response body
// into v. Cache hits never touch the network; concurrent identical misses
// share a single call.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, v any) error {
	key := c.cacheKey(http.MethodGet, path, query, nil)

	if entry, err := c.store.Get(ctx, key); err == nil {
		c.logger.Debug().Str("endpoint", path).Bool("cache_hit", true).Msg("Serving cached read")
		return decodeInto(entry.Data, v)
	}

	entry, err := c.flight.Do(key.String(), func() (*cache.Entry, error) {
		data, status, header, err := c.do(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return nil, err
		}

		entry := cache.NewEntry(data, status, header, c.ttlFor(path))
		if status == http.StatusOK {
			if err := c.store.Set(ctx, key, entry); err != nil {
				c.logger.Warn().Err(err).Str("endpoint", path).Msg("Failed to cache response")
			}
		}
		return entry, nil
	})
	if err != nil {
		return err
	}

	return decodeInto(entry.Data, v)
}

// PostJSON performs a POST with a JSON body, bypassing the cache and
// invalidating related cached reads on success. The response body, if any,
// is decoded into v.
func (c *Client) PostJSON(ctx context.Context, path string, body, v any) error {
	return c.mutate(ctx, http.MethodPost, path, body, v)
}

// PutJSON performs a PUT with a JSON body; same cache semantics as PostJSON.
func (c *Client) PutJSON(ctx context.Context, path string, body, v any) error {
	return c.mutate(ctx, http.MethodPut, path, body, v)
}

// Delete performs a DELETE; same cache semantics as PostJSON. The response
// body is decoded into v when both are present.
func (c *Client) Delete(ctx context.Context, path string, v any) error {
	return c.mutate(ctx, http.MethodDelete, path, nil, v)
}

func (c *Client) mutate(ctx context.Context, method, path string, body, v any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	// Mutations bypass the response cache but still hold the one-in-flight-
	// per-fingerprint invariant: concurrent identical writes share a single
	// network call. The body fingerprint keeps distinct payloads apart.
	key := c.cacheKey(method, path, nil, payload)
	entry, err := c.flight.Do(key.String(), func() (*cache.Entry, error) {
		data, status, header, err := c.do(ctx, method, path, nil, payload)
		if err != nil {
			return nil, err
		}
		return cache.NewEntry(data, status, header, 0), nil
	})
	if err != nil {
		return err
	}

	// The mutation succeeded; cached reads under the same resource are stale.
	if seg := firstSegment(path); seg != "" {
		c.InvalidateMatching(ctx, ":"+seg)
	}

	if v != nil && len(entry.Data) > 0 {
		return decodeInto(entry.Data, v)
	}
	return nil
}

// do runs the full pipeline for one request: classify, acquire credentials,
// propagate identity, attach anti-forgery, dispatch, handle 401.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, int, http.Header, error) {
	endpoint := path
	public := c.classifier.IsPublic(path)

	c.inFlight.Add(1)
	requestsInFlight.Inc()
	startTime := time.Now()
	defer func() {
		c.inFlight.Add(-1)
		requestsInFlight.Dec()
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if len(body) > 0 {
		header.Set("Content-Type", "application/json")
	}

	// Credential acquisition, private paths only.
	if !public {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Token acquisition failed")
		}
		switch {
		case token != "":
			header.Set("Authorization", "Bearer "+token)
		case c.classifier.IsAuthEntryPoint(c.Location()):
			// Bootstrapping on a login/callback page: let the request proceed
			// unauthenticated.
			c.logger.Debug().Str("endpoint", endpoint).Msg("No token on auth entry point, proceeding")
		default:
			c.forceLogout("missing credentials")
			errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
			return nil, 0, nil, &APIError{
				Class:   ErrorClassAuth,
				Message: "no credentials for protected endpoint",
				Err:     ErrAuthenticationRequired,
			}
		}
	}

	// Identity propagation; absence is not an error.
	if id := c.tokens.CurrentUserID(); id != "" {
		header.Set("X-User-ID", id)
	}

	// Anti-forgery attachment for state-changing verbs.
	if isStateChanging(method) {
		token, ok := c.csrf.Token()
		if !ok && c.isSensitive(method, path) {
			fresh, err := c.csrf.Ensure(ctx)
			if err != nil {
				c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Anti-forgery refresh failed")
			} else {
				token, ok = fresh, true
			}
		}
		if ok {
			header.Set(auth.CSRFHeaderName, token)
		}
	}

	var (
		respBody   []byte
		statusCode int
		respHeader http.Header
	)

	attempt := func() error {
		req, err := c.newRequest(ctx, method, path, query, body, header)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return &APIError{
				Class:   ErrorClassNetwork,
				Message: "request failed",
				Err:     err,
			}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &APIError{
				Class:   ErrorClassNetwork,
				Message: "read response body",
				Err:     err,
			}
		}

		respBody = data
		statusCode = resp.StatusCode
		respHeader = resp.Header.Clone()
		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
		return nil
	}

	var err error
	if method == http.MethodGet {
		err = retryWithBackoff(ctx, c.cfg.Retry, c.logger, isNetworkError, attempt)
	} else {
		// Mutations get exactly one shot; the caller owns rollback.
		err = attempt()
	}
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Str("method", method).Msg("Request failed")
		return nil, 0, nil, err
	}

	if statusCode == http.StatusUnauthorized && !public &&
		!c.isIdentityEndpoint(path) && !c.classifier.IsAuthEntryPoint(c.Location()) {
		c.forceLogout("session expired")
		errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
		return nil, statusCode, respHeader, &APIError{
			StatusCode: statusCode,
			Class:      ErrorClassAuth,
			Message:    errorMessage(respBody, statusCode),
			Err:        ErrSessionExpired,
		}
	}

	if statusCode >= 400 {
		class := classifyStatus(statusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", statusCode).
			Str("error_class", string(class)).
			Msg("API request error")
		return nil, statusCode, respHeader, &APIError{
			StatusCode: statusCode,
			Class:      class,
			Message:    errorMessage(respBody, statusCode),
		}
	}

	return respBody, statusCode, respHeader, nil
}

// newRequest builds a fresh request; retries must not reuse a consumed body.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte, header http.Header) (*http.Request, error) {
	target := c.base.ResolveReference(&url.URL{Path: joinPath(c.cfg.APIPrefix, path)})
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	return req, nil
}

// forceLogout triggers the identity provider's logout exactly once per
// session. ResetSession re-arms it after a fresh login.
func (c *Client) forceLogout(reason string) {
	c.mu.Lock()
	if c.loggedOut {
		c.mu.Unlock()
		return
	}
	c.loggedOut = true
	c.mu.Unlock()

	logoutsTotal.Inc()
	c.logger.Error().Str("reason", reason).Msg("Forcing logout")
	c.tokens.TriggerLogout()
}

// cacheKey builds the deterministic fingerprint for a request, namespaced by
// user for private paths so cached per-user data never crosses sessions.
func (c *Client) cacheKey(method, path string, query url.Values, body []byte) cache.Key {
	userID := ""
	if !c.classifier.IsPublic(path) {
		userID = c.tokens.CurrentUserID()
		if userID == "" {
			userID = "session"
		}
	}
	return cache.Key{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
		UserID: userID,
	}
}

// ttlFor picks the cache TTL: cart reads go stale fast, everything else uses
// the generic TTL.
func (c *Client) ttlFor(path string) time.Duration {
	if firstSegment(path) == "carts" {
		return c.cfg.CartCacheTTL
	}
	return c.cfg.CacheTTL
}

// isSensitive marks the calls that must not go out without an anti-forgery
// token, so a missing one is fetched rather than omitted.
func (c *Client) isSensitive(method, path string) bool {
	return method == http.MethodDelete && firstSegment(path) == "carts"
}

// isIdentityEndpoint reports whether path belongs to the identity provider
// integration; 401 from those must not re-trigger logout.
func (c *Client) isIdentityEndpoint(path string) bool {
	return firstSegment(path) == "auth"
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func decodeInto(data []byte, v any) error {
	if v == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

func joinPath(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}
