package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

const (
	// CSRFCookieName is the anti-forgery cookie set by the API.
	CSRFCookieName = "XSRF-TOKEN"

	// CSRFHeaderName is the header the token is echoed back in.
	CSRFHeaderName = "X-XSRF-TOKEN"

	// DefaultCSRFEndpoint is the endpoint whose only contract is the cookie
	// side effect.
	DefaultCSRFEndpoint = "/csrf-cookie"
)

// CSRFSource reads the anti-forgery token from the client's cookie jar and
// can fetch a fresh one from the dedicated endpoint. There is one canonical
// acquisition path: read the cookie per request, refresh explicitly before
// sensitive calls when it is absent.
type CSRFSource struct {
	httpClient *http.Client
	origin     *url.URL
	endpoint   string
	logger     zerolog.Logger
}

// NewCSRFSource creates a source over httpClient's cookie jar. origin is the
// API origin the cookie is scoped to; endpoint is the cookie-setting path
// resolved against it.
func NewCSRFSource(httpClient *http.Client, origin *url.URL, endpoint string, logger zerolog.Logger) *CSRFSource {
	if endpoint == "" {
		endpoint = DefaultCSRFEndpoint
	}
	return &CSRFSource{
		httpClient: httpClient,
		origin:     origin,
		endpoint:   endpoint,
		logger:     logger,
	}
}

// Token returns the URL-decoded anti-forgery token from the cookie jar,
// and whether one was present.
func (s *CSRFSource) Token() (string, bool) {
	if s.httpClient.Jar == nil {
		return "", false
	}

	for _, c := range s.httpClient.Jar.Cookies(s.origin) {
		if c.Name == CSRFCookieName && c.Value != "" {
			// Cookie values arrive URL-encoded; the header wants the raw token.
			if decoded, err := url.QueryUnescape(c.Value); err == nil {
				return decoded, true
			}
			return c.Value, true
		}
	}
	return "", false
}

// Refresh fetches the csrf-cookie endpoint so the jar picks up a fresh
// token. No response body is relied upon.
func (s *CSRFSource) Refresh(ctx context.Context) error {
	target := s.origin.ResolveReference(&url.URL{Path: s.endpoint})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("create csrf request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch csrf cookie: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("fetch csrf cookie: unexpected status %d", resp.StatusCode)
	}

	s.logger.Debug().Str("endpoint", s.endpoint).Msg("Refreshed anti-forgery cookie")
	return nil
}

// Ensure returns a token, refreshing the cookie first when none is held.
func (s *CSRFSource) Ensure(ctx context.Context) (string, error) {
	if token, ok := s.Token(); ok {
		return token, nil
	}

	if err := s.Refresh(ctx); err != nil {
		return "", err
	}

	token, ok := s.Token()
	if !ok {
		return "", fmt.Errorf("csrf cookie endpoint did not set %s", CSRFCookieName)
	}
	return token, nil
}
