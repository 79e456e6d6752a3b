package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/phuocvo832004/storefront-client/internal/testutil"
	"github.com/phuocvo832004/storefront-client/pkg/auth"
)

// newTestClient wires a pipeline client against a mock storefront.
func newTestClient(t *testing.T, mock *testutil.MockStorefront, provider auth.TokenProvider) *Client {
	t.Helper()

	cfg := DefaultConfig(mock.URL())
	cfg.APIPrefix = testutil.APIPrefix
	cfg.Retry = RetryConfig{MaxAttempts: 1}

	c, err := New(cfg, provider, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	provider := auth.NewStaticProvider("tkn", "u-1")

	tests := []struct {
		name        string
		cfg         Config
		tokens      auth.TokenProvider
		expectError bool
	}{
		{
			name:   "valid config",
			cfg:    DefaultConfig("https://api.shop.example.com"),
			tokens: provider,
		},
		{
			name:        "missing base URL",
			cfg:         Config{},
			tokens:      provider,
			expectError: true,
		},
		{
			name:        "relative base URL",
			cfg:         DefaultConfig("/api/v1"),
			tokens:      provider,
			expectError: true,
		},
		{
			name:        "nil token provider",
			cfg:         DefaultConfig("https://api.shop.example.com"),
			tokens:      nil,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg, tt.tokens, nil)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("New returned nil client")
			}
		})
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.shop.example.com"}, auth.NewStaticProvider("", ""), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if c.cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", c.cfg.CacheTTL)
	}
	if c.cfg.CartCacheTTL != 30*time.Second {
		t.Errorf("CartCacheTTL = %v, want 30s", c.cfg.CartCacheTTL)
	}
	if c.cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", c.cfg.RequestTimeout)
	}
	if !c.classifier.IsPublic("/products") {
		t.Error("Default rules not applied")
	}
}

// Public paths are dispatched without an Authorization header even when no
// token is available.
func TestGetJSON_PublicPathNoAuthHeader(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	c := newTestClient(t, mock, auth.NewStaticProvider("", ""))

	var page struct {
		Page int `json:"page"`
	}
	if err := c.GetJSON(context.Background(), "/products", nil, &page); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	if got := mock.LastHeader.Get("Authorization"); got != "" {
		t.Errorf("Authorization header = %q, want empty on public path", got)
	}
}

func TestGetJSON_ProtectedAttachesBearerAndIdentity(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()
	mock.RequireBearer = "tkn-1"

	c := newTestClient(t, mock, auth.NewStaticProvider("tkn-1", "u-42"))

	var cart testutil.ServerCart
	if err := c.GetJSON(context.Background(), "/carts", nil, &cart); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	if got := mock.LastHeader.Get("Authorization"); got != "Bearer tkn-1" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tkn-1")
	}
	if got := mock.LastHeader.Get("X-User-ID"); got != "u-42" {
		t.Errorf("X-User-ID = %q, want %q", got, "u-42")
	}
}

func TestGetJSON_CachesReads(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	c := newTestClient(t, mock, auth.NewStaticProvider("tkn", "u-1"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		var cart testutil.ServerCart
		if err := c.GetJSON(ctx, "/carts", nil, &cart); err != nil {
			t.Fatalf("GetJSON #%d failed: %v", i, err)
		}
	}

	if got := mock.Requests("/carts"); got != 1 {
		t.Errorf("Network calls = %d, want 1 (repeat reads served from cache)", got)
	}
}

func TestGetJSON_CacheExpiryTriggersOneFetch(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	cfg := DefaultConfig(mock.URL())
	cfg.APIPrefix = testutil.APIPrefix
	cfg.CartCacheTTL = 40 * time.Millisecond
	cfg.Retry = RetryConfig{MaxAttempts: 1}

	c, err := New(cfg, auth.NewStaticProvider("tkn", "u-1"), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	var cart testutil.ServerCart

	if err := c.GetJSON(ctx, "/carts", nil, &cart); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := c.GetJSON(ctx, "/carts", nil, &cart); err != nil {
		t.Fatalf("GetJSON after expiry failed: %v", err)
	}

	if got := mock.Requests("/carts"); got != 2 {
		t.Errorf("Network calls = %d, want 2 (expired entry is a guaranteed miss)", got)
	}
}

// Two concurrent reads with an identical fingerprint issue exactly one
// network call; both callers receive the same payload.
func TestGetJSON_DeduplicatesConcurrentReads(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	release := make(chan struct{})
	mock.SetHandler(testutil.APIPrefix+"/products", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[],"page":1,"totalPages":1}`))
	})

	c := newTestClient(t, mock, auth.NewStaticProvider("", ""))

	type page struct {
		Page int `json:"page"`
	}

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	results := make([]page, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.GetJSON(context.Background(), "/products", nil, &results[i])
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
		if results[i].Page != 1 {
			t.Errorf("Caller %d got page %d, want 1", i, results[i].Page)
		}
	}
	if got := mock.Requests("/products"); got != 1 {
		t.Errorf("Network calls = %d, want exactly 1", got)
	}
}

func TestMutate_DeduplicatesConcurrentIdenticalWrites(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	release := make(chan struct{})
	mock.SetHandler(testutil.APIPrefix+"/carts/items", func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cart-1","items":[{"cartItemId":"item-1","productId":"p-1","price":5,"quantity":1}]}`))
	})

	c := newTestClient(t, mock, auth.NewStaticProvider("tkn", "u-1"))

	body := map[string]any{"productId": "p-1", "quantity": 1, "price": 5.0}

	const callers = 3
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out struct{}
			errs[i] = c.PostJSON(context.Background(), "/carts/items", body, &out)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
	}
	if got := mock.Calls(http.MethodPost, "/carts/items"); got != 1 {
		t.Errorf("Network calls = %d, want exactly 1 per fingerprint", got)
	}

	// A different payload is a different fingerprint and goes out on its own.
	var out struct{}
	if err := c.PostJSON(context.Background(), "/carts/items", map[string]any{"productId": "p-2", "quantity": 1, "price": 5.0}, &out); err != nil {
		t.Fatalf("Distinct write failed: %v", err)
	}
	if got := mock.Calls(http.MethodPost, "/carts/items"); got != 2 {
		t.Errorf("Network calls = %d, want 2 after a distinct payload", got)
	}
}

func TestGetJSON_QueryOrderDoesNotDefeatCache(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	c := newTestClient(t, mock, auth.NewStaticProvider("", ""))
	ctx := context.Background()

	var page struct{}
	q1 := url.Values{"page": {"1"}, "category": {"shoes"}}
	q2 := url.Values{"category": {"shoes"}, "page": {"1"}}

	if err := c.GetJSON(ctx, "/products", q1, &page); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if err := c.GetJSON(ctx, "/products", q2, &page); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	if got := mock.Requests("/products"); got != 1 {
		t.Errorf("Network calls = %d, want 1 (identical logical requests)", got)
	}
}

func TestMutation_InvalidatesCachedReads(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	c := newTestClient(t, mock, auth.NewStaticProvider("tkn", "u-1"))
	ctx := context.Background()

	var cart testutil.ServerCart
	if err := c.GetJSON(ctx, "/carts", nil, &cart); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	body := map[string]any{"productId": "p1", "quantity": 2, "price": 10.0}
	if err := c.PostJSON(ctx, "/carts/items", body, &cart); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}

	// The cached cart read is stale now; the next read must hit the network.
	if err := c.GetJSON(ctx, "/carts", nil, &cart); err != nil {
		t.Fatalf("GetJSON after mutation failed: %v", err)
	}

	if got := mock.Calls(http.MethodGet, "/carts"); got != 2 {
		t.Errorf("GET /carts calls = %d, want 2 (cache invalidated by mutation)", got)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 2 {
		t.Errorf("Cart after mutation = %+v, want one line with quantity 2", cart.Items)
	}
}

func TestMutation_FailureDoesNotPopulateCache(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	c := newTestClient(t, mock, auth.NewStaticProvider("tkn", "u-1"))
	ctx := context.Background()

	var cart testutil.ServerCart
	err := c.PutJSON(ctx, "/carts/items/no-such-item", map[string]int{"quantity": 3}, &cart)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Class != ErrorClassClient {
		t.Errorf("Class = %s, want client", apiErr.Class)
	}
	if apiErr.Message != "cart item not found" {
		t.Errorf("Message = %q, want server-provided message", apiErr.Message)
	}
}

func TestProtectedRequest_MissingTokenForcesLogout(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	provider := auth.NewStaticProvider("", "")
	c := newTestClient(t, mock, provider)
	c.SetLocation("/cart")

	var cart testutil.ServerCart
	err := c.GetJSON(context.Background(), "/carts", nil, &cart)

	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("Expected ErrAuthenticationRequired, got %v", err)
	}
	if provider.LogoutCalls() != 1 {
		t.Errorf("Logout calls = %d, want 1", provider.LogoutCalls())
	}
	if mock.RequestCount != 0 {
		t.Errorf("Network calls = %d, want 0 (aborted before dispatch)", mock.RequestCount)
	}
}

func TestProtectedRequest_MissingTokenOnAuthEntryPointProceeds(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	provider := auth.NewStaticProvider("", "")
	c := newTestClient(t, mock, provider)
	c.SetLocation("/login")

	var cart testutil.ServerCart
	if err := c.GetJSON(context.Background(), "/carts", nil, &cart); err != nil {
		t.Fatalf("Bootstrapping request should proceed unauthenticated, got %v", err)
	}

	if provider.LogoutCalls() != 0 {
		t.Errorf("Logout calls = %d, want 0", provider.LogoutCalls())
	}
	if got := mock.LastHeader.Get("Authorization"); got != "" {
		t.Errorf("Authorization = %q, want empty", got)
	}
}

// A protected request that receives HTTP 401 while not on /login or
// /callback triggers exactly one logout and rejects as session-expired.
func TestProtectedRequest_401ForcesLogoutOnce(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()
	mock.RequireBearer = "good-token"

	provider := auth.NewStaticProvider("stale-token", "u-1")
	c := newTestClient(t, mock, provider)
	c.SetLocation("/cart")

	var cart testutil.ServerCart
	err := c.GetJSON(context.Background(), "/carts", nil, &cart)

	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Expected ErrSessionExpired, got %v", err)
	}
	if provider.LogoutCalls() != 1 {
		t.Errorf("Logout calls = %d, want 1", provider.LogoutCalls())
	}

	// Follow-up calls fail on missing credentials without a second logout.
	err = c.GetJSON(context.Background(), "/carts", nil, &cart)
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("Expected ErrAuthenticationRequired, got %v", err)
	}
	if provider.LogoutCalls() != 1 {
		t.Errorf("Logout calls = %d, want still 1", provider.LogoutCalls())
	}
}

func TestProtectedRequest_401OnAuthEntryPointDoesNotLogout(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()
	mock.RequireBearer = "good-token"

	provider := auth.NewStaticProvider("stale-token", "u-1")
	c := newTestClient(t, mock, provider)
	c.SetLocation("/callback")

	var cart testutil.ServerCart
	err := c.GetJSON(context.Background(), "/carts", nil, &cart)

	if errors.Is(err, ErrSessionExpired) {
		t.Error("401 on an auth entry point must not map to session-expired")
	}
	if err == nil {
		t.Fatal("Expected an error from the 401 response")
	}
	if provider.LogoutCalls() != 0 {
		t.Errorf("Logout calls = %d, want 0", provider.LogoutCalls())
	}
}

func TestSensitiveDelete_FetchesAntiForgeryToken(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()
	mock.RequireCSRF = true

	c := newTestClient(t, mock, auth.NewStaticProvider("tkn", "u-1"))
	ctx := context.Background()

	// Seed a line to delete. POST is not a recognized sensitive case, so the
	// token must be in place beforehand for it.
	if err := c.EnsureCSRF(ctx); err != nil {
		t.Fatalf("EnsureCSRF failed: %v", err)
	}
	var cart testutil.ServerCart
	if err := c.PostJSON(ctx, "/carts/items", map[string]any{"productId": "p1", "quantity": 1}, &cart); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}

	// Fresh client with an empty jar: the delete must fetch a token itself.
	c2 := newTestClient(t, mock, auth.NewStaticProvider("tkn", "u-1"))
	if err := c2.Delete(ctx, "/carts/items/"+cart.Items[0].ID, nil); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if got := mock.Requests("/csrf-cookie"); got < 1 {
		t.Error("Sensitive delete did not fetch a fresh anti-forgery token")
	}
	if got := len(mock.Cart().Items); got != 0 {
		t.Errorf("Server cart has %d lines after delete, want 0", got)
	}
}

func TestDo_NetworkTimeoutClassifiedAsNetwork(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()
	mock.SetHandler(testutil.APIPrefix+"/products", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})

	cfg := DefaultConfig(mock.URL())
	cfg.APIPrefix = testutil.APIPrefix
	cfg.RequestTimeout = 50 * time.Millisecond
	cfg.Retry = RetryConfig{MaxAttempts: 1}

	c, err := New(cfg, auth.NewStaticProvider("", ""), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	var page struct{}
	err = c.GetJSON(context.Background(), "/products", nil, &page)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %v", err)
	}
	if apiErr.Class != ErrorClassNetwork {
		t.Errorf("Class = %s, want network", apiErr.Class)
	}

	// A failed request never leaves a cache entry behind.
	mock.SetHandler(testutil.APIPrefix+"/products", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"page":1}`))
	})
	var ok struct {
		Page int `json:"page"`
	}
	if err := c.GetJSON(context.Background(), "/products", nil, &ok); err != nil {
		t.Fatalf("Follow-up GetJSON failed: %v", err)
	}
	if ok.Page != 1 {
		t.Error("Follow-up read should have fetched fresh data, not a cached failure")
	}
}

func TestInFlight_ReturnsToZero(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()

	c := newTestClient(t, mock, auth.NewStaticProvider("tkn", "u-1"))
	ctx := context.Background()

	var cart testutil.ServerCart
	if err := c.GetJSON(ctx, "/carts", nil, &cart); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight after success = %d, want 0", got)
	}

	// Failure path clears the bracket too.
	if err := c.PutJSON(ctx, "/carts/items/nope", map[string]int{"quantity": 2}, nil); err == nil {
		t.Fatal("Expected error")
	}
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight after failure = %d, want 0", got)
	}
}

func TestResetSession_ReArmsLogout(t *testing.T) {
	mock := testutil.NewMockStorefront()
	defer mock.Close()
	mock.RequireBearer = "good"

	provider := auth.NewStaticProvider("bad", "u-1")
	c := newTestClient(t, mock, provider)
	c.SetLocation("/cart")

	var cart testutil.ServerCart
	if err := c.GetJSON(context.Background(), "/carts", nil, &cart); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Expected ErrSessionExpired, got %v", err)
	}

	// Fresh login.
	provider.SetToken("bad-again", "u-1")
	c.ResetSession()

	if err := c.GetJSON(context.Background(), "/carts", nil, &cart); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Expected ErrSessionExpired after re-arm, got %v", err)
	}
	if provider.LogoutCalls() != 2 {
		t.Errorf("Logout calls = %d, want 2 (one per expired session)", provider.LogoutCalls())
	}
}

func TestFirstSegment(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/carts", "carts"},
		{"/carts/items/42", "carts"},
		{"/products", "products"},
		{"", ""},
		{"/", ""},
	}

	for _, tt := range tests {
		if got := firstSegment(tt.path); got != tt.want {
			t.Errorf("firstSegment(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDecodeInto(t *testing.T) {
	var v map[string]int
	if err := decodeInto([]byte(`{"a":1}`), &v); err != nil {
		t.Fatalf("decodeInto failed: %v", err)
	}
	if v["a"] != 1 {
		t.Error("decodeInto did not populate target")
	}

	if err := decodeInto(nil, &v); err != nil {
		t.Errorf("decodeInto(nil body) = %v, want nil", err)
	}
	if err := decodeInto([]byte(`{}`), nil); err != nil {
		t.Errorf("decodeInto(nil target) = %v, want nil", err)
	}

	var bad json.RawMessage
	_ = bad
	if err := decodeInto([]byte(`not-json`), &v); err == nil {
		t.Error("decodeInto should fail on malformed JSON")
	}
}
