package auth

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func newCSRFServer(t *testing.T, token string, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultCSRFEndpoint {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(hits, 1)
		http.SetCookie(w, &http.Cookie{Name: CSRFCookieName, Value: token, Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	}))
}

func newJarClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New failed: %v", err)
	}
	return &http.Client{Jar: jar}
}

func TestCSRFSource_TokenAbsent(t *testing.T) {
	var hits int32
	server := newCSRFServer(t, "tok", &hits)
	defer server.Close()

	origin, _ := url.Parse(server.URL)
	source := NewCSRFSource(newJarClient(t), origin, "", zerolog.Nop())

	if _, ok := source.Token(); ok {
		t.Error("Token should be absent before any refresh")
	}
}

func TestCSRFSource_RefreshThenToken(t *testing.T) {
	var hits int32
	server := newCSRFServer(t, "plain-token", &hits)
	defer server.Close()

	origin, _ := url.Parse(server.URL)
	source := NewCSRFSource(newJarClient(t), origin, "", zerolog.Nop())

	if err := source.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	token, ok := source.Token()
	if !ok {
		t.Fatal("Token absent after refresh")
	}
	if token != "plain-token" {
		t.Errorf("Token = %q, want %q", token, "plain-token")
	}
}

func TestCSRFSource_TokenIsURLDecoded(t *testing.T) {
	var hits int32
	// Cookie value with an encoded '=' padding char, as Laravel-style
	// backends emit.
	server := newCSRFServer(t, "abc123%3D%3D", &hits)
	defer server.Close()

	origin, _ := url.Parse(server.URL)
	source := NewCSRFSource(newJarClient(t), origin, "", zerolog.Nop())

	if err := source.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	token, ok := source.Token()
	if !ok {
		t.Fatal("Token absent after refresh")
	}
	if token != "abc123==" {
		t.Errorf("Token = %q, want URL-decoded %q", token, "abc123==")
	}
}

func TestCSRFSource_Ensure(t *testing.T) {
	var hits int32
	server := newCSRFServer(t, "fresh", &hits)
	defer server.Close()

	origin, _ := url.Parse(server.URL)
	source := NewCSRFSource(newJarClient(t), origin, "", zerolog.Nop())

	// First Ensure refreshes.
	token, err := source.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if token != "fresh" {
		t.Errorf("Token = %q, want %q", token, "fresh")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("csrf endpoint hit %d times, want 1", hits)
	}

	// Second Ensure reads the jar without another fetch.
	if _, err := source.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("csrf endpoint hit %d times after cached Ensure, want 1", hits)
	}
}

func TestCSRFSource_RefreshErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	origin, _ := url.Parse(server.URL)
	source := NewCSRFSource(newJarClient(t), origin, "", zerolog.Nop())

	if err := source.Refresh(context.Background()); err == nil {
		t.Error("Refresh should fail on a 5xx response")
	}
}
