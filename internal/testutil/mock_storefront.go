// Package testutil provides testing utilities for the storefront client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// ServerItem is one cart line as held by the mock server.
type ServerItem struct {
	ID        string  `json:"cartItemId"`
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Image     string  `json:"image,omitempty"`
	Category  string  `json:"category,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// ServerCart is the cart payload the mock server returns.
type ServerCart struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId,omitempty"`
	Items     []ServerItem `json:"items"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// MockStorefront is a configurable mock of the storefront REST API for
// testing: it holds a real server-side cart, merges added products by
// product id, and can enforce bearer and anti-forgery headers.
type MockStorefront struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc

	// Server-side cart state.
	cart   ServerCart
	nextID int

	// Enforcement toggles.
	RequireBearer string // non-empty: protected calls must carry this token
	RequireCSRF   bool   // state-changing calls must carry the csrf header
	CSRFToken     string

	// Tracking.
	RequestCount int
	PathCounts   map[string]int
	MethodCounts map[string]int
	LastHeader   http.Header
}

// APIPrefix is where the mock mounts the REST contracts.
const APIPrefix = "/api/v1"

// NewMockStorefront creates a mock API server with an empty cart.
func NewMockStorefront() *MockStorefront {
	mock := &MockStorefront{
		handlers:     make(map[string]http.HandlerFunc),
		cart:         ServerCart{ID: "cart-1", CreatedAt: time.Now(), UpdatedAt: time.Now(), Items: []ServerItem{}},
		nextID:       1,
		CSRFToken:    "test-csrf-token",
		PathCounts:   make(map[string]int),
		MethodCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.route))
	return mock
}

// URL returns the mock server origin.
func (m *MockStorefront) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStorefront) Close() {
	m.server.Close()
}

// Reset clears tracking counters and the server-side cart.
func (m *MockStorefront) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.MethodCounts = make(map[string]int)
	m.LastHeader = nil
	m.cart = ServerCart{ID: "cart-1", CreatedAt: time.Now(), UpdatedAt: time.Now(), Items: []ServerItem{}}
	m.nextID = 1
}

// SetHandler overrides the handler for an exact path (API prefix included).
func (m *MockStorefront) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// Cart returns a copy of the current server-side cart.
func (m *MockStorefront) Cart() ServerCart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cartCopyLocked()
}

// Requests returns how many requests hit path (API prefix excluded).
func (m *MockStorefront) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PathCounts[path]
}

// Calls returns how many requests used the given method on path.
func (m *MockStorefront) Calls(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MethodCounts[method+" "+path]
}

func (m *MockStorefront) route(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastHeader = r.Header.Clone()

	path := strings.TrimPrefix(r.URL.Path, APIPrefix)
	m.PathCounts[path]++
	m.MethodCounts[r.Method+" "+path]++

	handler, overridden := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if overridden {
		handler(w, r)
		return
	}

	// The csrf-cookie endpoint lives outside the API prefix. Its only
	// contract is the cookie side effect.
	if r.URL.Path == "/csrf-cookie" {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: m.CSRFToken, Path: "/"})
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !strings.HasPrefix(r.URL.Path, APIPrefix) {
		http.NotFound(w, r)
		return
	}

	if !m.authorized(w, r, path) {
		return
	}

	switch {
	case r.Method == http.MethodGet && path == "/carts":
		m.writeCart(w)
	case r.Method == http.MethodPost && path == "/carts/items":
		m.handleAddItem(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/carts/items/"):
		m.handleUpdateItem(w, r, strings.TrimPrefix(path, "/carts/items/"))
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/carts/items/"):
		m.handleRemoveItem(w, r, strings.TrimPrefix(path, "/carts/items/"))
	case r.Method == http.MethodDelete && path == "/carts":
		m.handleClearCart(w)
	case r.Method == http.MethodPost && path == "/carts/restore":
		m.handleRestore(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/products"):
		m.handleProducts(w, r)
	default:
		http.NotFound(w, r)
	}
}

// authorized enforces bearer/CSRF requirements when enabled. Public product
// reads are exempt from the bearer check.
func (m *MockStorefront) authorized(w http.ResponseWriter, r *http.Request, path string) bool {
	public := strings.HasPrefix(path, "/products") ||
		strings.HasPrefix(path, "/categories") ||
		strings.HasPrefix(path, "/search")

	if m.RequireBearer != "" && !public {
		if r.Header.Get("Authorization") != "Bearer "+m.RequireBearer {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthenticated"})
			return false
		}
	}

	if m.RequireCSRF && r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
		if r.Header.Get("X-XSRF-TOKEN") != m.CSRFToken {
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "csrf token mismatch"})
			return false
		}
	}

	return true
}

func (m *MockStorefront) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string  `json:"productId"`
		Quantity  int     `json:"quantity"`
		Price     float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid item"})
		return
	}

	m.mu.Lock()
	merged := false
	for i := range m.cart.Items {
		if m.cart.Items[i].ProductID == req.ProductID {
			m.cart.Items[i].Quantity += req.Quantity
			merged = true
			break
		}
	}
	if !merged {
		m.cart.Items = append(m.cart.Items, ServerItem{
			ID:        fmt.Sprintf("item-%d", m.nextID),
			ProductID: req.ProductID,
			Price:     req.Price,
			Quantity:  req.Quantity,
		})
		m.nextID++
	}
	m.cart.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.writeCart(w)
}

func (m *MockStorefront) handleUpdateItem(w http.ResponseWriter, r *http.Request, itemID string) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid quantity"})
		return
	}

	m.mu.Lock()
	found := false
	for i := range m.cart.Items {
		if m.cart.Items[i].ID == itemID {
			m.cart.Items[i].Quantity = req.Quantity
			found = true
			break
		}
	}
	m.cart.UpdatedAt = time.Now()
	m.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "cart item not found"})
		return
	}
	m.writeCart(w)
}

func (m *MockStorefront) handleRemoveItem(w http.ResponseWriter, r *http.Request, itemID string) {
	m.mu.Lock()
	found := false
	items := m.cart.Items[:0]
	for _, item := range m.cart.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		items = append(items, item)
	}
	m.cart.Items = items
	m.cart.UpdatedAt = time.Now()
	m.mu.Unlock()

	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "cart item not found"})
		return
	}
	m.writeCart(w)
}

func (m *MockStorefront) handleClearCart(w http.ResponseWriter) {
	m.mu.Lock()
	m.cart.Items = []ServerItem{}
	m.cart.UpdatedAt = time.Now()
	m.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (m *MockStorefront) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req ServerCart
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid cart"})
		return
	}

	// Merge the restored guest cart into the server cart by product id.
	m.mu.Lock()
	for _, incoming := range req.Items {
		merged := false
		for i := range m.cart.Items {
			if m.cart.Items[i].ProductID == incoming.ProductID {
				m.cart.Items[i].Quantity += incoming.Quantity
				merged = true
				break
			}
		}
		if !merged {
			m.cart.Items = append(m.cart.Items, ServerItem{
				ID:        fmt.Sprintf("item-%d", m.nextID),
				ProductID: incoming.ProductID,
				Name:      incoming.Name,
				Price:     incoming.Price,
				Quantity:  incoming.Quantity,
			})
			m.nextID++
		}
	}
	m.cart.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.writeCart(w)
}

// handleProducts serves a paged product listing: ?page=N out of 3 pages,
// two products per page.
func (m *MockStorefront) handleProducts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		fmt.Sscanf(p, "%d", &page)
	}

	const totalPages = 3
	if page < 1 || page > totalPages {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "page out of range"})
		return
	}

	type product struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Category string  `json:"category"`
		Price    float64 `json:"price"`
	}
	items := []product{
		{ID: fmt.Sprintf("p-%d-a", page), Name: fmt.Sprintf("Product %d-a", page), Category: "demo", Price: 9.99},
		{ID: fmt.Sprintf("p-%d-b", page), Name: fmt.Sprintf("Product %d-b", page), Category: "demo", Price: 19.99},
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"page":       page,
		"totalPages": totalPages,
	})
}

func (m *MockStorefront) writeCart(w http.ResponseWriter) {
	m.mu.Lock()
	cart := m.cartCopyLocked()
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, cart)
}

func (m *MockStorefront) cartCopyLocked() ServerCart {
	cart := m.cart
	cart.Items = append([]ServerItem(nil), m.cart.Items...)
	return cart
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
