// Command storefront-proxy exposes the storefront client as a small local
// HTTP service: a cart API backed by the reconciliation engine, a paged
// catalog passthrough served out of the response cache, and Prometheus
// metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/phuocvo832004/storefront-client/pkg/auth"
	"github.com/phuocvo832004/storefront-client/pkg/cache"
	"github.com/phuocvo832004/storefront-client/pkg/cart"
	"github.com/phuocvo832004/storefront-client/pkg/catalog"
	"github.com/phuocvo832004/storefront-client/pkg/client"
	"github.com/phuocvo832004/storefront-client/pkg/logging"
)

func main() {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
	})
	logger := logging.NewLogger("storefront-proxy")

	baseURL := getEnv("API_BASE_URL", "")
	if baseURL == "" {
		logger.Fatal().Msg("API_BASE_URL is required")
	}
	port := getEnv("PORT", "8080")
	token := getEnv("TOKEN", "")
	userID := getEnv("USER_ID", "")

	// Redis is optional; without it the response cache lives in memory.
	var (
		store       cache.Store
		redisClient *redis.Client
	)
	if redisURL := getEnv("REDIS_URL", ""); redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		store = cache.NewRedisStore(redisClient)
		logger.Info().Str("redis_url", redisURL).Msg("Using Redis response cache")
	}

	provider := auth.NewStaticProvider(token, userID)

	httpClient, err := client.New(client.DefaultConfig(baseURL), provider, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create storefront client")
	}
	defer httpClient.Close()

	engine := cart.NewEngine(cart.NewAPI(httpClient), cart.DefaultConfig())
	defer engine.Close()

	if token != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := engine.SetAuthenticated(ctx, true); err != nil {
			logger.Warn().Err(err).Msg("Could not load server cart, staying in guest mode")
		}
		cancel()
	}

	browser := catalog.NewBrowser(httpClient)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/products", productsHandler(browser))
	mux.HandleFunc("/cart", cartHandler(engine))
	mux.HandleFunc("/cart/items", cartItemsHandler(engine))
	mux.HandleFunc("/cart/items/", cartItemHandler(engine))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("api_base_url", baseURL).
		Msg("Starting storefront proxy")

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports readiness. With Redis configured, readiness includes
// the cache connection.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// productsHandler serves one page of the catalog listing.
func productsHandler(browser *catalog.Browser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil || n < 1 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = n
		}

		result, err := browser.Products(r.Context(), page, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// cartHandler serves the cart root: read and clear.
func cartHandler(engine *cart.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, cartView(engine))
		case http.MethodDelete:
			if err := engine.Clear(r.Context()); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, cartView(engine))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// cartItemsHandler adds a line to the cart.
func cartItemsHandler(engine *cart.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var item cart.Item
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			http.Error(w, "invalid item", http.StatusBadRequest)
			return
		}

		if err := engine.AddItem(r.Context(), item); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cartView(engine))
	}
}

// cartItemHandler updates or removes one cart line.
func cartItemHandler(engine *cart.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID := strings.TrimPrefix(r.URL.Path, "/cart/items/")
		if itemID == "" || strings.Contains(itemID, "/") {
			http.Error(w, "invalid item id", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodPut:
			var req struct {
				Quantity int `json:"quantity"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			if err := engine.UpdateQuantity(r.Context(), itemID, req.Quantity); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, cartView(engine))
		case http.MethodDelete:
			if err := engine.RemoveItem(r.Context(), itemID); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, cartView(engine))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// cartView is the JSON shape served for every cart endpoint: the cart plus
// its derived totals.
func cartView(engine *cart.Engine) map[string]any {
	snapshot := engine.Snapshot()
	return map[string]any{
		"cart":      snapshot,
		"total":     snapshot.Total(),
		"itemCount": snapshot.ItemCount(),
		"mode":      engine.Mode(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, cart.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrMissingItemID):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
