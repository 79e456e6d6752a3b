package cart

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/phuocvo832004/storefront-client/pkg/client"
	"github.com/phuocvo832004/storefront-client/pkg/logging"
)

// API binds the cart REST contracts over the authenticated pipeline. Reads
// go through the response cache with the short cart TTL; mutations bypass it
// and invalidate cached cart reads on success.
type API struct {
	http   *client.Client
	logger zerolog.Logger
}

// NewAPI creates the cart API bindings.
func NewAPI(httpClient *client.Client) *API {
	return &API{
		http:   httpClient,
		logger: logging.NewLogger("cart-api"),
	}
}

// Fetch retrieves the current server-side cart for the authenticated caller.
func (a *API) Fetch(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := a.http.GetJSON(ctx, "/carts", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddItem adds a product to the server cart. The server merges by product
// id, mirroring the engine's optimistic merge.
func (a *API) AddItem(ctx context.Context, item Item) (*Cart, error) {
	body := map[string]any{
		"productId": item.ProductID,
		"quantity":  item.Quantity,
		"price":     item.Price,
	}
	var cart Cart
	if err := a.http.PostJSON(ctx, "/carts/items", body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateItem sets the quantity of one cart line.
func (a *API) UpdateItem(ctx context.Context, itemID string, quantity int) (*Cart, error) {
	body := map[string]int{"quantity": quantity}
	var cart Cart
	if err := a.http.PutJSON(ctx, "/carts/items/"+itemID, body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveItem deletes one cart line. The pipeline treats this as a sensitive
// call and ensures a fresh anti-forgery token before dispatch.
func (a *API) RemoveItem(ctx context.Context, itemID string) error {
	return a.http.Delete(ctx, "/carts/items/"+itemID, nil)
}

// Clear empties the server cart.
func (a *API) Clear(ctx context.Context) error {
	return a.http.Delete(ctx, "/carts", nil)
}

// Restore sends a full locally held cart to the restore endpoint, which
// merges it into the server cart of the now-authenticated session.
func (a *API) Restore(ctx context.Context, cart *Cart) (*Cart, error) {
	var merged Cart
	if err := a.http.PostJSON(ctx, "/carts/restore", cart, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Invalidate drops cached cart reads so the next Fetch hits the server.
func (a *API) Invalidate(ctx context.Context) {
	a.http.InvalidateMatching(ctx, ":carts")
}

// requestTimeout mirrors the pipeline's per-request timeout for calls the
// engine issues off its own contexts.
func (a *API) requestTimeout() time.Duration {
	return a.http.RequestTimeout()
}
