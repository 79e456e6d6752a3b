package cart

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/phuocvo832004/storefront-client/pkg/logging"
)

// Mode says where the cart of record lives.
type Mode string

const (
	// ModeGuest holds the cart locally only. No cart call touches the
	// network in this mode.
	ModeGuest Mode = "guest"

	// ModeAuthenticated mirrors the server-side cart. Mutations are applied
	// locally first and reconciled with the server.
	ModeAuthenticated Mode = "authenticated"
)

var (
	// ErrMissingItemID is returned when an operation that targets a cart
	// line is called with an empty item id.
	ErrMissingItemID = errors.New("cart item id is required")

	// ErrInvalidQuantity is returned for quantities below one. Removal is
	// explicit, never expressed as a zero quantity.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrItemNotFound is returned when the targeted line is not in the cart.
	ErrItemNotFound = errors.New("cart item not found")
)

// Config holds cart engine settings.
type Config struct {
	// DebounceInterval is the quiescence window for quantity updates.
	// Rapid changes to the same line within the window coalesce into one
	// server call carrying the final value.
	DebounceInterval time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DebounceInterval: 500 * time.Millisecond,
	}
}

// Engine is the cart reconciliation engine. It keeps one local cart as the
// source of truth for rendering, applies every mutation to it immediately,
// and in authenticated mode reconciles with the server: directly for adds,
// removals and clears, debounced for quantity updates. A failed server call
// rolls the local cart back to its pre-mutation state and invalidates the
// cached server read, since the call may still have landed.
//
// The mutex is never held across a network call, so reads observe the
// optimistic state while a reconciliation is in flight. gen counts local
// mutations; a settling call commits or rolls back only when gen is
// unchanged since its own apply, otherwise a newer mutation owns the state.
//
// All methods are safe for concurrent use.
type Engine struct {
	api    *API
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	mode  Mode
	local *Cart
	gen   uint64

	// prevQty remembers, per line, the quantity before the first update of
	// a debounce burst. A failed flush restores it; a successful flush
	// forgets it.
	prevQty map[string]int

	queue   *debouncer
	loading atomic.Int32
}

// NewEngine creates an engine in guest mode with an empty local cart.
func NewEngine(api *API, cfg Config) *Engine {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultConfig().DebounceInterval
	}
	e := &Engine{
		api:     api,
		cfg:     cfg,
		logger:  logging.NewLogger("cart-engine"),
		mode:    ModeGuest,
		local:   NewGuestCart(),
		prevQty: make(map[string]int),
	}
	e.queue = newDebouncer(cfg.DebounceInterval, e.flushQuantity)
	return e
}

// SetAuthenticated switches the engine between guest and authenticated
// mode. Entering authenticated mode restores any locally held guest items
// into the server cart, then adopts the merged result; with no guest items
// it fetches the server cart as is. Queued quantity updates and their
// rollback records are dropped on both transitions, since they are keyed by
// ids of the cart being left behind.
func (e *Engine) SetAuthenticated(ctx context.Context, authenticated bool) error {
	e.mu.Lock()
	if authenticated == (e.mode == ModeAuthenticated) {
		e.mu.Unlock()
		return nil
	}

	if !authenticated {
		e.queue.reset()
		e.prevQty = make(map[string]int)
		e.mode = ModeGuest
		e.local = NewGuestCart()
		e.gen++
		e.mu.Unlock()
		e.logger.Debug().Msg("Cart switched to guest mode")
		return nil
	}

	guest := e.local.Clone()
	e.mu.Unlock()

	e.beginLoading()
	defer e.endLoading()

	var (
		server *Cart
		err    error
	)
	if len(guest.Items) > 0 {
		server, err = e.api.Restore(ctx, guest)
	} else {
		server, err = e.api.Fetch(ctx)
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode == ModeAuthenticated {
		return nil
	}
	e.queue.reset()
	e.prevQty = make(map[string]int)
	e.mode = ModeAuthenticated
	e.local = server
	e.gen++
	e.logger.Info().
		Int("items", len(server.Items)).
		Msg("Cart switched to authenticated mode")
	return nil
}

// AddItem puts a product in the cart. An existing line for the same product
// gains the added quantity instead of duplicating. The local cart updates
// immediately; in authenticated mode the server result replaces it, and a
// server failure restores the pre-add state.
func (e *Engine) AddItem(ctx context.Context, item Item) error {
	if item.Quantity < 1 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	snapshot := e.local.Clone()
	e.local.merge(item)
	e.gen++
	if e.mode != ModeAuthenticated {
		mutationsTotal.WithLabelValues("add", "ok").Inc()
		e.mu.Unlock()
		return nil
	}
	gen := e.gen
	e.mu.Unlock()

	e.beginLoading()
	defer e.endLoading()

	server, err := e.api.AddItem(ctx, item)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		if e.gen == gen {
			e.local = snapshot
			e.gen++
		}
		mutationsTotal.WithLabelValues("add", "rolled_back").Inc()
		e.logger.Warn().Err(err).
			Str("product_id", item.ProductID).
			Msg("Add rolled back after server failure")
		// The call may have landed server-side; the cached read is suspect.
		e.api.Invalidate(ctx)
		return err
	}

	// Adopt the server's view so line ids are the server's.
	if e.gen == gen {
		e.local = server
		e.gen++
	}
	mutationsTotal.WithLabelValues("add", "ok").Inc()
	return nil
}

// RemoveItem deletes a cart line. Any queued quantity update for the line
// is discarded so a stale write cannot resurrect it after the removal.
func (e *Engine) RemoveItem(ctx context.Context, itemID string) error {
	if itemID == "" {
		return ErrMissingItemID
	}

	e.mu.Lock()
	e.dropQueued(itemID)

	snapshot := e.local.Clone()
	if !e.local.remove(itemID) {
		e.mu.Unlock()
		return ErrItemNotFound
	}
	e.gen++
	if e.mode != ModeAuthenticated {
		mutationsTotal.WithLabelValues("remove", "ok").Inc()
		e.mu.Unlock()
		return nil
	}
	gen := e.gen
	e.mu.Unlock()

	e.beginLoading()
	defer e.endLoading()

	err := e.api.RemoveItem(ctx, itemID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		if e.gen == gen {
			e.local = snapshot
			e.gen++
		}
		mutationsTotal.WithLabelValues("remove", "rolled_back").Inc()
		e.logger.Warn().Err(err).
			Str("item_id", itemID).
			Msg("Remove rolled back after server failure")
		e.api.Invalidate(ctx)
		return err
	}

	// The window between the local removal and the server ack could have
	// queued another update.
	e.dropQueued(itemID)
	mutationsTotal.WithLabelValues("remove", "ok").Inc()
	return nil
}

// UpdateQuantity sets the quantity of a cart line. The local cart updates
// immediately; in authenticated mode the server write is debounced, so a
// burst of changes to the same line becomes one call carrying the final
// value. A failed flush restores the quantity from before the burst.
func (e *Engine) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if itemID == "" {
		return ErrMissingItemID
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	item := e.local.find(itemID)
	if item == nil {
		return ErrItemNotFound
	}

	if _, ok := e.prevQty[itemID]; !ok {
		e.prevQty[itemID] = item.Quantity
	}
	item.Quantity = quantity
	e.local.UpdatedAt = time.Now()
	e.gen++

	if e.mode == ModeAuthenticated {
		e.queue.put(itemID, quantity)
	} else {
		mutationsTotal.WithLabelValues("update", "ok").Inc()
	}
	return nil
}

// Clear empties the cart. Queued quantity updates are discarded; in
// authenticated mode a server failure restores the previous contents.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.queue.reset()
	e.prevQty = make(map[string]int)

	snapshot := e.local.Clone()
	e.local.Items = []Item{}
	e.local.UpdatedAt = time.Now()
	e.gen++
	if e.mode != ModeAuthenticated {
		mutationsTotal.WithLabelValues("clear", "ok").Inc()
		e.mu.Unlock()
		return nil
	}
	gen := e.gen
	e.mu.Unlock()

	e.beginLoading()
	defer e.endLoading()

	err := e.api.Clear(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		if e.gen == gen {
			e.local = snapshot
			e.gen++
		}
		mutationsTotal.WithLabelValues("clear", "rolled_back").Inc()
		e.logger.Warn().Err(err).Msg("Clear rolled back after server failure")
		e.api.Invalidate(ctx)
		return err
	}
	mutationsTotal.WithLabelValues("clear", "ok").Inc()
	return nil
}

// Restore replaces or merges the cart from a previously saved one. In guest
// mode the saved cart becomes the local cart; in authenticated mode it is
// merged into the server cart and the merged result adopted.
func (e *Engine) Restore(ctx context.Context, saved *Cart) error {
	if saved == nil {
		return errors.New("saved cart is nil")
	}

	e.mu.Lock()
	e.queue.reset()
	e.prevQty = make(map[string]int)

	if e.mode != ModeAuthenticated {
		e.local = saved.Clone()
		e.gen++
		mutationsTotal.WithLabelValues("restore", "ok").Inc()
		e.mu.Unlock()
		return nil
	}
	snapshot := e.local.Clone()
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	e.beginLoading()
	defer e.endLoading()

	merged, err := e.api.Restore(ctx, saved)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		if e.gen == gen {
			e.local = snapshot
			e.gen++
		}
		mutationsTotal.WithLabelValues("restore", "rolled_back").Inc()
		e.api.Invalidate(ctx)
		return err
	}
	if e.gen == gen {
		e.local = merged
		e.gen++
	}
	mutationsTotal.WithLabelValues("restore", "ok").Inc()
	return nil
}

// Refresh refetches the server cart and adopts it. No-op in guest mode.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.mode != ModeAuthenticated {
		e.mu.Unlock()
		return nil
	}
	gen := e.gen
	e.mu.Unlock()

	e.beginLoading()
	defer e.endLoading()

	server, err := e.api.Fetch(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen == gen {
		e.local = server
		e.gen++
	}
	return nil
}

// Items returns a copy of the current cart lines.
func (e *Engine) Items() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Item(nil), e.local.Items...)
}

// Snapshot returns a deep copy of the current cart.
func (e *Engine) Snapshot() *Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local.Clone()
}

// Total is the derived cart total.
func (e *Engine) Total() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local.Total()
}

// ItemCount is the derived number of units across all lines.
func (e *Engine) ItemCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.local.ItemCount()
}

// Mode reports where the cart of record currently lives.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Loading reports whether any cart operation is currently in flight.
func (e *Engine) Loading() bool {
	return e.loading.Load() > 0
}

// Flush sends any queued quantity updates immediately instead of waiting
// out the quiescence window.
func (e *Engine) Flush() {
	e.queue.Flush()
}

// Close flushes queued updates and shuts the engine down.
func (e *Engine) Close() {
	e.queue.Flush()
	e.queue.Close()
}

// dropQueued discards a queued quantity update and its rollback record.
// Caller holds e.mu.
func (e *Engine) dropQueued(itemID string) {
	e.queue.cancel(itemID)
	delete(e.prevQty, itemID)
	debounceSupersededTotal.Inc()
}

// flushQuantity is the debouncer callback: one server write per line with
// the final value of the burst. Runs on the debounce timer goroutine.
func (e *Engine) flushQuantity(itemID string, quantity int) {
	e.mu.Lock()
	// The line may have been removed while the update was queued.
	if e.local.find(itemID) == nil {
		delete(e.prevQty, itemID)
		debounceSupersededTotal.Inc()
		e.mu.Unlock()
		return
	}
	prev, hasPrev := e.prevQty[itemID]
	gen := e.gen
	e.mu.Unlock()

	e.beginLoading()
	defer e.endLoading()

	ctx, cancel := context.WithTimeout(context.Background(), e.api.requestTimeout())
	defer cancel()

	_, err := e.api.UpdateItem(ctx, itemID, quantity)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		// A rollback is only safe when no newer local mutation claimed the
		// state in the meantime.
		if hasPrev && e.gen == gen {
			if item := e.local.find(itemID); item != nil {
				item.Quantity = prev
				e.gen++
			}
			delete(e.prevQty, itemID)
		}
		mutationsTotal.WithLabelValues("update", "rolled_back").Inc()
		e.logger.Warn().Err(err).
			Str("item_id", itemID).
			Int("quantity", quantity).
			Msg("Quantity update rolled back after server failure")
		// ctx may already be past its deadline here.
		e.api.Invalidate(context.Background())
		return
	}

	delete(e.prevQty, itemID)
	debounceFlushesTotal.Inc()
	mutationsTotal.WithLabelValues("update", "ok").Inc()
}

func (e *Engine) beginLoading() { e.loading.Add(1) }
func (e *Engine) endLoading()   { e.loading.Add(-1) }
