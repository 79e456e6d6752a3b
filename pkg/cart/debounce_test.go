package cart

import (
	"sync"
	"testing"
	"time"
)

type flushRecorder struct {
	mu    sync.Mutex
	calls []struct {
		itemID   string
		quantity int
	}
}

func (r *flushRecorder) flush(itemID string, quantity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, struct {
		itemID   string
		quantity int
	}{itemID, quantity})
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestDebouncer_CoalescesToLastValue(t *testing.T) {
	rec := &flushRecorder{}
	d := newDebouncer(30*time.Millisecond, rec.flush)
	defer d.Close()

	// A rapid burst: only the final value may reach the server.
	d.put("item-1", 3)
	d.put("item-1", 5)
	d.put("item-1", 2)

	time.Sleep(100 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Fatalf("Expected exactly 1 flush, got %d", got)
	}
	if rec.calls[0].itemID != "item-1" || rec.calls[0].quantity != 2 {
		t.Errorf("Expected final value 2 for item-1, got %+v", rec.calls[0])
	}
}

func TestDebouncer_PerItemValues(t *testing.T) {
	rec := &flushRecorder{}
	d := newDebouncer(20*time.Millisecond, rec.flush)
	defer d.Close()

	d.put("item-1", 4)
	d.put("item-2", 7)

	time.Sleep(80 * time.Millisecond)

	if got := rec.count(); got != 2 {
		t.Fatalf("Expected one flush per item, got %d", got)
	}
	values := map[string]int{}
	for _, call := range rec.calls {
		values[call.itemID] = call.quantity
	}
	if values["item-1"] != 4 || values["item-2"] != 7 {
		t.Errorf("Unexpected flushed values: %v", values)
	}
}

func TestDebouncer_CancelDropsQueuedValue(t *testing.T) {
	rec := &flushRecorder{}
	d := newDebouncer(20*time.Millisecond, rec.flush)
	defer d.Close()

	d.put("item-1", 9)
	d.cancel("item-1")

	time.Sleep(80 * time.Millisecond)

	if got := rec.count(); got != 0 {
		t.Errorf("Expected no flush after cancel, got %d", got)
	}
}

func TestDebouncer_ResetDropsEverything(t *testing.T) {
	rec := &flushRecorder{}
	d := newDebouncer(20*time.Millisecond, rec.flush)
	defer d.Close()

	d.put("item-1", 2)
	d.put("item-2", 3)
	d.reset()

	time.Sleep(80 * time.Millisecond)

	if got := rec.count(); got != 0 {
		t.Errorf("Expected no flush after reset, got %d", got)
	}
}

func TestDebouncer_FlushFiresImmediately(t *testing.T) {
	rec := &flushRecorder{}
	d := newDebouncer(10*time.Second, rec.flush)
	defer d.Close()

	d.put("item-1", 6)
	d.Flush()

	if got := rec.count(); got != 1 {
		t.Fatalf("Expected immediate flush, got %d calls", got)
	}
	if rec.calls[0].quantity != 6 {
		t.Errorf("Expected quantity 6, got %d", rec.calls[0].quantity)
	}

	// A second flush with an empty queue is a no-op.
	d.Flush()
	if got := rec.count(); got != 1 {
		t.Errorf("Expected no further flushes, got %d", got)
	}
}

func TestDebouncer_ClosedIgnoresPuts(t *testing.T) {
	rec := &flushRecorder{}
	d := newDebouncer(20*time.Millisecond, rec.flush)

	d.Close()
	d.put("item-1", 1)

	time.Sleep(60 * time.Millisecond)

	if got := rec.count(); got != 0 {
		t.Errorf("Expected closed debouncer to drop puts, got %d flushes", got)
	}
}
