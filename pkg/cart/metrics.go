package cart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationsTotal tracks cart mutations by operation and outcome
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total cart mutations by operation and outcome",
		},
		[]string{"op", "outcome"}, // op: add/remove/update/clear/restore, outcome: ok/rolled_back
	)

	// debounceFlushesTotal tracks flushed quantity updates
	debounceFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cart_debounce_flushes_total",
			Help: "Total debounced quantity updates flushed to the server",
		},
	)

	// debounceSupersededTotal tracks queued quantity values discarded before flush
	debounceSupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cart_debounce_superseded_total",
			Help: "Total queued quantity updates superseded or cancelled before flush",
		},
	)
)
