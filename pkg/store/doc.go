// Package store provides the persistent, multi-process-shared state behind
// the launcher: the issue cache, the recency list and small durable settings.
//
// All coordination between the interactive foreground process and background
// refresh jobs happens through this store. Nothing is kept in process memory
// across invocations; every operation takes an explicit *Store handle scoped
// to one invocation.
//
// # Cache entries
//
// An Entry pairs an opaque JSON value with the time it was stored. Entries
// are written wholesale on a successful refresh and read by the foreground
// query; there is no partial merge. Freshness is a pure classification of an
// entry against a caller-supplied max age:
//
//	entry, err := st.Get(ctx, "PROJ")
//	switch store.Evaluate(entry, 10*time.Minute, time.Now()) {
//	case store.Missing:
//		// no usable data, a refresh is needed
//	case store.Stale:
//		// usable but old, refresh in the background
//	case store.Fresh:
//		// serve as-is
//	}
//
// A persisted entry that can no longer be decoded classifies as Missing,
// which naturally triggers a refresh.
//
// # Recency list
//
// Recency is a bounded, deduplicated, most-recent-first list of issue keys
// backed by a Redis list. Touch moves a key to the front and truncates to
// capacity. Resolve re-checks the listed keys upstream and prunes the ones
// that no longer exist, keeping survivors in their original order.
//
// # Metrics
//
// The store exports Prometheus metrics:
//
//   - issuedeck_store_hits_total - Cache hits
//   - issuedeck_store_misses_total - Cache misses
//   - issuedeck_store_errors_total{operation} - Store operation errors
//   - issuedeck_recency_pruned_total - Keys pruned from the recency list
package store
