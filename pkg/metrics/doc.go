// Package metrics exposes the Prometheus collectors used by the billing engine.
//
// Collectors are declared next to the helper functions that update them and are
// enqueued from init functions. Call MustRegister once during start-up to add
// them to the default registry; the helpers are safe to call before that, the
// values are simply not exported until registration happens.
package metrics
