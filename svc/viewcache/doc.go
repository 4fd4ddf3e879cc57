// Package viewcache implements billing.ViewCache backends: Redis for
// multi-instance deployments, an in-process LRU for single instances and a
// no-op cache that always misses. Views are stored as JSON with a TTL, so a
// missed invalidation heals on expiry.
package viewcache
