// Package cache provides an in-process LRU cache with per-entry expiry.
//
//	c := cache.NewLRU[string, []byte](1024, time.Minute)
//	c.Put("shop", payload)
//	if v, ok := c.Get("shop"); ok {
//		...
//	}
package cache
