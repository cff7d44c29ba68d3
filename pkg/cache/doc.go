// Package cache provides a generic, thread-safe LRU cache with optional TTL.
//
// Entries are evicted when capacity is exceeded (least recently used first) or
// lazily once their TTL has passed. The plan catalog uses it to keep
// admin-managed plan definitions close to the request path:
//
//	c := cache.NewLRUCache[string, plan.Plan](128, cache.WithTTL[string, plan.Plan](time.Minute))
//	c.Put("fleet_pro", p)
//	p, ok := c.Get("fleet_pro")
//
// All operations are O(1) and safe for concurrent use.
package cache
