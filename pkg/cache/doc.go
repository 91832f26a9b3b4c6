// Package cache provides a generic LRU cache with optional expiry.
//
//	plans := cache.NewLRUCache[string, subscription.Plan](256, 5*time.Minute)
//	plans.Put(plan.PriceID, plan)
//	if p, ok := plans.Get("price_pro"); ok {
//	    // use p
//	}
//
// All operations are O(1) and safe for concurrent use. Expired entries are
// removed lazily on access.
package cache
