// Package cache stores short-lived JSON values in Redis.
//
// The gateway uses it to remember geolocation results per client IP so that
// repeated page loads do not hit the lookup service. Every operation is
// best-effort from the caller's point of view: a cache error is logged and
// counted, never surfaced to the HTTP client.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{Namespace: "geo", ID: "203.0.113.7"}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// look up and store
//		_ = manager.Set(ctx, key, cache.NewEntry(data, 6*time.Hour))
//	}
//
// # Metrics
//
//   - hr_gateway_cache_hits_total - Cache hits
//   - hr_gateway_cache_misses_total - Cache misses
//   - hr_gateway_cache_errors_total{operation} - Redis or decode failures
package cache
