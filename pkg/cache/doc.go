// Package cache provides Census API response caching with a Redis backend.
//
// The cache manager implements HTTP-compliant caching with the following features:
//
// - Respect of CDN expires headers with a fallback TTL
// - ETag support for conditional requests (If-None-Match)
// - Last-Modified support (If-Modified-Since)
// - Automatic TTL management based on the expires header
// - Prometheus metrics for observability
// - Deterministic cache key generation, API key excluded
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create cache manager
//	manager := cache.NewManager(redisClient)
//
//	// Create cache key
//	key := cache.Key{
//		Endpoint: "/data/2017/popproj/pop",
//		QueryParams: url.Values{"get": []string{"POP,YEAR,RACE,SEX,AGE"}},
//	}
//
//	// Get from cache
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// Cache miss - fetch from the Census API
//	}
//
// # HTTP Response Caching
//
//	// Convert HTTP response to cache entry
//	entry, err := cache.ResponseToEntry(resp, cache.DefaultTTL)
//	if err != nil {
//		return err
//	}
//
//	// Store in cache
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Conditional Requests
//
//	// Check if we should make a conditional request
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// The API returns 304 if the dataset is unchanged
//	}
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - census_cache_hits_total{layer="redis"} - Cache hits
//   - census_cache_misses_total - Cache misses
//   - census_cache_size_bytes{layer="redis"} - Cache size
//   - census_304_responses_total - Conditional request successes
//   - census_cache_errors_total{operation} - Cache operation errors
//
// # Why cache at all
//
// The popproj dataset changes rarely while the connector fetches it once per
// demographic parameter set per run. Serving repeat fetches from Redis keeps
// the daily request quota (500 requests per key per day) for real work.
package cache
