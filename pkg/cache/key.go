package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key represents a unique identifier for a cached Census API response.
type Key struct {
	// Endpoint is the dataset path (e.g., "/data/2017/popproj/pop")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"get": "POP,YEAR", "for": "us:*"})
	QueryParams url.Values
}

// Query parameters that never become part of the cache key. The API key
// carries no data semantics and must not end up in Redis.
var excludedParams = map[string]bool{
	"key": true,
}

// String generates a deterministic cache key string.
// Format: census:endpoint:param1=val1:param2=val2
//
// Example:
//
//	census:data/2017/popproj/pop:for=us:*:get=POP,YEAR,RACE,SEX,AGE
func (k Key) String() string {
	parts := []string{"census"}

	// Add endpoint (normalize path)
	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			if excludedParams[key] {
				continue
			}
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
