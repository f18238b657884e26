package cache

import "strings"

// KeyPrefix starts every key written by the gateway.
const KeyPrefix = "hrgw"

// CacheKey identifies a cached value within a namespace.
type CacheKey struct {
	// Namespace groups keys by feature (e.g. "geo").
	Namespace string

	// ID is the value identifier inside the namespace (e.g. a client IP).
	ID string
}

// String renders the Redis key.
// Format: hrgw:namespace:id
//
// Example:
//
//	hrgw:geo:203.0.113.7
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	if id := strings.TrimSpace(k.ID); id != "" {
		parts = append(parts, id)
	}

	return strings.Join(parts, ":")
}
