package redis

import (
	"fmt"
	"strings"
)

// KeyPrefixResource is the prefix for resource documents
const KeyPrefixResource = "urldammit:resource:"

// ResourceKey returns the Redis key for a resource by ID
func ResourceKey(id string) string {
	return KeyPrefixResource + id
}

// ExtractResourceID extracts the resource ID from a Redis key
func ExtractResourceID(key string) (string, error) {
	id, ok := strings.CutPrefix(key, KeyPrefixResource)
	if !ok || id == "" {
		return "", fmt.Errorf("invalid resource key: %s", key)
	}
	return id, nil
}
