package vault

import (
	"fmt"
	"path"
	"strings"
)

// validateKey rejects keys that could escape the bucket or root directory.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("invalid object key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}

// objectKey applies the configured prefix to key.
func objectKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return path.Join(prefix, key)
}

// joinURL appends an object key to a base URL.
func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + key
}
