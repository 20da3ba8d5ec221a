package shopify

import (
	"fmt"
	"strconv"
	"strings"
)

// ExtractID returns the numeric id from a gid://shopify/Type/123 identifier.
func ExtractID(gid string) (int64, error) {
	if gid == "" {
		return 0, fmt.Errorf("empty gid")
	}
	parts := strings.Split(gid, "/")
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid gid %q: %w", gid, err)
	}
	return id, nil
}

// GID builds a gid://shopify identifier from a resource type and numeric id.
func GID(resourceType string, id int64) string {
	return fmt.Sprintf("gid://shopify/%s/%d", resourceType, id)
}
