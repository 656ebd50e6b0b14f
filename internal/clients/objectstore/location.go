package objectstore

import (
	"fmt"
	"strings"
)

// ParseLocationURI splits a stored location of shape
// "scheme://host/bucket/rest-of-path" into (bucket, key).
func ParseLocationURI(location string) (bucket, key string, err error) {
	idx := strings.Index(location, "://")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed location uri %q: missing scheme", location)
	}
	rest := location[idx+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return "", "", fmt.Errorf("malformed location uri %q: missing bucket", location)
	}
	rest = rest[slash+1:]
	slash = strings.Index(rest, "/")
	if slash < 0 || slash == len(rest)-1 {
		return "", "", fmt.Errorf("malformed location uri %q: missing object path", location)
	}
	return rest[:slash], rest[slash+1:], nil
}

// BuildLocationURI is the inverse of ParseLocationURI for newly created
// objects.
func BuildLocationURI(scheme, host, bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s/%s", scheme, host, bucket, strings.TrimPrefix(key, "/"))
}
