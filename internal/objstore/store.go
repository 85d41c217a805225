// Package objstore stores generated images: an S3 bucket in production or
// a local directory in development, plus the importer that copies images
// from the generation gateway into the store.
package objstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is content storage addressed by key. Objects are publicly readable
// at URL(key).
type Store interface {
	Head(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	URL(key string) string
	// KeyFor returns the key of a URL that points into this store.
	KeyFor(url string) (string, bool)
}

// Fetch reads the object a store URL points at. URLs outside the store
// report ErrNotFound.
func Fetch(ctx context.Context, s Store, url string) ([]byte, error) {
	key, ok := s.KeyFor(url)
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(ctx, key)
}

func keyUnder(base, url string) (string, bool) {
	base = strings.TrimRight(base, "/") + "/"
	if base == "/" || !strings.HasPrefix(url, base) {
		return "", false
	}
	key := strings.TrimPrefix(url, base)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
