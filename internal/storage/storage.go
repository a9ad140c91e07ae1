// Package storage provides the publish destination for rendered artifacts.
package storage

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks -source=storage.go Storage

// ErrNotFound is returned by Read for keys that do not exist
var ErrNotFound = errors.New("not found")

// Storage is a flat key/value store of published artifacts. Keys use forward
// slashes, for example "hello-world/index.html".
type Storage interface {
	// Read returns the content stored under key, or ErrNotFound
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores data under key, replacing any previous content
	Write(ctx context.Context, key string, data []byte, contentType string) error

	// Delete removes key. Deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns every key starting with prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key is stored
	Exists(ctx context.Context, key string) (bool, error)
}

const defaultContentType = "application/octet-stream"

// ContentTypeFor guesses the content type of a key from its extension
func ContentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ext == "" {
		return defaultContentType
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return defaultContentType
}

// cleanKey normalises a key to a slash separated relative path
func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}
