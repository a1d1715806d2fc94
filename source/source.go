// Package source abstracts where reference images live. The engine only
// needs two capabilities: enumerate identifiers with metadata, and fetch
// raw bytes for one identifier. It never branches on the backend type.
package source

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"imagesearch/types"
)

// Source enumerates and fetches reference images.
type Source interface {
	// List returns the available images in a stable, deterministic
	// order. Identifiers are opaque and stable across calls.
	List(ctx context.Context) ([]types.ImageRef, error)

	// Fetch returns the raw bytes for one identifier.
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// FetchError reports a failed byte retrieval: unknown identifier or
// transport failure.
type FetchError struct {
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("cannot fetch image %s: %v", e.ID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// contentTypeFor maps a file extension to a MIME type, falling back to a
// generic type when the extension is unknown.
func contentTypeFor(ext string) string {
	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		return t
	}
	return "application/octet-stream"
}
