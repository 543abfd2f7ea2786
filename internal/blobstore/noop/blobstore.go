// Package noop provides a blob store that discards everything.
package noop

import (
	"context"
	"io"
)

// BlobStore drops archived bodies. Useful for dry runs where nothing should
// touch disk or a bucket.
type BlobStore struct{}

// New returns a BlobStore.
func New() *BlobStore {
	return &BlobStore{}
}

// PutObject discards data and returns an empty URI.
func (BlobStore) PutObject(_ context.Context, _ string, _ string, data io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, data); err != nil {
		return "", err
	}
	return "", nil
}
