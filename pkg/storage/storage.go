// Package storage abstracts where generated artifacts (voucher QR codes) live.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by backends when a key does not exist.
var ErrNotFound = errors.New("blob not found")

// BlobStore is the minimal surface the voucher artifacts need.
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Save(ctx context.Context, key, contentType string, data []byte) error
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey normalizes a key and rejects path traversal.
func CleanKey(key string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("blob key required")
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == "" || part == "." || part == ".." {
			return "", errors.New("invalid blob key " + key)
		}
	}
	return trimmed, nil
}
