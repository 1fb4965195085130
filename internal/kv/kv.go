// Package kv defines the key-value backends a gallery collection is persisted
// into, and provides implementations over memory, local files, a git
// repository, SQLite, Redis and S3-compatible object storage.
//
// A backend stores opaque values under short keys. Put replaces a whole
// value atomically; there are no partial writes.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Backend is a key-value store holding whole values.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backend's resources.
	Close() error
}

// Watcher is implemented by backends that can report changes to a key,
// including changes made by other processes when the backend supports it.
type Watcher interface {
	// Watch calls fn after each change to key until ctx is done. It blocks.
	Watch(ctx context.Context, key string, fn func()) error
}

// ValidateKey returns an error unless key is a non-empty run of ASCII
// letters, digits, '.', '_' or '-' that does not start with a dot. Keys are
// used verbatim as file names and object names.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("kv: empty key")
	}
	if key[0] == '.' {
		return fmt.Errorf("kv: key %q starts with a dot", key)
	}
	for i := range len(key) {
		c := key[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '.' && c != '_' && c != '-' {
			return fmt.Errorf("kv: invalid character %q in key %q", c, key)
		}
	}
	return nil
}

type commitMessageKey struct{}

// WithCommitMessage attaches a human readable description of the next write
// to ctx. Versioned backends record it; others ignore it.
func WithCommitMessage(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, commitMessageKey{}, msg)
}

// CommitMessage returns the message attached by WithCommitMessage, or
// fallback.
func CommitMessage(ctx context.Context, fallback string) string {
	if msg, ok := ctx.Value(commitMessageKey{}).(string); ok && msg != "" {
		return msg
	}
	return fallback
}
