// Package storage provides the object-store access layer that carries
// publish requests and their outcome objects.
package storage

import (
	"context"
	"strings"
)

// Object key suffixes encoding the request state machine. A request moves
// from the pending suffix to exactly one of the others; the rename is the
// only persistent state transition.
const (
	PendingSuffix   = "_publish.json"
	ProcessedSuffix = "_published.json"
	FailuresSuffix  = "_failures.json"
	CorruptedSuffix = "_corrupted.json"
)

// WithSuffix swaps the pending suffix of key for another state suffix.
func WithSuffix(key, suffix string) string {
	return strings.TrimSuffix(key, PendingSuffix) + suffix
}

// ObjectStore is the storage interface consumed by the cycle worker.
type ObjectStore interface {
	// ListPending returns the keys of all pending publish requests in the
	// bucket, in listing order.
	ListPending(ctx context.Context) ([]string, error)

	// Get reads the full content of an object.
	Get(ctx context.Context, key string) ([]byte, error)

	// PutJSON writes v as an indented JSON object.
	PutJSON(ctx context.Context, key string, v any) error

	// Rename copies src to dst and removes src. Not atomic; callers rely on
	// idempotent downstream effects when interrupted in between.
	Rename(ctx context.Context, src, dst string) error

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Ping verifies the bucket is reachable.
	Ping(ctx context.Context) error
}
