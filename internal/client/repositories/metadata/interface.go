// Package metadata stores small key/value records in the CLI's local SQLite
// database, and the current session on top of them.
package metadata

import (
	"context"
)

// Repository is a byte-valued key/value table.
type Repository interface {
	// Get reports common.ErrorNotFound for an absent key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put upserts every pair; a nil value is stored as empty.
	Put(ctx context.Context, values map[string][]byte) error
	// Delete removes the keys; absent keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	All(ctx context.Context) (map[string][]byte, error)
}
