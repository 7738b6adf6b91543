// Package storage provides the key-value persistence layer the session
// manager saves its state into. Backends exist for memory, the filesystem,
// Redis, and Postgres; all of them store opaque byte blobs under string keys.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists under the key.
var ErrNotFound = errors.New("storage: key not found")

// Store is the persistence contract. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
