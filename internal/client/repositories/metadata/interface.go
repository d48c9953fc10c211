// Package metadata is a small key/value store for per-install settings of
// the local client, such as the client identity sent with every request.
package metadata

import (
	"context"
)

// KeyClientID holds the per-install client identity.
const KeyClientID = "client_id"

type Repository interface {
	// Get returns nil, nil for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Ensure returns the stored value of key, storing create() first when
	// the key is missing.
	Ensure(ctx context.Context, key string, create func() string) (string, error)
}
