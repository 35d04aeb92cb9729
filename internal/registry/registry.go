// Package registry holds the mapping from Order Key to the provisioned
// resource handle. A handle records which provider-side instance an order
// refers to; the instance itself is owned by the provider, not by this
// process.
package registry

import "context"

// Handle is the minimal record stored per Order Key.
type Handle struct {
	// Type of the provisioned resource; always "vm" today.
	Type string `json:"type"`
	// ID is the provider-side instance identifier.
	ID string `json:"id"`
}

// Store persists handles keyed by Order Key. Keys are expected to be
// upper-cased by the caller before any call.
type Store interface {
	// Get returns the handle for key; found is false when none exists.
	Get(ctx context.Context, key string) (handle Handle, found bool, err error)
	// Put writes the handle for key, overwriting any previous one.
	Put(ctx context.Context, key string, handle Handle) error
	// Remove deletes the entry for key; removing an absent key is not an
	// error.
	Remove(ctx context.Context, key string) error
	// Keys lists all stored Order Keys.
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
