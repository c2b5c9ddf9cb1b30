// Package token owns the trust-token lifecycle: deciding whether cached tokens are
// still usable, driving the browser that mints new ones, and making sure only one
// acquisition per scope runs at a time.
package token

import (
	"context"

	"farecraft/models"
)

// Store is the durable cache of token sets keyed by scope.
// Put replaces the whole record atomically; expiry is never enforced by the store.
type Store interface {
	Get(ctx context.Context, scopeKey string) (models.TokenSet, bool, error)
	Put(ctx context.Context, ts models.TokenSet) error
	Clear(ctx context.Context, scopeKey string) error
}

// Handle is an open session on a Source. Only the Source that issued it knows its shape.
type Handle = any

// Source is the stealth browser that earns trust cookies.
// Every Handle returned by Open must be passed to Close exactly once.
type Source interface {
	Open(ctx context.Context, scopeKey string) (Handle, error)
	Observe(ctx context.Context, h Handle) (map[string]string, error)
	SimulateInteraction(ctx context.Context, h Handle) error
	Close(h Handle) error
}
