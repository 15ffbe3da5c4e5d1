// Package storage provides the durable key-value store that replaces the
// browser's localStorage. Values are opaque JSON blobs grouped by scope,
// one scope per shopper session.
package storage

import "context"

// Store is a scoped key-value store. Get reports found=false for missing keys.
type Store interface {
	Get(ctx context.Context, scope, key string) ([]byte, bool, error)
	// PutAll writes every entry of values in one atomic step.
	PutAll(ctx context.Context, scope string, values map[string][]byte) error
	Delete(ctx context.Context, scope string, keys ...string) error
}

// Scope binds a Store to one session.
type Scope struct {
	store Store
	name  string
}

func NewScope(store Store, name string) Scope {
	return Scope{store: store, name: name}
}

func (s Scope) Name() string {
	return s.name
}

func (s Scope) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.store.Get(ctx, s.name, key)
}

func (s Scope) Put(ctx context.Context, key string, value []byte) error {
	return s.store.PutAll(ctx, s.name, map[string][]byte{key: value})
}

func (s Scope) PutAll(ctx context.Context, values map[string][]byte) error {
	return s.store.PutAll(ctx, s.name, values)
}

func (s Scope) Delete(ctx context.Context, keys ...string) error {
	return s.store.Delete(ctx, s.name, keys...)
}
