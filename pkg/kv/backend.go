package kv

import "context"

// Backend is the pluggable storage engine a Store dispatches to. Every
// method takes an explicit namespace so that migrate_to_archive and
// migrate_to_current can be implemented as a rename at the backend root
// rather than requiring a Store per namespace.
//
// Implementations must treat (namespace, key) as the unit of identity:
// the same key in two different namespaces is unrelated data.
type Backend interface {
	// Store writes value under key, creating or overwriting it.
	Store(ctx context.Context, namespace string, key Key, value []byte) error

	// StoreNew writes value under key, failing with ErrDuplicateKey if
	// the key already exists. Must be atomic with respect to concurrent
	// callers targeting the same key.
	StoreNew(ctx context.Context, namespace string, key Key, value []byte) error

	// Get returns the raw bytes stored under key, or (nil, nil) if the
	// key does not exist.
	Get(ctx context.Context, namespace string, key Key) ([]byte, error)

	// Has reports whether key exists in namespace.
	Has(ctx context.Context, namespace string, key Key) (bool, error)

	// DropKey removes key outright. Used only for genuinely disposable
	// data (e.g. stale locks), never for command or event history.
	DropKey(ctx context.Context, namespace string, key Key) error

	// DropScope removes every key under scope, recursively.
	DropScope(ctx context.Context, namespace string, scope Scope) error

	// Wipe removes every key in the namespace, including the namespace
	// root itself if the backend tracks namespaces as distinct objects.
	Wipe(ctx context.Context, namespace string) error

	// MoveKey relocates the value at from to to, atomically with respect
	// to other operations on either key. Fails with ErrUnknownKey if
	// from does not exist, and ErrDuplicateKey if to already does.
	MoveKey(ctx context.Context, namespace string, from, to Key) error

	// Scopes lists every distinct scope that currently holds at least
	// one key, in a backend-dependent but stable order.
	Scopes(ctx context.Context, namespace string) ([]Scope, error)

	// Keys lists every key directly within scope. When recursive is
	// true, keys in sub-scopes are included too.
	Keys(ctx context.Context, namespace string, scope Scope, recursive bool) ([]Key, error)

	// MigrateNamespace renames an entire namespace, moving every key it
	// holds. Used for migrate_to_archive and migrate_to_current.
	MigrateNamespace(ctx context.Context, from, to string) error

	// Transactional runs fn with a Txn scoped to a single top-level
	// scope segment, serializing it against any other transaction on
	// the same (namespace, scope) pair. Implementations that cannot
	// offer true isolation must still serialize same-scope callers.
	Transactional(ctx context.Context, namespace string, scope Scope, fn func(Txn) error) error
}

// Txn is the restricted view of a Backend available inside a
// Transactional callback: reads and writes, but no scope/namespace
// level structural operations.
type Txn interface {
	Store(key Key, value []byte) error
	Get(key Key) ([]byte, error)
	Has(key Key) (bool, error)
	DropKey(key Key) error
}
