package kv

import "errors"

// Sentinel error kinds. Backends and the Store wrap one of these with
// fmt.Errorf("...: %w", ...) so callers can use errors.Is.
var (
	// ErrUnknownKey is returned when an operation expects a key to exist
	// and it does not (e.g. move_key with a missing source).
	ErrUnknownKey = errors.New("kv: unknown key")

	// ErrDuplicateKey is returned by StoreNew when the key already exists.
	ErrDuplicateKey = errors.New("kv: duplicate key")

	// ErrIO wraps filesystem/network failures from a backend.
	ErrIO = errors.New("kv: io error")

	// ErrCodec is returned when a stored value cannot be decoded into the
	// type requested by the caller.
	ErrCodec = errors.New("kv: codec error")

	// ErrBackend wraps backend-specific failures that don't fit the other
	// categories (e.g. a bbolt transaction error).
	ErrBackend = errors.New("kv: backend error")

	// ErrOther is a catch-all for programmer errors such as malformed
	// segments or invalid storage URIs.
	ErrOther = errors.New("kv: other error")

	// ErrNamespaceNotEmpty is returned by MigrateToCurrent when the
	// target namespace already holds keys.
	ErrNamespaceNotEmpty = errors.New("kv: namespace not empty")
)
