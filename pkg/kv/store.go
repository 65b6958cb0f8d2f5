package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/krillca/krill/pkg/log"
	"github.com/krillca/krill/pkg/metrics"
)

// Store binds one namespace to one Backend, resolved from a storage
// URI. It is the concrete KeyValueStore: every method here corresponds
// to one operation of the engine room's KVS contract.
type Store struct {
	namespace string
	backend   Backend
	uri       string
}

// Open parses uri and returns a Store for namespace backed by it.
// Supported schemes:
//
//	memory:/anything           -> shared process-wide MemoryBackend keyed by host+path
//	local://<host><path>/      -> filesystem, rooted at host+path
//	bolt://<host><path>/       -> single bbolt file at host+path, shared across namespaces in the same file
func Open(uri, namespace string) (*Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse storage uri %q: %w", uri, ErrOther)
	}

	switch u.Scheme {
	case "memory":
		id := u.Opaque
		if id == "" {
			id = u.Host + u.Path
		}
		return &Store{namespace: namespace, backend: sharedMemoryBackend(id), uri: uri}, nil
	case "local":
		root := u.Host + u.Path
		return &Store{namespace: namespace, backend: NewLocalBackend(root), uri: uri}, nil
	case "bolt":
		path := u.Host + u.Path
		path = strings.TrimSuffix(path, "/")
		b, err := sharedBoltBackend(path)
		if err != nil {
			return nil, err
		}
		return &Store{namespace: namespace, backend: b, uri: uri}, nil
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q: %w", u.Scheme, ErrOther)
	}
}

// memoryBackends lets repeated Open calls against the same memory: URI
// within one process share state, matching how local:// and bolt://
// share the underlying filesystem/db file.
var memoryBackends = map[string]*MemoryBackend{}

func sharedMemoryBackend(id string) *MemoryBackend {
	if b, ok := memoryBackends[id]; ok {
		return b
	}
	b := NewMemoryBackend()
	memoryBackends[id] = b
	return b
}

var boltBackends = map[string]*BoltBackend{}

func sharedBoltBackend(path string) (*BoltBackend, error) {
	if b, ok := boltBackends[path]; ok {
		return b, nil
	}
	b, err := NewBoltBackend(path)
	if err != nil {
		return nil, err
	}
	boltBackends[path] = b
	return b, nil
}

// Namespace returns the namespace this Store is bound to.
func (s *Store) Namespace() string { return s.namespace }

// versionKey holds the namespace's key-store version marker, written by
// EnsureVersion the first time it is called on a namespace; nothing
// else in this module writes or reads it. krill's two historical
// naming schemes (spec.md §9) are told apart by whether this key is
// present at all.
var versionKey = Key{Name: MustSegment("version")}

// CurrentKeyStoreVersion is the version written by EnsureVersion for
// namespaces created by this implementation.
const CurrentKeyStoreVersion = 1

// EnsureVersion writes the namespace's version marker if it is not
// already present, and returns the version found or written.
func (s *Store) EnsureVersion(ctx context.Context) (int, error) {
	data, err := s.Get(ctx, versionKey)
	if err != nil {
		return 0, fmt.Errorf("read version marker: %w", err)
	}
	if data != nil {
		var v int
		if err := json.Unmarshal(data, &v); err != nil {
			return 0, fmt.Errorf("decode version marker: %w", err)
		}
		return v, nil
	}
	if err := s.StoreJSON(ctx, versionKey, CurrentKeyStoreVersion); err != nil {
		return 0, fmt.Errorf("write version marker: %w", err)
	}
	return CurrentKeyStoreVersion, nil
}

func (s *Store) observe(op string) func(err error) {
	timer := metrics.NewTimer()
	return func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.KVOperationsTotal.WithLabelValues(op, status).Inc()
		timer.ObserveDurationVec(metrics.KVOperationDuration, op)
	}
}

// Store writes raw bytes under key, creating or overwriting it.
func (s *Store) Store(ctx context.Context, key Key, value []byte) error {
	done := s.observe("store")
	err := s.backend.Store(ctx, s.namespace, key, value)
	done(err)
	return err
}

// StoreJSON marshals v as JSON and stores it under key.
func (s *Store) StoreJSON(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, ErrCodec)
	}
	return s.Store(ctx, key, data)
}

// StoreNew is Store, but fails with ErrDuplicateKey if key exists.
func (s *Store) StoreNew(ctx context.Context, key Key, value []byte) error {
	done := s.observe("store_new")
	err := s.backend.StoreNew(ctx, s.namespace, key, value)
	done(err)
	return err
}

// Get returns the raw bytes under key, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, error) {
	done := s.observe("get")
	v, err := s.backend.Get(ctx, s.namespace, key)
	done(err)
	return v, err
}

// Get decodes the JSON value stored under key into a freshly allocated
// *V, returning (nil, nil) if the key does not exist.
func Get[V any](ctx context.Context, s *Store, key Key) (*V, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, ErrCodec)
	}
	return &v, nil
}

// GetTransactional runs fn inside a transaction scoped to the
// top-level segment of scope, serialized against other transactions on
// the same (namespace, scope).
func (s *Store) GetTransactional(ctx context.Context, scope Scope, fn func(Txn) error) error {
	done := s.observe("get_transactional")
	err := s.backend.Transactional(ctx, s.namespace, scope, fn)
	done(err)
	return err
}

// Transact is an alias for GetTransactional, naming the common case of
// using a transaction for a read-modify-write rather than a pure read.
func (s *Store) Transact(ctx context.Context, scope Scope, fn func(Txn) error) error {
	return s.GetTransactional(ctx, scope, fn)
}

// Has reports whether key exists.
func (s *Store) Has(ctx context.Context, key Key) (bool, error) {
	done := s.observe("has")
	ok, err := s.backend.Has(ctx, s.namespace, key)
	done(err)
	return ok, err
}

// DropKey removes key outright.
func (s *Store) DropKey(ctx context.Context, key Key) error {
	done := s.observe("drop_key")
	err := s.backend.DropKey(ctx, s.namespace, key)
	done(err)
	return err
}

// DropScope removes every key under scope.
func (s *Store) DropScope(ctx context.Context, scope Scope) error {
	done := s.observe("drop_scope")
	err := s.backend.DropScope(ctx, s.namespace, scope)
	done(err)
	return err
}

// Wipe removes every key in the namespace.
func (s *Store) Wipe(ctx context.Context) error {
	done := s.observe("wipe")
	err := s.backend.Wipe(ctx, s.namespace)
	done(err)
	return err
}

// MoveKey relocates the value at from to to.
func (s *Store) MoveKey(ctx context.Context, from, to Key) error {
	done := s.observe("move_key")
	err := s.backend.MoveKey(ctx, s.namespace, from, to)
	done(err)
	return err
}

// ArchiveKey moves key into the "archived" quarantine sub-scope of its
// current scope, preserving its name.
func (s *Store) ArchiveKey(ctx context.Context, key Key) error {
	return s.archiveTo(ctx, key, SubScopeArchived)
}

// ArchiveCorrupt moves key into the "corrupt" quarantine sub-scope.
// Used by recover() when a stored command cannot be read or
// deserialized.
func (s *Store) ArchiveCorrupt(ctx context.Context, key Key) error {
	return s.archiveTo(ctx, key, SubScopeCorrupt)
}

// ArchiveSurplus moves key into the "surplus" quarantine sub-scope.
// Used by recover() when a command references events that never made
// it to disk, or sits beyond the latest known consistent version.
func (s *Store) ArchiveSurplus(ctx context.Context, key Key) error {
	return s.archiveTo(ctx, key, SubScopeSurplus)
}

func (s *Store) archiveTo(ctx context.Context, key Key, subScope string) error {
	dest := key.WithScope(key.Scope.Sub(subScope))
	done := s.observe("archive_" + subScope)
	err := s.backend.MoveKey(ctx, s.namespace, key, dest)
	done(err)
	if err != nil {
		log.WithNamespace(s.namespace).Warn().
			Str("key", key.String()).
			Str("dest", dest.String()).
			Err(err).
			Msg("failed to archive key")
	}
	return err
}

// Scopes lists every scope in the namespace holding at least one key.
func (s *Store) Scopes(ctx context.Context) ([]Scope, error) {
	return s.backend.Scopes(ctx, s.namespace)
}

// Keys lists every key directly within scope, or recursively including
// sub-scopes when recursive is true.
func (s *Store) Keys(ctx context.Context, scope Scope, recursive bool) ([]Key, error) {
	return s.backend.Keys(ctx, s.namespace, scope, recursive)
}

// Import copies every key from src into s, overwriting existing keys.
// Used to seed a fresh namespace from an archive snapshot.
func (s *Store) Import(ctx context.Context, src *Store) error {
	keys, err := src.Keys(ctx, Scope{}, true)
	if err != nil {
		return fmt.Errorf("list keys of %s: %w", src.namespace, err)
	}
	for _, k := range keys {
		data, err := src.Get(ctx, k)
		if err != nil {
			return fmt.Errorf("read %s from %s: %w", k, src.namespace, err)
		}
		if data == nil {
			continue
		}
		if err := s.Store(ctx, k, data); err != nil {
			return fmt.Errorf("write %s into %s: %w", k, s.namespace, err)
		}
	}
	return nil
}

// MigrateToArchive renames this store's namespace to namespace+"-archive"
// via the backend, for use when a CA is decommissioned but its history
// must be retained. Any prior archive under that name is wiped first, so
// repeated decommission/revive cycles never leave stale archived data
// behind.
func (s *Store) MigrateToArchive(ctx context.Context) error {
	archiveNS := s.namespace + "-archive"
	if err := s.backend.Wipe(ctx, archiveNS); err != nil {
		return fmt.Errorf("wipe prior archive %s: %w", archiveNS, err)
	}
	if err := s.backend.MigrateNamespace(ctx, s.namespace, archiveNS); err != nil {
		return fmt.Errorf("migrate %s to archive: %w", s.namespace, err)
	}
	s.namespace = archiveNS
	return nil
}

// MigrateToCurrent is the inverse of MigrateToArchive: it renames an
// archived namespace back so a decommissioned CA can be revived. It
// refuses with ErrNamespaceNotEmpty if this store's namespace already
// holds keys, since the rename would otherwise silently merge or shadow
// the existing data.
func (s *Store) MigrateToCurrent(ctx context.Context, archivedNamespace string) error {
	keys, err := s.backend.Keys(ctx, s.namespace, Scope{}, true)
	if err != nil {
		return fmt.Errorf("check %s is empty: %w", s.namespace, err)
	}
	if len(keys) > 0 {
		return fmt.Errorf("%s: %w", s.namespace, ErrNamespaceNotEmpty)
	}
	if err := s.backend.MigrateNamespace(ctx, archivedNamespace, s.namespace); err != nil {
		return fmt.Errorf("migrate %s to current: %w", archivedNamespace, err)
	}
	return nil
}
