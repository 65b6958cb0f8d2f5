package kv

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend is an in-process Backend backed by maps, guarded by a
// single mutex shared by all namespaces. It never touches disk; it exists for unit
// tests and the memory: storage URI.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]map[string][]byte // namespace -> key.String() -> value
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: map[string]map[string][]byte{}}
}

func (b *MemoryBackend) ns(namespace string) map[string][]byte {
	m, ok := b.data[namespace]
	if !ok {
		m = map[string][]byte{}
		b.data[namespace] = m
	}
	return m
}

func (b *MemoryBackend) Store(_ context.Context, namespace string, key Key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := append([]byte(nil), value...)
	b.ns(namespace)[key.String()] = cp
	return nil
}

func (b *MemoryBackend) StoreNew(_ context.Context, namespace string, key Key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.ns(namespace)
	if _, exists := m[key.String()]; exists {
		return fmt.Errorf("%s: %w", key, ErrDuplicateKey)
	}
	m[key.String()] = append([]byte(nil), value...)
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, namespace string, key Key) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.ns(namespace)[key.String()]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (b *MemoryBackend) Has(_ context.Context, namespace string, key Key) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ns(namespace)[key.String()]
	return ok, nil
}

func (b *MemoryBackend) DropKey(_ context.Context, namespace string, key Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ns(namespace), key.String())
	return nil
}

func (b *MemoryBackend) DropScope(_ context.Context, namespace string, scope Scope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := scope.String()
	m := b.ns(namespace)
	for k := range m {
		if withinScope(k, prefix) {
			delete(m, k)
		}
	}
	return nil
}

func (b *MemoryBackend) Wipe(_ context.Context, namespace string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, namespace)
	return nil
}

func (b *MemoryBackend) MoveKey(_ context.Context, namespace string, from, to Key) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.ns(namespace)
	v, ok := m[from.String()]
	if !ok {
		return fmt.Errorf("%s: %w", from, ErrUnknownKey)
	}
	if _, exists := m[to.String()]; exists {
		return fmt.Errorf("%s: %w", to, ErrDuplicateKey)
	}
	m[to.String()] = v
	delete(m, from.String())
	return nil
}

func (b *MemoryBackend) Scopes(_ context.Context, namespace string) ([]Scope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := map[string]Scope{}
	for k := range b.ns(namespace) {
		idx := strings.LastIndex(k, "/")
		if idx < 0 {
			seen[""] = Scope{}
			continue
		}
		scopeStr := k[:idx]
		seen[scopeStr] = stringToScope(scopeStr)
	}
	out := make([]Scope, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (b *MemoryBackend) Keys(_ context.Context, namespace string, scope Scope, recursive bool) ([]Key, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := scope.String()
	var out []Key
	for k := range b.ns(namespace) {
		keyScope, name := splitKey(k)
		if recursive {
			if !withinScope(k, prefix) {
				continue
			}
		} else if keyScope.String() != prefix {
			continue
		}
		out = append(out, Key{Scope: keyScope, Name: Segment(name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (b *MemoryBackend) MigrateNamespace(_ context.Context, from, to string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.data[from]
	if !ok {
		return fmt.Errorf("namespace %q: %w", from, ErrUnknownKey)
	}
	delete(b.data, from)
	b.data[to] = m
	return nil
}

func (b *MemoryBackend) Transactional(ctx context.Context, namespace string, _ Scope, fn func(Txn) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(&memoryTxn{b: b, ctx: ctx, namespace: namespace})
}

// memoryTxn reuses the backend's already-held lock: Transactional holds
// b.mu for the whole callback, so these calls must not re-lock.
type memoryTxn struct {
	b         *MemoryBackend
	ctx       context.Context
	namespace string
}

func (t *memoryTxn) Store(key Key, value []byte) error {
	t.b.ns(t.namespace)[key.String()] = append([]byte(nil), value...)
	return nil
}

func (t *memoryTxn) Get(key Key) ([]byte, error) {
	v, ok := t.b.ns(t.namespace)[key.String()]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t *memoryTxn) Has(key Key) (bool, error) {
	_, ok := t.b.ns(t.namespace)[key.String()]
	return ok, nil
}

func (t *memoryTxn) DropKey(key Key) error {
	delete(t.b.ns(t.namespace), key.String())
	return nil
}

func withinScope(fullKey, scopePrefix string) bool {
	scope, _ := splitKeyStr(fullKey)
	if scopePrefix == "" {
		return true
	}
	return scope == scopePrefix || strings.HasPrefix(scope, scopePrefix+"/")
}

func splitKeyStr(fullKey string) (scope, name string) {
	idx := strings.LastIndex(fullKey, "/")
	if idx < 0 {
		return "", fullKey
	}
	return fullKey[:idx], fullKey[idx+1:]
}

func splitKey(fullKey string) (Scope, string) {
	scope, name := splitKeyStr(fullKey)
	return stringToScope(scope), name
}

func stringToScope(s string) Scope {
	if s == "" {
		return Scope{}
	}
	parts := strings.Split(s, "/")
	scope := make(Scope, len(parts))
	for i, p := range parts {
		scope[i] = Segment(p)
	}
	return scope
}
