package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newMemoryStore(t *testing.T, namespace string) *Store {
	t.Helper()
	uri := "memory:" + t.Name()
	s, err := Open(uri, namespace)
	require.NoError(t, err)
	return s
}

func TestStoreAndGet(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")

	k, err := NewScopedKey(MustScope("things"), "widget")
	require.NoError(t, err)

	ok, err := s.Has(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.StoreJSON(ctx, k, widget{Name: "a", Count: 1}))

	ok, err = s.Has(ctx, k)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := Get[widget](ctx, s, k)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Name)
	assert.Equal(t, 1, got.Count)
}

func TestStoreNewRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")
	k, err := NewKey("handle")
	require.NoError(t, err)

	require.NoError(t, s.StoreNew(ctx, k, []byte("1")))
	err = s.StoreNew(ctx, k, []byte("2"))
	require.ErrorIs(t, err, ErrDuplicateKey)
}

func TestGetMissingKeyReturnsNilNil(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")
	k, err := NewKey("missing")
	require.NoError(t, err)

	v, err := s.Get(ctx, k)
	require.NoError(t, err)
	assert.Nil(t, v)

	got, err := Get[widget](ctx, s, k)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMoveKeyIsAtomicAndRemovesSource(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")
	from, err := NewKey("from")
	require.NoError(t, err)
	to, err := NewKey("to")
	require.NoError(t, err)

	require.NoError(t, s.Store(ctx, from, []byte("payload")))
	require.NoError(t, s.MoveKey(ctx, from, to))

	ok, _ := s.Has(ctx, from)
	assert.False(t, ok)
	v, err := s.Get(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), v)
}

func TestMoveKeyFailsWhenSourceMissing(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")
	from, _ := NewKey("ghost")
	to, _ := NewKey("dest")

	err := s.MoveKey(ctx, from, to)
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestArchiveKeyMovesIntoSubScope(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")
	scope := HandleScope("ca-1")
	k, err := NewScopedKey(scope, "command-0000000001")
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, k, []byte("cmd")))

	require.NoError(t, s.ArchiveKey(ctx, k))

	ok, _ := s.Has(ctx, k)
	assert.False(t, ok)

	archived := k.WithScope(scope.Sub(SubScopeArchived))
	v, err := s.Get(ctx, archived)
	require.NoError(t, err)
	assert.Equal(t, []byte("cmd"), v)
}

func TestScopesAndKeysRecursive(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")
	scopeA := HandleScope("ca-a")
	scopeB := HandleScope("ca-b")

	kA, _ := NewScopedKey(scopeA, "info")
	kB, _ := NewScopedKey(scopeB, "info")
	require.NoError(t, s.Store(ctx, kA, []byte("a")))
	require.NoError(t, s.Store(ctx, kB, []byte("b")))

	scopes, err := s.Scopes(ctx)
	require.NoError(t, err)
	assert.Len(t, scopes, 2)

	keys, err := s.Keys(ctx, Scope{}, true)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keysA, err := s.Keys(ctx, scopeA, false)
	require.NoError(t, err)
	require.Len(t, keysA, 1)
	assert.Equal(t, "info", string(keysA[0].Name))
}

func TestDropScopeRemovesEverythingUnderneath(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")
	scope := HandleScope("ca-1")
	k1, _ := NewScopedKey(scope, "a")
	k2, _ := NewScopedKey(scope.Sub(SubScopeArchived), "b")
	require.NoError(t, s.Store(ctx, k1, []byte("1")))
	require.NoError(t, s.Store(ctx, k2, []byte("2")))

	require.NoError(t, s.DropScope(ctx, scope))

	keys, err := s.Keys(ctx, Scope{}, true)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestWipeClearsNamespaceOnly(t *testing.T) {
	ctx := context.Background()
	uri := "memory:" + t.Name()
	s1, err := Open(uri, "ns-1")
	require.NoError(t, err)
	s2, err := Open(uri, "ns-2")
	require.NoError(t, err)

	k, _ := NewKey("x")
	require.NoError(t, s1.Store(ctx, k, []byte("1")))
	require.NoError(t, s2.Store(ctx, k, []byte("2")))

	require.NoError(t, s1.Wipe(ctx))

	ok, _ := s1.Has(ctx, k)
	assert.False(t, ok)
	ok, _ = s2.Has(ctx, k)
	assert.True(t, ok)
}

func TestImportCopiesAllKeys(t *testing.T) {
	ctx := context.Background()
	src := newMemoryStore(t, "src")
	dst := newMemoryStore(t, "dst")

	k1, _ := NewKey("one")
	k2, _ := NewScopedKey(HandleScope("ca-1"), "two")
	require.NoError(t, src.Store(ctx, k1, []byte("1")))
	require.NoError(t, src.Store(ctx, k2, []byte("2")))

	require.NoError(t, dst.Import(ctx, src))

	v, err := dst.Get(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	v, err = dst.Get(ctx, k2)
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestGetTransactionalReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, "ca-1")
	scope := HandleScope("ca-1")
	k, _ := NewScopedKey(scope, "counter")

	for i := 0; i < 10; i++ {
		err := s.GetTransactional(ctx, scope, func(txn Txn) error {
			existing, err := txn.Get(k)
			require.NoError(t, err)
			n := 0
			if existing != nil {
				n = int(existing[0])
			}
			return txn.Store(k, []byte{byte(n + 1)})
		})
		require.NoError(t, err)
	}

	v, err := s.Get(ctx, k)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, byte(10), v[0])
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := Open("ftp://nope/", "ns")
	require.ErrorIs(t, err, ErrOther)
}
