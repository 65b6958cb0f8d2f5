package kv

import (
	"context"
	"fmt"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"
)

// BoltBackend stores every namespace as a top-level bucket in a single
// bbolt database file, keyed by the key's lexical string form. It is
// grounded in the teacher's BoltStore: one bolt.DB, Update/View
// closures, and a Cursor for prefix scans instead of per-entity
// buckets.
type BoltBackend struct {
	db *bolt.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBoltBackend opens (creating if necessary) a bbolt database at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, ErrIO)
	}
	return &BoltBackend{db: db, locks: map[string]*sync.Mutex{}}, nil
}

// Close releases the underlying database file.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func (b *BoltBackend) scopeLock(namespace string, scope Scope) *sync.Mutex {
	id := namespace + "/" + scope.String()
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}
	return l
}

func bucketName(namespace string) []byte { return []byte(namespace) }

func (b *BoltBackend) Store(_ context.Context, namespace string, key Key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketName(namespace))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(key.String()), value)
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", key, ErrBackend)
	}
	return nil
}

func (b *BoltBackend) StoreNew(_ context.Context, namespace string, key Key, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketName(namespace))
		if err != nil {
			return err
		}
		if bkt.Get([]byte(key.String())) != nil {
			return fmt.Errorf("%s: %w", key, ErrDuplicateKey)
		}
		return bkt.Put([]byte(key.String()), value)
	})
	return err
}

func (b *BoltBackend) Get(_ context.Context, namespace string, key Key) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName(namespace))
		if bkt == nil {
			return nil
		}
		v := bkt.Get([]byte(key.String()))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, ErrBackend)
	}
	return out, nil
}

func (b *BoltBackend) Has(ctx context.Context, namespace string, key Key) (bool, error) {
	v, err := b.Get(ctx, namespace, key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (b *BoltBackend) DropKey(_ context.Context, namespace string, key Key) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName(namespace))
		if bkt == nil {
			return nil
		}
		return bkt.Delete([]byte(key.String()))
	})
	if err != nil {
		return fmt.Errorf("drop %s: %w", key, ErrBackend)
	}
	return nil
}

func (b *BoltBackend) DropScope(_ context.Context, namespace string, scope Scope) error {
	prefix := []byte(scope.String())
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName(namespace))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if withinScope(string(k), string(prefix)) {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("drop scope %s: %w", scope, ErrBackend)
	}
	return nil
}

func (b *BoltBackend) Wipe(_ context.Context, namespace string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName(namespace)) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketName(namespace))
	})
	if err != nil {
		return fmt.Errorf("wipe %s: %w", namespace, ErrBackend)
	}
	return nil
}

func (b *BoltBackend) MoveKey(_ context.Context, namespace string, from, to Key) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketName(namespace))
		if err != nil {
			return err
		}
		v := bkt.Get([]byte(from.String()))
		if v == nil {
			return fmt.Errorf("%s: %w", from, ErrUnknownKey)
		}
		if bkt.Get([]byte(to.String())) != nil {
			return fmt.Errorf("%s: %w", to, ErrDuplicateKey)
		}
		cp := append([]byte(nil), v...)
		if err := bkt.Put([]byte(to.String()), cp); err != nil {
			return err
		}
		return bkt.Delete([]byte(from.String()))
	})
	return err
}

func (b *BoltBackend) Scopes(_ context.Context, namespace string) ([]Scope, error) {
	seen := map[string]Scope{}
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName(namespace))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			scopeStr, _ := splitKeyStr(string(k))
			seen[scopeStr] = stringToScope(scopeStr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scopes %s: %w", namespace, ErrBackend)
	}
	out := make([]Scope, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (b *BoltBackend) Keys(_ context.Context, namespace string, scope Scope, recursive bool) ([]Key, error) {
	prefix := scope.String()
	var out []Key
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName(namespace))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keyScope, name := splitKey(string(k))
			if recursive {
				if !withinScope(string(k), prefix) {
					continue
				}
			} else if keyScope.String() != prefix {
				continue
			}
			out = append(out, Key{Scope: keyScope, Name: Segment(name)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", scope, ErrBackend)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (b *BoltBackend) MigrateNamespace(_ context.Context, from, to string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		src := tx.Bucket(bucketName(from))
		if src == nil {
			return fmt.Errorf("namespace %q: %w", from, ErrUnknownKey)
		}
		dst, err := tx.CreateBucketIfNotExists(bucketName(to))
		if err != nil {
			return err
		}
		c := src.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := dst.Put(append([]byte(nil), k...), append([]byte(nil), v...)); err != nil {
				return err
			}
		}
		return tx.DeleteBucket(bucketName(from))
	})
	return err
}

func (b *BoltBackend) Transactional(ctx context.Context, namespace string, scope Scope, fn func(Txn) error) error {
	lock := b.scopeLock(namespace, scope)
	lock.Lock()
	defer lock.Unlock()
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(bucketName(namespace))
		if err != nil {
			return err
		}
		return fn(&boltTxn{bkt: bkt})
	})
}

type boltTxn struct {
	bkt *bolt.Bucket
}

func (t *boltTxn) Store(key Key, value []byte) error {
	return t.bkt.Put([]byte(key.String()), value)
}

func (t *boltTxn) Get(key Key) ([]byte, error) {
	v := t.bkt.Get([]byte(key.String()))
	if v == nil {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (t *boltTxn) Has(key Key) (bool, error) {
	return t.bkt.Get([]byte(key.String())) != nil, nil
}

func (t *boltTxn) DropKey(key Key) error {
	return t.bkt.Delete([]byte(key.String()))
}
