// Package hashcache is a persistent (path,size,mtime)→sha256 memoization
// table backing the filesystem dedup engine's lazy content hashing
// (§4.D step 2). It is a pure optimization: a missing or corrupt cache
// degrades to recomputing every hash, never to incorrect output.
//
// Grounded on a bucket-of-JSON-values bbolt store pattern, simplified to
// a single bucket of raw digests since the value here is a fixed-size
// byte slice, not a struct.
package hashcache

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/pacwrap/pacwrap/internal/errs"
)

var bucketDigests = []byte("digests")

// Cache wraps a bbolt database of cached SHA-256 digests.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if absent) the hash cache at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.New(errs.KindIO, "hashcache.Open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDigests)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.New(errs.KindIO, "hashcache.Open", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

func key(relPath string, size int64, mtimeUnixNano int64) []byte {
	return []byte(fmt.Sprintf("%s|%d|%d", relPath, size, mtimeUnixNano))
}

// Get returns the cached digest for (relPath, size, mtime), if present.
func (c *Cache) Get(relPath string, size, mtimeUnixNano int64) ([32]byte, bool) {
	var digest [32]byte
	var found bool
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDigests)
		v := b.Get(key(relPath, size, mtimeUnixNano))
		if len(v) == 32 {
			copy(digest[:], v)
			found = true
		}
		return nil
	})
	return digest, found
}

// Put stores the digest for (relPath, size, mtime).
func (c *Cache) Put(relPath string, size, mtimeUnixNano int64, digest [32]byte) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDigests)
		return b.Put(key(relPath, size, mtimeUnixNano), digest[:])
	})
	if err != nil {
		return errs.New(errs.KindIO, "hashcache.Put", err)
	}
	return nil
}

// NullCache is a Cache-shaped no-op used when the cache file cannot be
// opened; every lookup misses and every store is discarded.
type NullCache struct{}

func (NullCache) Get(string, int64, int64) ([32]byte, bool)       { return [32]byte{}, false }
func (NullCache) Put(string, int64, int64, [32]byte) error        { return nil }
func (NullCache) Close() error                                    { return nil }

// Digester is the interface internal/dedup depends on, satisfied by both
// *Cache and NullCache.
type Digester interface {
	Get(relPath string, size, mtimeUnixNano int64) ([32]byte, bool)
	Put(relPath string, size, mtimeUnixNano int64, digest [32]byte) error
	Close() error
}

// OpenOrNull opens the cache at path, falling back to NullCache on error
// (the cache is advisory, §"Domain stack" of SPEC_FULL.md).
func OpenOrNull(path string) Digester {
	c, err := Open(path)
	if err != nil {
		return NullCache{}
	}
	return c
}
