package kv

import (
	"os"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

const defaultTimeout = time.Second

// Option is the type of the options to open a database.
type Option func(*bbolt.Options)

// WithTimeout sets how long to wait for a file locked by another process.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *bbolt.Options) {
		opts.Timeout = timeout
	}
}

// WithNoSync skips the synchronization of the file after each update. A crash
// can then lose the last updates.
func WithNoSync() Option {
	return func(opts *bbolt.Options) {
		opts.NoSync = true
	}
}

// boltDB is the bbolt implementation of the database.
//
// - implements kv.DB
type boltDB struct {
	bolt *bbolt.DB
}

// New opens the database file at the path, or creates it when it does not
// exist. The file is readable only by its owner.
func New(path string, opts ...Option) (DB, error) {
	options := &bbolt.Options{Timeout: defaultTimeout}
	for _, opt := range opts {
		opt(options)
	}

	db, err := bbolt.Open(path, os.FileMode(0600), options)
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %v", err)
	}

	return boltDB{bolt: db}, nil
}

// View implements kv.DB.
func (db boltDB) View(name []byte, fn func(Bucket) error) error {
	return db.bolt.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(name)
		if bucket == nil {
			return xerrors.Errorf("bucket '%x' not found", name)
		}

		return fn(boltBucket{bucket})
	})
}

// Update implements kv.DB.
func (db boltDB) Update(name []byte, fn func(Bucket) error) error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(name)
		if err != nil {
			return xerrors.Errorf("failed to create bucket: %v", err)
		}

		return fn(boltBucket{bucket})
	})
}

// Close implements kv.DB. The views and updates fail afterwards.
func (db boltDB) Close() error {
	return db.bolt.Close()
}

// boltBucket adapts a bbolt bucket.
//
// - implements kv.Bucket
type boltBucket struct {
	*bbolt.Bucket
}

// Set implements kv.Bucket.
func (b boltBucket) Set(key, value []byte) error {
	return b.Put(key, value)
}
