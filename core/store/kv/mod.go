// Package kv defines the key/value database that persists the state of the
// node, and its implementation over bbolt.
//
// A database is split in buckets. Each update of a bucket is atomic so that
// the changes of a transaction are either all written or none of them.
package kv

// Bucket is a set of keys of the database, read and written inside a single
// database transaction.
type Bucket interface {
	// Get returns the value of the key, or nil when the key is unknown. The
	// value is only valid during the transaction.
	Get(key []byte) []byte

	Set(key, value []byte) error

	Delete(key []byte) error
}

// DB is a key/value database.
type DB interface {
	// View runs the read-only function on the bucket. It fails if the bucket
	// has never been written.
	View(bucket []byte, fn func(Bucket) error) error

	// Update runs the function on the bucket, which is created if necessary.
	// Nothing is written if the function returns an error.
	Update(bucket []byte, fn func(Bucket) error) error

	Close() error
}
