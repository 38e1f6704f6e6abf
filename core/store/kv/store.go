package kv

import (
	"go.dedis.ch/veilroll/core/store"
)

// bucketStore exposes a bucket as a store snapshot. The values are copied out
// of the bucket as they are only valid during the database transaction.
//
// - implements store.Snapshot
type bucketStore struct {
	bucket Bucket
}

// NewSnapshot returns a snapshot reading and writing the bucket. It must not
// be used after the transaction of the bucket is closed.
func NewSnapshot(bucket Bucket) store.Snapshot {
	return bucketStore{bucket: bucket}
}

// Get implements store.Readable.
func (s bucketStore) Get(key []byte) ([]byte, error) {
	value := s.bucket.Get(key)
	if value == nil {
		return nil, nil
	}

	return append([]byte{}, value...), nil
}

// Set implements store.Writable.
func (s bucketStore) Set(key, value []byte) error {
	return s.bucket.Set(key, value)
}

// Delete implements store.Writable.
func (s bucketStore) Delete(key []byte) error {
	return s.bucket.Delete(key)
}
