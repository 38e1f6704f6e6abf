// Package prefixed implements a snapshot wrapper that isolates the keys of a
// component in its own namespace.
//
// The keys are hashed together with the namespace so that two components can
// never write to the same key, whatever the content of their keys.
package prefixed

import (
	"encoding/binary"

	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/crypto"
)

type readable struct {
	store.Readable
	prefix []byte
}

type writable struct {
	store.Writable
	prefix []byte
}

type snapshot struct {
	*readable
	*writable
}

// NewSnapshot creates a new prefixed snapshot.
func NewSnapshot(prefix string, snap store.Snapshot) store.Snapshot {
	p := []byte(prefix)

	return snapshot{
		readable: &readable{Readable: snap, prefix: p},
		writable: &writable{Writable: snap, prefix: p},
	}
}

// NewReadable creates a new prefixed readable store.
func NewReadable(prefix string, r store.Readable) store.Readable {
	return &readable{Readable: r, prefix: []byte(prefix)}
}

// Get implements store.Readable.
func (s *readable) Get(key []byte) ([]byte, error) {
	return s.Readable.Get(NewPrefixedKey(s.prefix, key))
}

// Set implements store.Writable.
func (s *writable) Set(key []byte, value []byte) error {
	return s.Writable.Set(NewPrefixedKey(s.prefix, key), value)
}

// Delete implements store.Writable.
func (s *writable) Delete(key []byte) error {
	return s.Writable.Delete(NewPrefixedKey(s.prefix, key))
}

// NewPrefixedKey returns the 256-bit key of the base key in the namespace. Both
// parts are length-prefixed before being hashed.
func NewPrefixedKey(prefix, key []byte) []byte {
	h := crypto.NewHashFactory(crypto.Blake3).New()

	length := make([]byte, 2)

	binary.LittleEndian.PutUint16(length, uint16(len(prefix)))
	h.Write(length)
	h.Write(prefix)

	binary.LittleEndian.PutUint16(length, uint16(len(key)))
	h.Write(length)
	h.Write(key)

	return h.Sum(nil)
}
