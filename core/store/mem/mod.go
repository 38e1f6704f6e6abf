// Package mem implements an in-memory snapshot staged on top of a readable
// store.
//
// The snapshot records the writes and the deletions without touching the
// parent. They are applied to a writable store only when the owner decides to
// commit, which gives all-or-nothing semantics to a transaction execution.
package mem

import (
	"sort"

	"go.dedis.ch/veilroll/core/store"
	"golang.org/x/xerrors"
)

type item struct {
	value   []byte
	deleted bool
}

// Snapshot is an in-memory snapshot that looks up the parent for the keys it
// does not hold.
//
// - implements store.Snapshot
type Snapshot struct {
	parent store.Readable
	items  map[string]item
}

// NewSnapshot returns an empty snapshot on top of the parent. The parent can be
// nil, in which case the snapshot starts empty.
func NewSnapshot(parent store.Readable) *Snapshot {
	return &Snapshot{
		parent: parent,
		items:  make(map[string]item),
	}
}

// Get implements store.Readable. It returns the staged value of the key if it
// exists, otherwise the value of the parent.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	it, found := s.items[string(key)]
	if found {
		if it.deleted {
			return nil, nil
		}

		return it.value, nil
	}

	if s.parent == nil {
		return nil, nil
	}

	value, err := s.parent.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("parent: %v", err)
	}

	return value, nil
}

// Set implements store.Writable. It stages the value for the key.
func (s *Snapshot) Set(key, value []byte) error {
	s.items[string(key)] = item{value: append([]byte{}, value...)}

	return nil
}

// Delete implements store.Writable. It stages the deletion of the key.
func (s *Snapshot) Delete(key []byte) error {
	s.items[string(key)] = item{deleted: true}

	return nil
}

// Len returns the number of staged changes.
func (s *Snapshot) Len() int {
	return len(s.items)
}

// Apply writes the staged changes to the store in the lexicographic order of
// the keys so that two replicas perform the same sequence of writes.
func (s *Snapshot) Apply(w store.Writable) error {
	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		it := s.items[key]

		var err error
		if it.deleted {
			err = w.Delete([]byte(key))
		} else {
			err = w.Set([]byte(key), it.value)
		}

		if err != nil {
			return xerrors.Errorf("failed to apply key %#x: %v", key, err)
		}
	}

	return nil
}
