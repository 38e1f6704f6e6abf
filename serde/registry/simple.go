package registry

import (
	"sync"

	"go.dedis.ch/veilroll/serde"
	"golang.org/x/xerrors"
)

// SimpleRegistry is the default implementation of a registry. Registration
// usually happens in init functions but lookups can happen from any
// goroutine, hence the lock.
//
// - implements registry.Registry
type SimpleRegistry struct {
	sync.RWMutex
	store map[serde.Format]serde.FormatEngine
}

// NewSimpleRegistry returns a new empty registry.
func NewSimpleRegistry() *SimpleRegistry {
	return &SimpleRegistry{
		store: make(map[serde.Format]serde.FormatEngine),
	}
}

// Register implements registry.Registry. It registers the engine for the given
// format, or replaces the previous one.
func (r *SimpleRegistry) Register(name serde.Format, f serde.FormatEngine) {
	r.Lock()
	r.store[name] = f
	r.Unlock()
}

// Get implements registry.Registry. It returns the engine of the format when it
// exists, otherwise an engine that always fails.
func (r *SimpleRegistry) Get(name serde.Format) serde.FormatEngine {
	r.RLock()
	defer r.RUnlock()

	engine := r.store[name]
	if engine == nil {
		return missingFormat{name: name}
	}

	return engine
}

// missingFormat is returned for the unknown formats so that callers fail with
// a meaningful error without checking the existence beforehand.
//
// - implements serde.FormatEngine
type missingFormat struct {
	name serde.Format
}

// Encode implements serde.FormatEngine. It always returns an error.
func (f missingFormat) Encode(serde.Context, serde.Message) ([]byte, error) {
	return nil, xerrors.Errorf("format '%s' is not implemented", f.name)
}

// Decode implements serde.FormatEngine. It always returns an error.
func (f missingFormat) Decode(serde.Context, []byte) (serde.Message, error) {
	return nil, xerrors.Errorf("format '%s' is not implemented", f.name)
}
