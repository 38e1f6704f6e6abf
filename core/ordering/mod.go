// Package ordering defines the interface of the ordering service. The
// high-level purpose of this service is to order the transactions from the
// pool and to apply them to the state.
package ordering

import (
	"context"

	"go.dedis.ch/veilroll/core/store"
)

// TransactionResult is the outcome of a transaction that has been processed.
type TransactionResult struct {
	// ID is the identifier of the transaction.
	ID []byte

	// Accepted is true when the changes of the transaction are committed.
	Accepted bool

	// Message is the reason of a refusal.
	Message string
}

// Event is the notification of a batch of transactions being processed.
type Event struct {
	Index        uint64
	Transactions []TransactionResult
}

// Service is the interface of an ordering service. It provides the primitives
// to order transactions from a pool.
type Service interface {
	// Listen starts to process the transactions of the pool.
	Listen() error

	// Close stops the service.
	Close() error

	// GetStore returns a read-only access to the committed state.
	GetStore() store.Readable

	// Watch returns a channel populated with the events of the service until
	// the context is done. The caller must read the channel or cancel the
	// context: once its buffer is full, the ordering waits for it.
	Watch(ctx context.Context) <-chan Event
}
