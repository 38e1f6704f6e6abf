// Package pool defines the interface for a transaction pool. It holds the
// transactions of the clients until the ordering service reads them.
package pool

import (
	"context"

	"go.dedis.ch/veilroll/core/txn"
)

// Config is the set of parameters that allows one to change the behavior of
// the gathering process.
type Config struct {
	// Min is the minimum number of transactions to wait for.
	Min int

	// Callback is a function called when the pool doesn't have enough
	// transactions at the moment of calling and the gatherer needs to wait
	// for new transactions.
	Callback func()
}

// Pool is the maintainer of the list of transactions.
type Pool interface {
	// Len returns the number of pending transactions.
	Len() int

	// Add adds the transaction to the pool.
	Add(txn.Transaction) error

	// Remove removes the transaction from the pool.
	Remove(txn.Transaction) error

	// Gather is a blocking function to gather transactions from the pool in
	// their arrival order. The function returns nil when the context ends.
	Gather(ctx context.Context, cfg Config) []txn.Transaction

	// Close closes the pool and cleans the resources.
	Close() error
}
