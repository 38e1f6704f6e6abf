// Package mem implements an in-memory transaction pool. It only accepts the
// transactions of the local clients.
package mem

import (
	"context"

	"go.dedis.ch/veilroll/core/txn"
	"go.dedis.ch/veilroll/core/txn/pool"
	"golang.org/x/xerrors"
)

// Pool is an in-memory transaction pool.
//
// - implements pool.Pool
type Pool struct {
	gatherer pool.Gatherer
}

// NewPool creates a new service.
func NewPool() *Pool {
	return &Pool{
		gatherer: pool.NewSimpleGatherer(),
	}
}

// Len implements pool.Pool. It returns the number of pending transactions.
func (p *Pool) Len() int {
	return p.gatherer.Len()
}

// Add implements pool.Pool. It adds the transaction to the pool of waiting
// transactions.
func (p *Pool) Add(tx txn.Transaction) error {
	err := p.gatherer.Add(tx)
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	return nil
}

// Remove implements pool.Pool. It removes the transaction from the pool if it
// exists, otherwise it returns an error.
func (p *Pool) Remove(tx txn.Transaction) error {
	err := p.gatherer.Remove(tx)
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	return nil
}

// Gather implements pool.Pool. It blocks until the pool has enough
// transactions according to the configuration and then returns them.
func (p *Pool) Gather(ctx context.Context, cfg pool.Config) []txn.Transaction {
	return p.gatherer.Wait(ctx, cfg)
}

// Close implements pool.Pool. It cleans the resources of the gatherer.
func (p *Pool) Close() error {
	p.gatherer.Close()

	return nil
}
