// Package execution defines the service that applies a transaction to the
// state.
package execution

import (
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/core/txn"
)

// Step is the context of a transaction execution. It holds the transaction to
// execute and the transactions already executed in the same batch.
type Step struct {
	Previous []txn.Transaction
	Current  txn.Transaction
}

// Result is the result of a transaction execution.
type Result struct {
	// Accepted is the success state of the transaction.
	Accepted bool

	// Message gives a chance to the execution to explain why a transaction has
	// failed.
	Message string
}

// Service is the execution service that defines the primitives to execute a
// transaction.
type Service interface {
	// Execute must apply the transaction to the snapshot and return the result
	// of it. An error is returned only when the transaction cannot be
	// processed at all, whereas a refusal is reported in the result.
	Execute(snap store.Snapshot, step Step) (Result, error)
}
