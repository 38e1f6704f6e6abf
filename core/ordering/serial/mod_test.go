package serial

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/veilroll/core/execution"
	"go.dedis.ch/veilroll/core/ordering"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/core/store/kv"
	"go.dedis.ch/veilroll/core/txn"
	"go.dedis.ch/veilroll/core/txn/pool/mem"
	"go.dedis.ch/veilroll/core/txn/signed"
	"go.dedis.ch/veilroll/crypto/ed25519"
	"go.dedis.ch/veilroll/testing/fake"
)

func TestService_Scenario(t *testing.T) {
	db := makeDB(t)
	p := mem.NewPool()

	srvc, err := NewService(db, p, fakeExec{})
	require.NoError(t, err)

	require.NoError(t, srvc.Listen())
	defer srvc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := srvc.Watch(ctx)

	signer := ed25519.NewSigner()

	// Accepted: the value is committed and the nonce consumed.
	res := submit(t, p, events, makeTx(t, signer, 0, "A", "set"))
	require.True(t, res.Accepted)

	value, err := srvc.GetStore().Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte("set"), value)

	nonce, err := srvc.GetNonce(signer.GetPublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)

	// Refused by the contract: the write is discarded but the nonce is
	// consumed.
	res = submit(t, p, events, makeTx(t, signer, 1, "B", "refuse"))
	require.False(t, res.Accepted)
	require.Equal(t, "refused", res.Message)

	value, err = srvc.GetStore().Get([]byte("B"))
	require.NoError(t, err)
	require.Nil(t, value)

	nonce, err = srvc.GetNonce(signer.GetPublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)

	// Wrong nonce: nothing changes.
	res = submit(t, p, events, makeTx(t, signer, 5, "C", "set"))
	require.False(t, res.Accepted)
	require.Equal(t, "nonce '5' != '2'", res.Message)

	nonce, err = srvc.GetNonce(signer.GetPublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)

	// Execution failure: the transaction is refused.
	res = submit(t, p, events, makeTx(t, signer, 2, "D", "fail"))
	require.False(t, res.Accepted)
	require.Equal(t, fake.GetError().Error(), res.Message)
}

func TestService_RestoreIndex(t *testing.T) {
	db := makeDB(t)
	p := mem.NewPool()

	srvc, err := NewService(db, p, fakeExec{})
	require.NoError(t, err)
	require.NoError(t, srvc.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := srvc.Watch(ctx)

	submit(t, p, events, makeTx(t, ed25519.NewSigner(), 0, "A", "set"))
	require.NoError(t, srvc.Close())

	srvc, err = NewService(db, p, fakeExec{})
	require.NoError(t, err)
	require.Equal(t, uint64(1), srvc.index)
}

func TestService_ListenClose(t *testing.T) {
	srvc, err := NewService(makeDB(t), mem.NewPool(), fakeExec{})
	require.NoError(t, err)

	err = srvc.Close()
	require.EqualError(t, err, "service not started")

	require.NoError(t, srvc.Listen())

	err = srvc.Listen()
	require.EqualError(t, err, "service already started")

	require.NoError(t, srvc.Close())
}

func TestService_Watch(t *testing.T) {
	srvc, err := NewService(makeDB(t), mem.NewPool(), fakeExec{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	events := srvc.Watch(ctx)
	require.Equal(t, 1, srvc.events.Len())

	cancel()

	_, more := <-events
	require.False(t, more)
	require.Equal(t, 0, srvc.events.Len())
}

func TestService_GetNonce_Fail(t *testing.T) {
	srvc, err := NewService(makeDB(t), mem.NewPool(), fakeExec{})
	require.NoError(t, err)

	_, err = srvc.GetNonce(fake.NewBadPublicKey())
	require.EqualError(t, err,
		fake.Err("failed to read nonce: failed to marshal identity"))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDB(t *testing.T) kv.DB {
	db, err := kv.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func makeTx(t *testing.T, signer ed25519.Signer, nonce uint64, key, action string) txn.Transaction {
	tx, err := signed.NewTransaction(nonce, signer.GetPublicKey(),
		signed.WithArg("key", []byte(key)),
		signed.WithArg("action", []byte(action)))
	require.NoError(t, err)

	require.NoError(t, tx.Sign(signer))

	return tx
}

func submit(t *testing.T, p *mem.Pool, events <-chan ordering.Event,
	tx txn.Transaction) ordering.TransactionResult {

	require.NoError(t, p.Add(tx))

	timeout := time.After(5 * time.Second)

	for {
		select {
		case evt := <-events:
			for _, res := range evt.Transactions {
				if string(res.ID) == string(tx.GetID()) {
					return res
				}
			}
		case <-timeout:
			t.Fatal("transaction not processed")
		}
	}
}

// fakeExec writes the value of the transaction, and then refuses or fails
// according to the action.
type fakeExec struct{}

func (fakeExec) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	action := string(step.Current.GetArg("action"))

	err := snap.Set(step.Current.GetArg("key"), []byte(action))
	if err != nil {
		return execution.Result{}, err
	}

	switch action {
	case "refuse":
		return execution.Result{Message: "refused"}, nil
	case "fail":
		return execution.Result{}, fake.GetError()
	default:
		return execution.Result{Accepted: true}, nil
	}
}
