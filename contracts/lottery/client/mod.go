// Package client implements the facade a participant uses to play the
// lottery.
//
// The client encrypts the numbers of a ticket, submits the transactions and
// waits for them to be committed, reads the views of the contract and asks
// the gateway to decrypt the handles of the participant.
package client

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.dedis.ch/veilroll/contracts/lottery"
	"go.dedis.ch/veilroll/core/execution/native"
	"go.dedis.ch/veilroll/core/ordering"
	"go.dedis.ch/veilroll/core/txn"
	"go.dedis.ch/veilroll/core/txn/pool"
	"go.dedis.ch/veilroll/crypto"
	"go.dedis.ch/veilroll/fhe"
	"go.dedis.ch/veilroll/fhe/input"
	"go.dedis.ch/veilroll/gateway"
	"golang.org/x/xerrors"
)

// requestDays is the validity of the decryption requests.
const requestDays = 1

var refusals = []error{
	lottery.ErrInvalidFee,
	lottery.ErrInvalidProof,
	lottery.ErrNoTicket,
	lottery.ErrAlreadyOwnsTicket,
}

// Gateway is the decryption service.
type Gateway interface {
	GetID() []byte
	UserDecrypt(ctx context.Context, req gateway.DecryptRequest) (gateway.DecryptResponse, error)
}

// Backend gathers the services of the node the client talks to.
type Backend struct {
	// Contract is the identity of the lottery contract.
	Contract crypto.PublicKey

	// InputKey is the key the inputs are sealed to.
	InputKey *[32]byte

	Ordering ordering.Service
	Pool     pool.Pool
	Gateway  Gateway
}

// Client is a participant of the lottery.
type Client struct {
	signer  crypto.Signer
	mgr     txn.Manager
	backend Backend
	now     func() time.Time
}

// NewClient returns a client that signs the transactions of the manager with
// the signer.
func NewClient(signer crypto.Signer, mgr txn.Manager, backend Backend) *Client {
	return &Client{
		signer:  signer,
		mgr:     mgr,
		backend: backend,
		now:     time.Now,
	}
}

// GetIdentity returns the public key of the participant.
func (c *Client) GetIdentity() crypto.PublicKey {
	return c.signer.GetPublicKey()
}

// BuyTicket encrypts the numbers and buys a ticket with the value in wei. Both
// numbers must be in [1, lottery.MaxNumber]. It returns once the transaction
// is committed or the context is done.
func (c *Client) BuyTicket(ctx context.Context, first, second uint8, value decimal.Decimal) error {
	// The contract cannot see the numbers, so a ticket outside of the range
	// of the draws would be paid for and never win.
	for _, n := range []uint8{first, second} {
		if n < 1 || n > lottery.MaxNumber {
			return xerrors.Errorf("invalid ticket number %d: not in [1, %d]", n, lottery.MaxNumber)
		}
	}

	enc, err := input.New(c.backend.InputKey, c.backend.Contract, c.signer.GetPublicKey()).
		Add8(first).
		Add8(second).
		Encrypt()
	if err != nil {
		return xerrors.Errorf("failed to encrypt: %v", err)
	}

	err = c.submit(ctx,
		txn.Arg{Key: lottery.CmdArg, Value: []byte(lottery.CmdBuy)},
		txn.Arg{Key: lottery.FirstArg, Value: enc.Handles[0].Bytes()},
		txn.Arg{Key: lottery.SecondArg, Value: enc.Handles[1].Bytes()},
		txn.Arg{Key: lottery.ProofArg, Value: enc.Proof},
		txn.Arg{Key: lottery.ValueArg, Value: []byte(value.String())},
	)
	if err != nil {
		return xerrors.Errorf("failed to buy: %w", err)
	}

	return nil
}

// StartDraw draws the numbers of the participant.
func (c *Client) StartDraw(ctx context.Context) error {
	err := c.submit(ctx, txn.Arg{Key: lottery.CmdArg, Value: []byte(lottery.CmdDraw)})
	if err != nil {
		return xerrors.Errorf("failed to draw: %w", err)
	}

	return nil
}

// HasTicket returns true if the participant owns a ticket.
func (c *Client) HasTicket() (bool, error) {
	return lottery.HasTicket(c.backend.Ordering.GetStore(), c.signer.GetPublicKey())
}

// HasDraw returns true if the participant has drawn at least once.
func (c *Client) HasDraw() (bool, error) {
	return lottery.HasDraw(c.backend.Ordering.GetStore(), c.signer.GetPublicKey())
}

// GetTicket returns the handles of the numbers of the ticket.
func (c *Client) GetTicket() (fhe.Handle, fhe.Handle, error) {
	return lottery.GetTicket(c.backend.Ordering.GetStore(), c.signer.GetPublicKey())
}

// GetLastDraw returns the handles of the last drawn numbers.
func (c *Client) GetLastDraw() (fhe.Handle, fhe.Handle, error) {
	return lottery.GetLastDraw(c.backend.Ordering.GetStore(), c.signer.GetPublicKey())
}

// GetPoints returns the handle of the points.
func (c *Client) GetPoints() (fhe.Handle, error) {
	return lottery.GetPoints(c.backend.Ordering.GetStore(), c.signer.GetPublicKey())
}

// GetPot returns the amount in wei collected by the lottery.
func (c *Client) GetPot() (decimal.Decimal, error) {
	return lottery.GetPot(c.backend.Ordering.GetStore())
}

// Decrypt asks the gateway for the plaintexts of the handles.
func (c *Client) Decrypt(ctx context.Context, handles ...fhe.Handle) (map[fhe.Handle]uint64, error) {
	kp, err := gateway.NewKeypair()
	if err != nil {
		return nil, xerrors.Errorf("failed to create key: %v", err)
	}

	pairs := make([]gateway.Pair, len(handles))
	for i, h := range handles {
		pairs[i] = gateway.Pair{Handle: h, Contract: c.backend.Contract}
	}

	req := gateway.NewRequest(kp, c.signer.GetPublicKey(), c.now(), requestDays, pairs...)

	err = req.Sign(c.signer, c.backend.Gateway.GetID())
	if err != nil {
		return nil, xerrors.Errorf("failed to sign request: %v", err)
	}

	resp, err := c.backend.Gateway.UserDecrypt(ctx, req)
	if err != nil {
		return nil, xerrors.Errorf("gateway: %w", err)
	}

	values, err := kp.Open(resp)
	if err != nil {
		return nil, xerrors.Errorf("failed to open response: %v", err)
	}

	return values, nil
}

// submit sends a transaction for the lottery contract and waits for its
// result. Giving up on the context does not withdraw the transaction.
func (c *Client) submit(ctx context.Context, args ...txn.Arg) error {
	err := c.mgr.Sync()
	if err != nil {
		return xerrors.Errorf("failed to sync manager: %v", err)
	}

	args = append(args, txn.Arg{Key: native.ContractArg, Value: []byte(lottery.ContractName)})

	tx, err := c.mgr.Make(args...)
	if err != nil {
		return xerrors.Errorf("failed to make tx: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := c.backend.Ordering.Watch(ctx)

	err = c.backend.Pool.Add(tx)
	if err != nil {
		return xerrors.Errorf("failed to add tx: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return xerrors.Errorf("transaction not committed: %v", ctx.Err())
		case evt, more := <-events:
			if !more {
				return xerrors.Errorf("transaction not committed: %v", ctx.Err())
			}

			for _, res := range evt.Transactions {
				if !bytes.Equal(res.ID, tx.GetID()) {
					continue
				}

				if res.Accepted {
					return nil
				}

				return refused(res.Message)
			}
		}
	}
}

func refused(msg string) error {
	for _, sentinel := range refusals {
		if strings.HasSuffix(msg, sentinel.Error()) {
			return xerrors.Errorf("transaction refused (%s): %w", msg, sentinel)
		}
	}

	return xerrors.Errorf("transaction refused: %s", msg)
}
