// Package serial implements an ordering service that processes the
// transactions one after the other.
//
// A single goroutine reads the transactions from the pool in their arrival
// order. Each transaction is executed on a staged snapshot and committed in a
// single database update, so that its changes are applied entirely or not at
// all. A transaction refused by its contract still consumes its nonce.
package serial

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/veilroll"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/execution"
	"go.dedis.ch/veilroll/core/ordering"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/core/store/kv"
	"go.dedis.ch/veilroll/core/store/mem"
	"go.dedis.ch/veilroll/core/store/prefixed"
	"go.dedis.ch/veilroll/core/txn"
	"go.dedis.ch/veilroll/core/txn/pool"
	"golang.org/x/xerrors"
)

const (
	nonceNamespace = "NONCE"
	eventBuffer    = 16
)

var (
	stateBucket = []byte("state")
	metaBucket  = []byte("meta")
	indexKey    = []byte("index")
)

// defines prometheus metrics
var (
	promIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veilroll_serial_index",
		Help: "index of the last committed batch",
	})

	promAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veilroll_serial_transactions_accepted_total",
		Help: "total number of accepted transactions",
	})

	promRefused = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veilroll_serial_transactions_refused_total",
		Help: "total number of refused transactions",
	})
)

func init() {
	veilroll.PromCollectors = append(veilroll.PromCollectors, promIndex,
		promAccepted, promRefused)
}

// Service is an ordering service that executes the transactions of the pool
// sequentially.
//
// - implements ordering.Service
type Service struct {
	sync.Mutex

	db     kv.DB
	pool   pool.Pool
	exec   execution.Service
	events *ordering.Hub
	logger zerolog.Logger

	index  uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new service using the database to persist the state.
// The index of the last batch is restored from the database.
func NewService(db kv.DB, p pool.Pool, exec execution.Service) (*Service, error) {
	srvc := &Service{
		db:     db,
		pool:   p,
		exec:   exec,
		events: ordering.NewHub(eventBuffer),
		logger: veilroll.Logger.With().Str("service", "ordering").Logger(),
	}

	err := db.Update(stateBucket, func(kv.Bucket) error { return nil })
	if err != nil {
		return nil, xerrors.Errorf("failed to create state: %v", err)
	}

	err = db.Update(metaBucket, func(b kv.Bucket) error {
		value := b.Get(indexKey)
		if value != nil {
			srvc.index = binary.LittleEndian.Uint64(value)
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read index: %v", err)
	}

	return srvc, nil
}

// Listen implements ordering.Service. It starts the goroutine that processes
// the transactions.
func (s *Service) Listen() error {
	s.Lock()
	defer s.Unlock()

	if s.done != nil {
		return xerrors.New("service already started")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx)

	s.logger.Info().Uint64("index", s.index).Msg("ordering service started")

	return nil
}

// Close implements ordering.Service. It stops the processing and waits for
// the current batch to be committed.
func (s *Service) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.done == nil {
		return xerrors.New("service not started")
	}

	s.cancel()
	<-s.done

	s.done = nil

	return nil
}

// GetStore implements ordering.Service. It returns a read-only access to the
// committed state.
func (s *Service) GetStore() store.Readable {
	return dbReader{db: s.db}
}

// GetNonce returns the next nonce expected for the identity.
func (s *Service) GetNonce(ident access.Identity) (uint64, error) {
	var nonce uint64

	err := s.db.View(stateBucket, func(b kv.Bucket) error {
		var err error
		nonce, err = readNonce(kv.NewSnapshot(b), ident)
		return err
	})
	if err != nil {
		return 0, xerrors.Errorf("failed to read nonce: %v", err)
	}

	return nonce, nil
}

// Watch implements ordering.Service. It returns a channel populated with the
// events until the context is done. A watcher that stops reading without
// cancelling its context stalls the processing of the pool once the channel
// holds eventBuffer events.
func (s *Service) Watch(ctx context.Context) <-chan ordering.Event {
	return s.events.Subscribe(ctx)
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)

	for {
		txs := s.pool.Gather(ctx, pool.Config{Min: 1})
		if ctx.Err() != nil || len(txs) == 0 {
			return
		}

		evt, err := s.processBatch(txs)
		if err != nil {
			s.logger.Err(err).Msg("batch failed")
			continue
		}

		s.events.Publish(evt)
	}
}

func (s *Service) processBatch(txs []txn.Transaction) (ordering.Event, error) {
	evt := ordering.Event{
		Index:        s.index + 1,
		Transactions: make([]ordering.TransactionResult, 0, len(txs)),
	}

	previous := make([]txn.Transaction, 0, len(txs))

	for _, tx := range txs {
		res := s.processTx(tx, previous)
		evt.Transactions = append(evt.Transactions, res)

		err := s.pool.Remove(tx)
		if err != nil {
			return evt, xerrors.Errorf("failed to remove tx: %v", err)
		}

		if res.Accepted {
			previous = append(previous, tx)
			promAccepted.Inc()
		} else {
			promRefused.Inc()
		}
	}

	err := s.db.Update(metaBucket, func(b kv.Bucket) error {
		value := make([]byte, 8)
		binary.LittleEndian.PutUint64(value, evt.Index)

		return b.Set(indexKey, value)
	})
	if err != nil {
		return evt, xerrors.Errorf("failed to write index: %v", err)
	}

	s.index = evt.Index
	promIndex.Set(float64(s.index))

	return evt, nil
}

// processTx executes the transaction and commits the result. The changes of the
// contract are applied only if it accepts the transaction, whereas the nonce
// is consumed as soon as it is valid.
func (s *Service) processTx(tx txn.Transaction, previous []txn.Transaction) ordering.TransactionResult {
	res := ordering.TransactionResult{ID: tx.GetID()}

	logger := s.logger.With().Hex("tx", tx.GetID()).Logger()

	err := s.db.Update(stateBucket, func(b kv.Bucket) error {
		state := kv.NewSnapshot(b)

		nonce, err := readNonce(state, tx.GetIdentity())
		if err != nil {
			return err
		}

		if tx.GetNonce() != nonce {
			res.Message = xerrors.Errorf("nonce '%d' != '%d'", tx.GetNonce(), nonce).Error()
			return nil
		}

		staged := mem.NewSnapshot(state)

		step := execution.Step{
			Previous: previous,
			Current:  tx,
		}

		out, err := s.exec.Execute(staged, step)
		if err != nil {
			res.Message = err.Error()
		} else {
			res.Accepted = out.Accepted
			res.Message = out.Message
		}

		if res.Accepted {
			err = staged.Apply(state)
			if err != nil {
				return xerrors.Errorf("failed to commit: %v", err)
			}
		}

		return writeNonce(state, tx.GetIdentity(), nonce+1)
	})

	if err != nil {
		res.Accepted = false
		res.Message = err.Error()

		logger.Err(err).Msg("failed to process transaction")

		return res
	}

	if res.Accepted {
		logger.Debug().Msg("transaction accepted")
	} else {
		logger.Info().Str("reason", res.Message).Msg("transaction refused")
	}

	return res
}

func nonceKey(ident access.Identity) ([]byte, error) {
	key, err := ident.MarshalText()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal identity: %v", err)
	}

	return prefixed.NewPrefixedKey([]byte(nonceNamespace), key), nil
}

func readNonce(r store.Readable, ident access.Identity) (uint64, error) {
	key, err := nonceKey(ident)
	if err != nil {
		return 0, err
	}

	value, err := r.Get(key)
	if err != nil {
		return 0, xerrors.Errorf("failed to read nonce: %v", err)
	}

	if value == nil {
		return 0, nil
	}

	return binary.LittleEndian.Uint64(value), nil
}

func writeNonce(w store.Snapshot, ident access.Identity, nonce uint64) error {
	key, err := nonceKey(ident)
	if err != nil {
		return err
	}

	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, nonce)

	err = w.Set(key, value)
	if err != nil {
		return xerrors.Errorf("failed to write nonce: %v", err)
	}

	return nil
}

// dbReader reads the committed state with one read-only transaction per
// lookup.
//
// - implements store.Readable
type dbReader struct {
	db kv.DB
}

// Get implements store.Readable.
func (r dbReader) Get(key []byte) ([]byte, error) {
	var value []byte

	err := r.db.View(stateBucket, func(b kv.Bucket) error {
		var err error
		value, err = kv.NewSnapshot(b).Get(key)
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read state: %v", err)
	}

	return value, nil
}
