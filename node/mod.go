// Package node assembles the services of a lottery node: the durable store,
// the transaction pool, the serial ordering, the native execution with the
// lottery contract, the handle ACL, the coprocessor and the decryption
// gateway.
//
// The key of the contract and the secret of the coprocessor are created in
// the folder of the node on the first start and loaded afterwards, so that
// the handles and grants of the committed state stay valid across restarts.
package node

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.dedis.ch/veilroll"
	"go.dedis.ch/veilroll/contracts/lottery"
	"go.dedis.ch/veilroll/contracts/lottery/client"
	"go.dedis.ch/veilroll/core/access/acl"
	"go.dedis.ch/veilroll/core/access/darc"
	"go.dedis.ch/veilroll/core/execution/native"
	"go.dedis.ch/veilroll/core/ordering/serial"
	"go.dedis.ch/veilroll/core/store/kv"
	"go.dedis.ch/veilroll/core/txn/pool/mem"
	"go.dedis.ch/veilroll/core/txn/signed"
	"go.dedis.ch/veilroll/crypto"
	"go.dedis.ch/veilroll/crypto/ed25519"
	"go.dedis.ch/veilroll/crypto/loader"
	"go.dedis.ch/veilroll/fhe/coprocessor"
	"go.dedis.ch/veilroll/gateway"
	"go.dedis.ch/veilroll/serde/json"
	"golang.org/x/xerrors"
)

const (
	// DBFile is the name of the database in the folder of the node.
	DBFile = "veilroll.db"

	// ContractKeyFile is the name of the file of the contract key.
	ContractKeyFile = "contract.key"

	// SecretFile is the name of the file of the coprocessor secret.
	SecretFile = "coprocessor.secret"
)

// Config is the configuration of a node.
type Config struct {
	// Folder is where the node stores its state and secrets.
	Folder string `yaml:"folder"`

	// GatewayID separates the decryption requests of different gateways.
	GatewayID string `yaml:"gateway"`

	// MaxDurationDays caps the validity of a decryption request.
	MaxDurationDays uint32 `yaml:"maxDurationDays"`

	Lottery LotteryConfig `yaml:"lottery"`
}

// LotteryConfig is the configuration of the lottery contract.
type LotteryConfig struct {
	// Price is the price of a ticket in native units, like "0.001".
	Price string `yaml:"price"`

	// Reward is the number of points awarded to a winning draw.
	Reward uint64 `yaml:"reward"`
}

// DefaultConfig returns the configuration of a node storing its state in the
// given folder.
func DefaultConfig(folder string) Config {
	def := lottery.DefaultConfig()

	return Config{
		Folder:          folder,
		GatewayID:       "veilroll",
		MaxDurationDays: gateway.DefaultMaxDurationDays,
		Lottery: LotteryConfig{
			Price:  def.Price.String(),
			Reward: def.Reward,
		},
	}
}

// ContractConfig returns the configuration of the contract.
func (c Config) ContractConfig() (lottery.Config, error) {
	def := lottery.DefaultConfig()

	if c.Lottery.Price != "" {
		price, err := decimal.NewFromString(c.Lottery.Price)
		if err != nil {
			return def, xerrors.Errorf("invalid price '%s': %v", c.Lottery.Price, err)
		}

		if price.IsNegative() {
			return def, xerrors.Errorf("invalid price '%s': negative", c.Lottery.Price)
		}

		def.Price = price
	}

	if c.Lottery.Reward != 0 {
		def.Reward = c.Lottery.Reward
	}

	return def, nil
}

// Node is a single process running the lottery.
type Node struct {
	db       kv.DB
	pool     *mem.Pool
	ordering *serial.Service
	cop      *coprocessor.Coprocessor
	acl      acl.Manager
	contract crypto.PublicKey
	gateway  *gateway.Gateway
	logger   zerolog.Logger
}

// New creates the node described by the configuration. The node processes
// the transactions once started.
func New(cfg Config) (*Node, error) {
	if cfg.Folder == "" {
		return nil, xerrors.New("missing folder")
	}

	contractCfg, err := cfg.ContractConfig()
	if err != nil {
		return nil, err
	}

	identity, err := loadContractKey(filepath.Join(cfg.Folder, ContractKeyFile))
	if err != nil {
		return nil, err
	}

	secret, err := loader.NewFileLoader(filepath.Join(cfg.Folder, SecretFile)).
		LoadOrCreate(loader.GeneratorFunc(coprocessor.NewSecret))
	if err != nil {
		return nil, xerrors.Errorf("failed to load secret: %v", err)
	}

	manager := acl.NewManager(darc.NewService(json.NewContext()))

	cop, err := coprocessor.NewCoprocessor(secret, manager)
	if err != nil {
		return nil, xerrors.Errorf("failed to create coprocessor: %v", err)
	}

	contract := lottery.NewContract(identity, cop, manager, contractCfg)

	exec := native.NewExecution()
	lottery.RegisterContract(exec, contract)

	db, err := kv.New(filepath.Join(cfg.Folder, DBFile))
	if err != nil {
		return nil, xerrors.Errorf("failed to open database: %v", err)
	}

	txs := mem.NewPool()

	srvc, err := serial.NewService(db, txs, exec)
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to create ordering: %v", err)
	}

	opts := []gateway.Option{}
	if cfg.MaxDurationDays != 0 {
		opts = append(opts, gateway.WithMaxDuration(cfg.MaxDurationDays))
	}

	gw := gateway.NewGateway(cfg.GatewayID, cop, manager, srvc.GetStore(), opts...)

	n := &Node{
		db:       db,
		pool:     txs,
		ordering: srvc,
		cop:      cop,
		acl:      manager,
		contract: identity,
		gateway:  gw,
		logger:   veilroll.Logger.With().Str("node", cfg.Folder).Logger(),
	}

	return n, nil
}

// Start starts to process the transactions.
func (n *Node) Start() error {
	err := n.ordering.Listen()
	if err != nil {
		return xerrors.Errorf("failed to start ordering: %v", err)
	}

	n.logger.Info().
		Str("contract", fmt.Sprint(n.contract)).
		Msg("node started")

	return nil
}

// Close stops the node and releases the database.
func (n *Node) Close() error {
	err := n.ordering.Close()
	if err != nil {
		n.logger.Warn().Err(err).Msg("ordering not running")
	}

	err = n.pool.Close()
	if err != nil {
		return xerrors.Errorf("failed to close pool: %v", err)
	}

	err = n.db.Close()
	if err != nil {
		return xerrors.Errorf("failed to close database: %v", err)
	}

	n.logger.Info().Msg("node closed")

	return nil
}

// GetContract returns the identity of the lottery contract.
func (n *Node) GetContract() crypto.PublicKey {
	return n.contract
}

// GetGateway returns the decryption gateway.
func (n *Node) GetGateway() *gateway.Gateway {
	return n.gateway
}

// Backend returns the services a client talks to.
func (n *Node) Backend() client.Backend {
	return client.Backend{
		Contract: n.GetContract(),
		InputKey: n.cop.InputKey(),
		Ordering: n.ordering,
		Pool:     n.pool,
		Gateway:  n.gateway,
	}
}

// NewClient returns a participant of the lottery of the node.
func (n *Node) NewClient(signer crypto.Signer) *client.Client {
	mgr := signed.NewManager(signer, n.ordering)

	return client.NewClient(signer, mgr, n.Backend())
}

func loadContractKey(path string) (crypto.PublicKey, error) {
	data, err := loader.NewFileLoader(path).LoadOrCreate(loader.GeneratorFunc(func() ([]byte, error) {
		return ed25519.NewSigner().MarshalBinary()
	}))
	if err != nil {
		return nil, xerrors.Errorf("failed to load contract key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return nil, xerrors.Errorf("invalid contract key: %v", err)
	}

	return signer.GetPublicKey(), nil
}
