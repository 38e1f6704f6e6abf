// Package lottery implements the native contract of the encrypted lottery.
//
// A participant buys one ticket made of two encrypted numbers and pays an
// exact fee. A draw produces two encrypted random numbers in [1, 9] and awards
// the reward to the points of the participant when both numbers match the
// ticket, position by position. The comparison and the award are evaluated on
// the encrypted values, so the contract never learns whether a draw is won.
//
// Every handle the contract keeps is granted to the contract, so that later
// transactions can compute on it, and the handles of a participant are granted
// to that participant, so that the gateway decrypts them on request.
package lottery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.dedis.ch/veilroll"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/execution"
	"go.dedis.ch/veilroll/core/execution/native"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/fhe"
	"golang.org/x/xerrors"
)

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/veilroll.Lottery"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "lottery:command"

	// FirstArg is the argument's name of the handle of the first number.
	FirstArg = "lottery:first"

	// SecondArg is the argument's name of the handle of the second number.
	SecondArg = "lottery:second"

	// ProofArg is the argument's name of the proof of the encrypted numbers.
	ProofArg = "lottery:proof"

	// ValueArg is the argument's name of the amount paid with the
	// transaction, in wei and in base 10.
	ValueArg = "lottery:value"

	// DefaultReward is the number of points of a winning draw.
	DefaultReward = 10000

	// MaxNumber is the largest number of a ticket or a draw. The smallest is 1.
	MaxNumber = 9

	uid = "LTRY"
)

// Command defines a type of command for the lottery contract.
type Command string

const (
	// CmdBuy defines the command to buy a ticket.
	CmdBuy Command = "BUY"

	// CmdDraw defines the command to draw the numbers of the caller.
	CmdDraw Command = "DRAW"
)

// defines prometheus metrics
var (
	promTickets = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veilroll_lottery_tickets_total",
		Help: "total number of tickets sold",
	})

	promDraws = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veilroll_lottery_draws_total",
		Help: "total number of draws",
	})

	promPot = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veilroll_lottery_pot_wei",
		Help: "amount collected by the ticket sales",
	})
)

func init() {
	veilroll.PromCollectors = append(veilroll.PromCollectors, promTickets,
		promDraws, promPot)
}

// Config is the configuration of the game.
type Config struct {
	// Price is the price of a ticket in native units.
	Price decimal.Decimal

	// Reward is the number of points of a winning draw.
	Reward uint64
}

// DefaultConfig returns a ticket price of 0.001 native unit and the default
// reward.
func DefaultConfig() Config {
	return Config{
		Price:  decimal.New(1, -3),
		Reward: DefaultReward,
	}
}

// Fee returns the price of a ticket in wei.
func (c Config) Fee() decimal.Decimal {
	return ToWei(c.Price)
}

// Granter grants the rights over the handles.
type Granter interface {
	Grant(snap store.Snapshot, handle []byte, grantees ...access.Identity) error
}

// commands defines the commands of the lottery contract. This interface helps
// in testing the contract.
type commands interface {
	buy(snap store.Snapshot, eval fhe.Evaluator, step execution.Step) error
	draw(snap store.Snapshot, eval fhe.Evaluator, step execution.Step) error
}

// RegisterContract registers the lottery contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is the lottery smart contract.
//
// - implements native.Contract
type Contract struct {
	// identity is the identity of this instance of the contract, which the
	// inputs are bound to and which is granted the handles.
	identity access.Identity

	engine  fhe.Engine
	granter Granter
	config  Config

	// cmd provides the commands executions
	cmd commands
}

// NewContract creates a new lottery contract identified by the identity.
func NewContract(identity access.Identity, engine fhe.Engine, granter Granter, config Config) Contract {
	contract := Contract{
		identity: identity,
		engine:   engine,
		granter:  granter,
		config:   config,
	}

	contract.cmd = lotteryCommand{Contract: &contract}

	return contract
}

// GetIdentity returns the identity of the contract.
func (c Contract) GetIdentity() access.Identity {
	return c.identity
}

// Execute implements native.Contract. It runs the appropriate command in a
// session of the engine seeded by the transaction.
func (c Contract) Execute(snap store.Snapshot, step execution.Step) error {
	cmd := step.Current.GetArg(CmdArg)
	if len(cmd) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", CmdArg)
	}

	eval := c.engine.NewSession(snap, c.identity, step.Current.GetID())

	switch Command(cmd) {
	case CmdBuy:
		err := c.cmd.buy(snap, eval, step)
		if err != nil {
			return xerrors.Errorf("failed to BUY: %w", err)
		}
	case CmdDraw:
		err := c.cmd.draw(snap, eval, step)
		if err != nil {
			return xerrors.Errorf("failed to DRAW: %w", err)
		}
	default:
		return xerrors.Errorf("unknown command: %s", cmd)
	}

	return nil
}

// UID implements native.Contract. It returns the unique 4-bytes contract
// identifier.
func (c Contract) UID() string {
	return uid
}
