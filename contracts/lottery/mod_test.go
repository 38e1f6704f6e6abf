package lottery

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/access/acl"
	"go.dedis.ch/veilroll/core/access/darc"
	"go.dedis.ch/veilroll/core/execution"
	"go.dedis.ch/veilroll/core/execution/native"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/core/txn"
	"go.dedis.ch/veilroll/core/txn/signed"
	"go.dedis.ch/veilroll/crypto"
	"go.dedis.ch/veilroll/crypto/ed25519"
	"go.dedis.ch/veilroll/fhe"
	"go.dedis.ch/veilroll/fhe/coprocessor"
	"go.dedis.ch/veilroll/fhe/input"
	"go.dedis.ch/veilroll/serde/json"
	"go.dedis.ch/veilroll/testing/fake"
)

func TestExecute(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()

	err := env.contract.Execute(fake.NewSnapshot(), makeStep(t, player, 0))
	require.EqualError(t, err, "'lottery:command' not found in tx arg")

	err = env.contract.Execute(fake.NewSnapshot(), makeStep(t, player, 0, CmdArg, "fake"))
	require.EqualError(t, err, "unknown command: fake")

	env.contract.cmd = fakeCmd{err: fake.GetError()}

	err = env.contract.Execute(fake.NewSnapshot(), makeStep(t, player, 0, CmdArg, "BUY"))
	require.EqualError(t, err, fake.Err("failed to BUY"))

	err = env.contract.Execute(fake.NewSnapshot(), makeStep(t, player, 0, CmdArg, "DRAW"))
	require.EqualError(t, err, fake.Err("failed to DRAW"))

	env.contract.cmd = fakeCmd{}

	err = env.contract.Execute(fake.NewSnapshot(), makeStep(t, player, 0, CmdArg, "DRAW"))
	require.NoError(t, err)
}

func TestContract_UID(t *testing.T) {
	contract := Contract{}
	require.Equal(t, "LTRY", contract.UID())

	exec := native.NewExecution()
	RegisterContract(exec, contract)

	require.Panics(t, func() { RegisterContract(exec, contract) })
}

func TestBuy_InvalidFee(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()

	for _, value := range []string{"", "0", "999999999999999", "1000000000000001"} {
		snap := fake.NewSnapshot()

		step := env.buyStep(t, player, 0, 3, 7, value)

		err := env.contract.Execute(snap, step)
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrInvalidFee), err.Error())
		require.Regexp(t, "invalid ticket price$", err.Error())

		// Nothing has been written.
		require.Equal(t, 0, snap.Len())
	}

	step := env.buyStep(t, player, 0, 3, 7, "1e15")
	err := env.contract.Execute(fake.NewSnapshot(), step)
	require.NoError(t, err)

	step = env.buyStep(t, player, 0, 3, 7, "abc")
	err = env.contract.Execute(fake.NewSnapshot(), step)
	require.Error(t, err)
	require.Regexp(t, "^failed to BUY: failed to read payment: malformed value", err.Error())
}

func TestBuy_ThenPointsAreZero(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()
	snap := fake.NewSnapshot()

	found, err := HasTicket(snap, player.GetPublicKey())
	require.NoError(t, err)
	require.False(t, found)

	points, err := GetPoints(snap, player.GetPublicKey())
	require.NoError(t, err)
	require.True(t, points.IsZero())

	err = env.contract.Execute(snap, env.buyStep(t, player, 0, 3, 7, fee))
	require.NoError(t, err)

	found, err = HasTicket(snap, player.GetPublicKey())
	require.NoError(t, err)
	require.True(t, found)

	first, second, err := GetTicket(snap, player.GetPublicKey())
	require.NoError(t, err)
	env.requirePlain(t, snap, player, first, 3)
	env.requirePlain(t, snap, player, second, 7)

	points, err = GetPoints(snap, player.GetPublicKey())
	require.NoError(t, err)
	require.Equal(t, fhe.Uint32, points.Type())
	env.requirePlain(t, snap, player, points, 0)

	found, err = HasDraw(snap, player.GetPublicKey())
	require.NoError(t, err)
	require.False(t, found)

	d1, d2, err := GetLastDraw(snap, player.GetPublicKey())
	require.NoError(t, err)
	require.True(t, d1.IsZero())
	require.True(t, d2.IsZero())

	pot, err := GetPot(snap)
	require.NoError(t, err)
	require.True(t, pot.Equal(decimal.RequireFromString(fee)))

	// A second purchase is refused and the pot is unchanged.
	err = env.contract.Execute(snap, env.buyStep(t, player, 1, 1, 1, fee))
	require.True(t, errors.Is(err, ErrAlreadyOwnsTicket))

	other := ed25519.NewSigner()
	err = env.contract.Execute(snap, env.buyStep(t, other, 0, 1, 1, fee))
	require.NoError(t, err)

	pot, err = GetPot(snap)
	require.NoError(t, err)
	require.Equal(t, "2000000000000000", pot.String())

	// The handles of a player are not granted to the others.
	ok, err := env.acl.IsAuthorized(snap, first[:], other.GetPublicKey())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBuy_InvalidProof(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()
	thief := ed25519.NewSigner()

	enc, err := input.New(env.cop.InputKey(), env.identity, player.GetPublicKey()).Add8(3).Add8(7).Encrypt()
	require.NoError(t, err)

	// Someone else submits the input of the player.
	step := makeStep(t, thief, 0,
		CmdArg, string(CmdBuy),
		FirstArg, string(enc.Handles[0][:]),
		SecondArg, string(enc.Handles[1][:]),
		ProofArg, string(enc.Proof),
		ValueArg, fee)

	snap := fake.NewSnapshot()
	err = env.contract.Execute(snap, step)
	require.True(t, errors.Is(err, ErrInvalidProof), err.Error())

	found, err := HasTicket(snap, thief.GetPublicKey())
	require.NoError(t, err)
	require.False(t, found)

	// Input bound to another contract.
	otherContract := ed25519.NewSigner().GetPublicKey()
	enc, err = input.New(env.cop.InputKey(), otherContract, player.GetPublicKey()).Add8(3).Add8(7).Encrypt()
	require.NoError(t, err)

	step = makeStep(t, player, 0,
		CmdArg, string(CmdBuy),
		FirstArg, string(enc.Handles[0][:]),
		SecondArg, string(enc.Handles[1][:]),
		ProofArg, string(enc.Proof),
		ValueArg, fee)

	err = env.contract.Execute(fake.NewSnapshot(), step)
	require.True(t, errors.Is(err, ErrInvalidProof))

	// Wrong types of numbers.
	enc, err = input.New(env.cop.InputKey(), env.identity, player.GetPublicKey()).Add32(3).Add32(7).Encrypt()
	require.NoError(t, err)

	step = makeStep(t, player, 0,
		CmdArg, string(CmdBuy),
		FirstArg, string(enc.Handles[0][:]),
		SecondArg, string(enc.Handles[1][:]),
		ProofArg, string(enc.Proof),
		ValueArg, fee)

	err = env.contract.Execute(fake.NewSnapshot(), step)
	require.True(t, errors.Is(err, ErrInvalidProof))
	require.Contains(t, err.Error(), "'lottery:first' is euint32")

	// Missing arguments.
	err = env.contract.Execute(fake.NewSnapshot(), makeStep(t, player, 0,
		CmdArg, string(CmdBuy), ValueArg, fee))
	require.True(t, errors.Is(err, ErrInvalidProof))
	require.Contains(t, err.Error(), "'lottery:proof' not found in tx arg")

	err = env.contract.Execute(fake.NewSnapshot(), makeStep(t, player, 0,
		CmdArg, string(CmdBuy), ValueArg, fee, ProofArg, "proof"))
	require.True(t, errors.Is(err, ErrInvalidProof))
	require.Contains(t, err.Error(), "'lottery:first' not found in tx arg")

	err = env.contract.Execute(fake.NewSnapshot(), makeStep(t, player, 0,
		CmdArg, string(CmdBuy), ValueArg, fee, ProofArg, "proof", FirstArg, "abc"))
	require.True(t, errors.Is(err, ErrInvalidProof))
	require.Contains(t, err.Error(), "'lottery:first' is malformed")

	// Garbage proof.
	enc, err = input.New(env.cop.InputKey(), env.identity, player.GetPublicKey()).Add8(3).Add8(7).Encrypt()
	require.NoError(t, err)

	step = makeStep(t, player, 0,
		CmdArg, string(CmdBuy),
		FirstArg, string(enc.Handles[0][:]),
		SecondArg, string(enc.Handles[1][:]),
		ProofArg, "garbage",
		ValueArg, fee)

	err = env.contract.Execute(fake.NewSnapshot(), step)
	require.True(t, errors.Is(err, ErrInvalidProof))
}

func TestDraw_NoTicket(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()

	snap := fake.NewSnapshot()

	err := env.contract.Execute(snap, makeStep(t, player, 0, CmdArg, string(CmdDraw)))
	require.True(t, errors.Is(err, ErrNoTicket))
	require.EqualError(t, err, "failed to DRAW: no ticket")
	require.Equal(t, 0, snap.Len())
}

func TestDraw_Properties(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()
	snap := fake.NewSnapshot()

	err := env.contract.Execute(snap, env.buyStep(t, player, 0, 3, 7, fee))
	require.NoError(t, err)

	previous := uint64(0)

	for i := uint64(1); i <= 40; i++ {
		err = env.contract.Execute(snap, makeStep(t, player, i, CmdArg, string(CmdDraw)))
		require.NoError(t, err)

		d1, d2, err := GetLastDraw(snap, player.GetPublicKey())
		require.NoError(t, err)

		v1 := env.plain(t, snap, player, d1)
		v2 := env.plain(t, snap, player, d2)
		require.GreaterOrEqual(t, v1, uint64(1))
		require.LessOrEqual(t, v1, uint64(MaxNumber))
		require.GreaterOrEqual(t, v2, uint64(1))
		require.LessOrEqual(t, v2, uint64(MaxNumber))

		points, err := GetPoints(snap, player.GetPublicKey())
		require.NoError(t, err)

		score := env.plain(t, snap, player, points)

		if v1 == 3 && v2 == 7 {
			require.Equal(t, previous+DefaultReward, score)
		} else {
			require.Equal(t, previous, score)
		}

		previous = score

		count, err := GetDrawCount(snap, player.GetPublicKey())
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	found, err := HasDraw(snap, player.GetPublicKey())
	require.NoError(t, err)
	require.True(t, found)
}

func TestDraw_Winning(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()
	snap := fake.NewSnapshot()

	err := env.contract.Execute(snap, env.buyStep(t, player, 0, 3, 7, fee))
	require.NoError(t, err)

	rigged := &riggedEngine{Engine: env.cop}
	contract := NewContract(env.identity, rigged, env.acl, DefaultConfig())

	draws := []struct {
		first, second uint64
		points        uint64
	}{
		{3, 7, 10000},
		{3, 8, 10000},
		{7, 3, 10000},
		{3, 7, 20000},
	}

	for i, d := range draws {
		// The random values are shifted by one to land in [1, 9].
		rigged.values = []uint64{d.first - 1, d.second - 1}

		err = contract.Execute(snap, makeStep(t, player, uint64(i+1), CmdArg, string(CmdDraw)))
		require.NoError(t, err)

		d1, d2, err := GetLastDraw(snap, player.GetPublicKey())
		require.NoError(t, err)
		env.requirePlain(t, snap, player, d1, d.first)
		env.requirePlain(t, snap, player, d2, d.second)

		points, err := GetPoints(snap, player.GetPublicKey())
		require.NoError(t, err)
		env.requirePlain(t, snap, player, points, d.points)
	}
}

func TestDraw_PointsSaturate(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()
	snap := fake.NewSnapshot()

	err := env.contract.Execute(snap, env.buyStep(t, player, 0, 3, 7, fee))
	require.NoError(t, err)

	config := DefaultConfig()
	config.Reward = 3000000000

	rigged := &riggedEngine{Engine: env.cop}
	contract := NewContract(env.identity, rigged, env.acl, config)

	ceiling := fhe.Uint32.Max()

	for i, expected := range []uint64{3000000000, ceiling, ceiling} {
		rigged.values = []uint64{2, 6}

		err = contract.Execute(snap, makeStep(t, player, uint64(i+1), CmdArg, string(CmdDraw)))
		require.NoError(t, err)

		points, err := GetPoints(snap, player.GetPublicKey())
		require.NoError(t, err)
		env.requirePlain(t, snap, player, points, expected)
	}
}

func TestCommand_Failures(t *testing.T) {
	env := newEnv(t)
	player := ed25519.NewSigner()

	cmd := lotteryCommand{Contract: &env.contract}

	step := env.buyStep(t, player, 0, 3, 7, fee)

	eval := env.cop.NewSession(fake.NewBadSnapshot(), env.identity, step.Current.GetID())
	err := cmd.buy(fake.NewBadSnapshot(), eval, step)
	require.EqualError(t, err, fake.Err("failed to read 'ticket:'"))

	snap := fake.NewSnapshot()
	eval = env.cop.NewSession(snap, env.identity, step.Current.GetID())

	badOwner := makeStep(t, player, 0, ValueArg, fee)
	badOwner.Current = badIdentityTx{Transaction: badOwner.Current}

	err = cmd.buy(snap, eval, badOwner)
	require.EqualError(t, err, fake.Err("failed to marshal owner"))

	err = cmd.draw(snap, eval, badOwner)
	require.EqualError(t, err, fake.Err("failed to marshal owner"))

	env.contract.granter = badGranter{}
	cmd = lotteryCommand{Contract: &env.contract}

	snap = fake.NewSnapshot()
	eval = env.cop.NewSession(snap, env.identity, step.Current.GetID())
	err = cmd.buy(snap, eval, step)
	require.Error(t, err)
	require.Regexp(t, "^failed to grant 0x[[:xdigit:]]{64}: fake error$", err.Error())
}

// -----------------------------------------------------------------------------
// Utility functions

const fee = "1000000000000000"

type env struct {
	identity crypto.PublicKey
	acl      acl.Manager
	cop      *coprocessor.Coprocessor
	contract Contract
}

func newEnv(t *testing.T) *env {
	secret, err := coprocessor.NewSecret()
	require.NoError(t, err)

	manager := acl.NewManager(darc.NewService(json.NewContext()))

	cop, err := coprocessor.NewCoprocessor(secret, manager)
	require.NoError(t, err)

	identity := ed25519.NewSigner().GetPublicKey()

	return &env{
		identity: identity,
		acl:      manager,
		cop:      cop,
		contract: NewContract(identity, cop, manager, DefaultConfig()),
	}
}

func (e *env) buyStep(t *testing.T, player crypto.Signer, nonce uint64, first, second uint8, value string) execution.Step {
	enc, err := input.New(e.cop.InputKey(), e.identity, player.GetPublicKey()).Add8(first).Add8(second).Encrypt()
	require.NoError(t, err)

	args := []string{
		CmdArg, string(CmdBuy),
		FirstArg, string(enc.Handles[0][:]),
		SecondArg, string(enc.Handles[1][:]),
		ProofArg, string(enc.Proof),
	}

	if value != "" {
		args = append(args, ValueArg, value)
	}

	return makeStep(t, player, nonce, args...)
}

// plain returns the plaintext of the handle after checking that the player
// and the contract have been granted the handle.
func (e *env) plain(t *testing.T, snap store.Readable, player crypto.Signer, h fhe.Handle) uint64 {
	for _, ident := range []access.Identity{player.GetPublicKey(), e.identity} {
		ok, err := e.acl.IsAuthorized(snap, h[:], ident)
		require.NoError(t, err)
		require.True(t, ok)
	}

	value, err := e.cop.Decrypt(snap, h)
	require.NoError(t, err)

	return value
}

func (e *env) requirePlain(t *testing.T, snap store.Readable, player crypto.Signer, h fhe.Handle, expected uint64) {
	require.Equal(t, expected, e.plain(t, snap, player, h))
}

func makeStep(t *testing.T, signer crypto.Signer, nonce uint64, args ...string) execution.Step {
	opts := make([]signed.TransactionOption, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		opts = append(opts, signed.WithArg(args[i], []byte(args[i+1])))
	}

	tx, err := signed.NewTransaction(nonce, signer.GetPublicKey(), opts...)
	require.NoError(t, err)

	return execution.Step{Current: tx}
}

type fakeCmd struct {
	err error
}

func (c fakeCmd) buy(store.Snapshot, fhe.Evaluator, execution.Step) error {
	return c.err
}

func (c fakeCmd) draw(store.Snapshot, fhe.Evaluator, execution.Step) error {
	return c.err
}

// riggedEngine replaces the random values of the sessions by known ones.
type riggedEngine struct {
	fhe.Engine
	values []uint64
}

func (e *riggedEngine) NewSession(snap store.Snapshot, contract access.Identity, seed []byte) fhe.Evaluator {
	return &riggedSession{
		Evaluator: e.Engine.NewSession(snap, contract, seed),
		engine:    e,
	}
}

type riggedSession struct {
	fhe.Evaluator
	engine *riggedEngine
}

func (s *riggedSession) RandBounded(t fhe.Type, bound uint64) (fhe.Handle, error) {
	value := s.engine.values[0]
	s.engine.values = s.engine.values[1:]

	return s.TrivialEncrypt(value, t)
}

type badGranter struct{}

func (badGranter) Grant(store.Snapshot, []byte, ...access.Identity) error {
	return fake.GetError()
}

type badIdentityTx struct {
	txn.Transaction
}

func (tx badIdentityTx) GetIdentity() access.Identity {
	return fake.NewBadPublicKey()
}
