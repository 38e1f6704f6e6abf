package lottery

import (
	"errors"

	"go.dedis.ch/veilroll"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/execution"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/core/store/prefixed"
	"go.dedis.ch/veilroll/fhe"
	"golang.org/x/xerrors"
)

var (
	// ErrInvalidProof is returned when the encrypted numbers of a ticket
	// cannot be verified for the caller.
	ErrInvalidProof = errors.New("invalid input proof")

	// ErrNoTicket is returned when the caller draws without a ticket.
	ErrNoTicket = errors.New("no ticket")

	// ErrAlreadyOwnsTicket is returned when the caller buys a second ticket.
	ErrAlreadyOwnsTicket = errors.New("already owns a ticket")
)

// lotteryCommand implements the commands of the lottery contract
//
// - implements commands
type lotteryCommand struct {
	*Contract
}

// buy implements commands. It performs the BUY command. The fee is checked
// before anything else so that a wrong payment never reaches the engine.
func (c lotteryCommand) buy(snap store.Snapshot, eval fhe.Evaluator, step execution.Step) error {
	owner := step.Current.GetIdentity()

	paid, err := ParseValue(step.Current.GetArg(ValueArg))
	if err != nil {
		return xerrors.Errorf("failed to read payment: %v", err)
	}

	err = ValidateFee(paid, c.config.Fee())
	if err != nil {
		return err
	}

	state := prefixed.NewSnapshot(ContractName, snap)

	var ticket ticketRecord

	_, err = readRecord(state, ticketPrefix, owner, &ticket)
	if err != nil {
		return err
	}

	if ticket.Purchased {
		return ErrAlreadyOwnsTicket
	}

	proof := step.Current.GetArg(ProofArg)
	if len(proof) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg: %w", ProofArg, ErrInvalidProof)
	}

	first, err := c.verifyNumber(eval, step, FirstArg, proof)
	if err != nil {
		return err
	}

	second, err := c.verifyNumber(eval, step, SecondArg, proof)
	if err != nil {
		return err
	}

	ticket = ticketRecord{
		First:     first,
		Second:    second,
		Purchased: true,
	}

	err = writeRecord(state, ticketPrefix, owner, ticket)
	if err != nil {
		return err
	}

	err = c.grant(snap, []fhe.Handle{first, second}, owner, c.identity)
	if err != nil {
		return err
	}

	var points pointsRecord

	found, err := readRecord(state, pointsPrefix, owner, &points)
	if err != nil {
		return err
	}

	if !found {
		points.Score, err = eval.TrivialEncrypt(0, fhe.Uint32)
		if err != nil {
			return xerrors.Errorf("failed to initialize points: %v", err)
		}

		err = writeRecord(state, pointsPrefix, owner, points)
		if err != nil {
			return err
		}

		err = c.grant(snap, []fhe.Handle{points.Score}, owner, c.identity)
		if err != nil {
			return err
		}
	}

	pot, err := readPot(state)
	if err != nil {
		return err
	}

	pot = pot.Add(paid)

	err = writePot(state, pot)
	if err != nil {
		return err
	}

	promTickets.Inc()
	promPot.Set(pot.InexactFloat64())

	veilroll.Logger.Info().
		Str("contract", ContractName).
		Str("owner", stringOf(owner)).
		Msg("ticket purchased")

	return nil
}

// draw implements commands. It performs the DRAW command. A new draw replaces
// the previous one and can award the reward again.
func (c lotteryCommand) draw(snap store.Snapshot, eval fhe.Evaluator, step execution.Step) error {
	owner := step.Current.GetIdentity()
	state := prefixed.NewSnapshot(ContractName, snap)

	var ticket ticketRecord

	_, err := readRecord(state, ticketPrefix, owner, &ticket)
	if err != nil {
		return err
	}

	if !ticket.Purchased {
		return ErrNoTicket
	}

	drawnFirst, err := drawNumber(eval)
	if err != nil {
		return err
	}

	drawnSecond, err := drawNumber(eval)
	if err != nil {
		return err
	}

	firstMatch, err := eval.Eq(drawnFirst, ticket.First)
	if err != nil {
		return xerrors.Errorf("failed to compare first number: %v", err)
	}

	secondMatch, err := eval.Eq(drawnSecond, ticket.Second)
	if err != nil {
		return xerrors.Errorf("failed to compare second number: %v", err)
	}

	match, err := eval.And(firstMatch, secondMatch)
	if err != nil {
		return xerrors.Errorf("failed to combine matches: %v", err)
	}

	var last drawRecord

	_, err = readRecord(state, drawPrefix, owner, &last)
	if err != nil {
		return err
	}

	record := drawRecord{
		DrawnFirst:  drawnFirst,
		DrawnSecond: drawnSecond,
		Match:       match,
		Performed:   true,
		Count:       last.Count + 1,
	}

	err = writeRecord(state, drawPrefix, owner, record)
	if err != nil {
		return err
	}

	err = c.grant(snap, []fhe.Handle{drawnFirst, drawnSecond}, owner, c.identity)
	if err != nil {
		return err
	}

	err = c.grant(snap, []fhe.Handle{match}, c.identity)
	if err != nil {
		return err
	}

	err = c.awardIfMatched(snap, eval, owner, match)
	if err != nil {
		return xerrors.Errorf("failed to award: %v", err)
	}

	promDraws.Inc()

	veilroll.Logger.Info().
		Str("contract", ContractName).
		Str("owner", stringOf(owner)).
		Uint64("count", record.Count).
		Msg("numbers drawn")

	return nil
}

// awardIfMatched adds the reward to the points of the owner when the match is
// true, and leaves them unchanged otherwise. Both outcomes produce a new
// handle so that nothing tells them apart.
func (c lotteryCommand) awardIfMatched(snap store.Snapshot, eval fhe.Evaluator,
	owner access.Identity, match fhe.Handle) error {

	state := prefixed.NewSnapshot(ContractName, snap)

	var points pointsRecord

	found, err := readRecord(state, pointsPrefix, owner, &points)
	if err != nil {
		return err
	}

	if !found {
		points.Score, err = eval.TrivialEncrypt(0, fhe.Uint32)
		if err != nil {
			return xerrors.Errorf("failed to initialize points: %v", err)
		}
	}

	added, err := addSaturated(eval, points.Score, c.config.Reward)
	if err != nil {
		return xerrors.Errorf("failed to add reward: %v", err)
	}

	score, err := eval.Select(match, added, points.Score)
	if err != nil {
		return xerrors.Errorf("failed to select score: %v", err)
	}

	err = writeRecord(state, pointsPrefix, owner, pointsRecord{Score: score})
	if err != nil {
		return err
	}

	return c.grant(snap, []fhe.Handle{score}, owner, c.identity)
}

// verifyNumber returns the handle of the argument once verified against the
// proof of the caller.
func (c lotteryCommand) verifyNumber(eval fhe.Evaluator, step execution.Step, arg string, proof []byte) (fhe.Handle, error) {
	value := step.Current.GetArg(arg)
	if len(value) == 0 {
		return fhe.Handle{}, xerrors.Errorf("'%s' not found in tx arg: %w", arg, ErrInvalidProof)
	}

	h, err := fhe.HandleFromBytes(value)
	if err != nil {
		return fhe.Handle{}, xerrors.Errorf("'%s' is malformed (%v): %w", arg, err, ErrInvalidProof)
	}

	if h.Type() != fhe.Uint8 {
		return fhe.Handle{}, xerrors.Errorf("'%s' is %v: %w", arg, h.Type(), ErrInvalidProof)
	}

	h, err = eval.VerifyInput(h, proof, step.Current.GetIdentity())
	if errors.Is(err, fhe.ErrInvalidInput) {
		return fhe.Handle{}, xerrors.Errorf("'%s' rejected (%v): %w", arg, err, ErrInvalidProof)
	}
	if err != nil {
		return fhe.Handle{}, xerrors.Errorf("failed to verify '%s': %v", arg, err)
	}

	return h, nil
}

func (c lotteryCommand) grant(snap store.Snapshot, handles []fhe.Handle, grantees ...access.Identity) error {
	for _, h := range handles {
		err := c.granter.Grant(snap, h.Bytes(), grantees...)
		if err != nil {
			return xerrors.Errorf("failed to grant %v: %v", h, err)
		}
	}

	return nil
}

// addSaturated adds the reward to the score, which stays at the largest value
// of its type instead of wrapping around.
func addSaturated(eval fhe.Evaluator, score fhe.Handle, reward uint64) (fhe.Handle, error) {
	ceiling := score.Type().Max()
	if reward > ceiling {
		reward = ceiling
	}

	limit, err := eval.TrivialEncrypt(ceiling-reward, score.Type())
	if err != nil {
		return fhe.Handle{}, err
	}

	fits, err := eval.Le(score, limit)
	if err != nil {
		return fhe.Handle{}, err
	}

	sum, err := eval.AddScalar(score, reward)
	if err != nil {
		return fhe.Handle{}, err
	}

	top, err := eval.TrivialEncrypt(ceiling, score.Type())
	if err != nil {
		return fhe.Handle{}, err
	}

	return eval.Select(fits, sum, top)
}

// drawNumber returns an encrypted number uniform in [1, MaxNumber].
func drawNumber(eval fhe.Evaluator) (fhe.Handle, error) {
	random, err := eval.RandBounded(fhe.Uint8, MaxNumber)
	if err != nil {
		return fhe.Handle{}, xerrors.Errorf("failed to draw: %v", err)
	}

	number, err := eval.AddScalar(random, 1)
	if err != nil {
		return fhe.Handle{}, xerrors.Errorf("failed to shift number: %v", err)
	}

	return number, nil
}

func stringOf(ident access.Identity) string {
	text, err := ident.MarshalText()
	if err != nil {
		return "malformed"
	}

	return string(text)
}
