// Package gateway implements the decryption of the handles for their owners.
//
// A user asks for the plaintexts of some handles with a request signed by its
// identity. The signature covers a domain separated authorization that names
// the gateway, the contracts the handles come from, a one-time public key and
// a validity window. The plaintexts are sealed to the one-time key so that
// only the author of the request can read them.
//
// A request is served only if the user and the contract of every handle have
// been granted the handle. Any violation results in ErrDecryptionUnauthorized
// and no data is returned.
package gateway

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"go.dedis.ch/veilroll"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/crypto"
	"go.dedis.ch/veilroll/fhe"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

const (
	// DomainName is the name of the signing domain of the authorizations.
	DomainName = "VeilRoll Decryption"

	// DomainVersion is the version of the signing domain.
	DomainVersion = "1"

	// DefaultMaxDurationDays is the longest validity of a request.
	DefaultMaxDurationDays = 365

	// MaxPairs is the maximum number of handles in one request.
	MaxPairs = 32

	// MaxContracts is the maximum number of contracts in one request.
	MaxContracts = 10

	day = 24 * time.Hour
)

// ErrDecryptionUnauthorized is returned when a request is refused.
var ErrDecryptionUnauthorized = errors.New("decryption unauthorized")

var encMode cbor.EncMode

var promRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "veilroll_gateway_decrypt_requests_total",
	Help: "total number of decryption requests",
}, []string{"status"})

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	veilroll.PromCollectors = append(veilroll.PromCollectors, promRequests)
}

// Pair is a handle and the contract it has been produced by.
type Pair struct {
	Handle   fhe.Handle
	Contract crypto.PublicKey
}

// DecryptRequest is a request of a user to decrypt some handles.
type DecryptRequest struct {
	Pairs []Pair

	// PublicKey is the one-time key the plaintexts are sealed to.
	PublicKey *[32]byte

	Contracts      []crypto.PublicKey
	User           crypto.PublicKey
	StartTimestamp int64
	DurationDays   uint32
	Signature      crypto.Signature
}

// SealedValue is the plaintext of a handle sealed to the key of the request.
type SealedValue struct {
	Handle fhe.Handle
	Data   []byte
}

// DecryptResponse is the response to a request, in the order of the pairs.
type DecryptResponse struct {
	Values []SealedValue
}

// Decrypter is the source of the plaintexts.
type Decrypter interface {
	Decrypt(r store.Readable, h fhe.Handle) (uint64, error)
}

// Authorizer tells which identities have been granted a handle.
type Authorizer interface {
	IsAuthorized(r store.Readable, handle []byte, grantee access.Identity) (bool, error)
}

// Option is the type of the options to create a gateway.
type Option func(*Gateway)

// WithMaxDuration sets the longest validity of a request in days.
func WithMaxDuration(days uint32) Option {
	return func(g *Gateway) {
		g.maxDuration = days
	}
}

// WithLogger sets the logger of the gateway.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger.With().Str("service", "gateway").Logger()
	}
}

// WithClock sets the function that returns the current time.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// Gateway serves the decryption requests on the committed state.
type Gateway struct {
	id          []byte
	decrypter   Decrypter
	authorizer  Authorizer
	store       store.Readable
	maxDuration uint32
	now         func() time.Time
	random      io.Reader
	logger      zerolog.Logger
}

// NewGateway returns a gateway identified by the id. It decrypts the handles
// of the store after checking the grants with the authorizer.
func NewGateway(id string, dec Decrypter, authz Authorizer, st store.Readable, opts ...Option) *Gateway {
	g := &Gateway{
		id:          []byte(id),
		decrypter:   dec,
		authorizer:  authz,
		store:       st,
		maxDuration: DefaultMaxDurationDays,
		now:         time.Now,
		random:      rand.Reader,
		logger:      veilroll.Logger.With().Str("service", "gateway").Logger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// GetID returns the identifier the requests must be signed for.
func (g *Gateway) GetID() []byte {
	return append([]byte{}, g.id...)
}

// UserDecrypt verifies the request and returns the plaintexts of the handles
// sealed to the one-time key of the request.
func (g *Gateway) UserDecrypt(ctx context.Context, req DecryptRequest) (DecryptResponse, error) {
	logger := g.logger.With().Str("request", xid.New().String()).Logger()

	err := g.authorize(req)
	if err != nil {
		promRequests.WithLabelValues("refused").Inc()
		logger.Warn().Err(err).Msg("request refused")

		return DecryptResponse{}, err
	}

	resp, err := g.decrypt(ctx, req)
	if err != nil {
		promRequests.WithLabelValues("failed").Inc()
		logger.Err(err).Msg("decryption failed")

		return DecryptResponse{}, xerrors.Errorf("failed to decrypt: %v", err)
	}

	promRequests.WithLabelValues("served").Inc()
	logger.Info().
		Str("user", stringOf(req.User)).
		Int("handles", len(req.Pairs)).
		Msg("request served")

	return resp, nil
}

func (g *Gateway) authorize(req DecryptRequest) error {
	if req.User == nil || req.PublicKey == nil || req.Signature == nil {
		return unauthorized("incomplete request")
	}

	if len(req.Pairs) == 0 || len(req.Pairs) > MaxPairs {
		return unauthorized("invalid number of handles %d", len(req.Pairs))
	}

	if len(req.Contracts) == 0 || len(req.Contracts) > MaxContracts {
		return unauthorized("invalid number of contracts %d", len(req.Contracts))
	}

	if req.DurationDays == 0 || req.DurationDays > g.maxDuration {
		return unauthorized("invalid duration of %d days", req.DurationDays)
	}

	start := time.Unix(req.StartTimestamp, 0)
	end := start.Add(time.Duration(req.DurationDays) * day)
	now := g.now()

	if now.Before(start) {
		return unauthorized("request starts in the future")
	}

	if !now.Before(end) {
		return unauthorized("request expired")
	}

	digest, err := req.Digest(g.id)
	if err != nil {
		return unauthorized("%v", err)
	}

	err = req.User.Verify(digest, req.Signature)
	if err != nil {
		return unauthorized("invalid signature: %v", err)
	}

	for _, pair := range req.Pairs {
		if pair.Contract == nil || !contains(req.Contracts, pair.Contract) {
			return unauthorized("contract of %v not in the request", pair.Handle)
		}

		if pair.Contract.Equal(req.User) {
			return unauthorized("user cannot be the contract of %v", pair.Handle)
		}

		for _, ident := range []access.Identity{req.User, pair.Contract} {
			ok, err := g.authorizer.IsAuthorized(g.store, pair.Handle[:], ident)
			if err != nil {
				return xerrors.Errorf("failed to check %v: %v", pair.Handle, err)
			}

			if !ok {
				return unauthorized("%v not granted to %v", pair.Handle, stringOf(ident))
			}
		}
	}

	return nil
}

func (g *Gateway) decrypt(ctx context.Context, req DecryptRequest) (DecryptResponse, error) {
	values := make([]SealedValue, len(req.Pairs))

	eg, ctx := errgroup.WithContext(ctx)

	for i := range req.Pairs {
		i := i
		h := req.Pairs[i].Handle

		eg.Go(func() error {
			err := ctx.Err()
			if err != nil {
				return err
			}

			value, err := g.decrypter.Decrypt(g.store, h)
			if err != nil {
				return xerrors.Errorf("failed to decrypt %v: %v", h, err)
			}

			data, err := sealValue(h, value, req.PublicKey, g.random)
			if err != nil {
				return err
			}

			values[i] = SealedValue{Handle: h, Data: data}

			return nil
		})
	}

	err := eg.Wait()
	if err != nil {
		return DecryptResponse{}, err
	}

	return DecryptResponse{Values: values}, nil
}

// authorization is the message signed by the user.
type authorization struct {
	Domain    string   `cbor:"1,keyasint"`
	Version   string   `cbor:"2,keyasint"`
	Gateway   []byte   `cbor:"3,keyasint"`
	PublicKey []byte   `cbor:"4,keyasint"`
	Contracts [][]byte `cbor:"5,keyasint"`
	Start     int64    `cbor:"6,keyasint"`
	Duration  uint32   `cbor:"7,keyasint"`
}

// Digest returns the message to sign to authorize the request on the gateway.
func (r DecryptRequest) Digest(gatewayID []byte) ([]byte, error) {
	if r.PublicKey == nil {
		return nil, xerrors.New("missing public key")
	}

	auth := authorization{
		Domain:    DomainName,
		Version:   DomainVersion,
		Gateway:   gatewayID,
		PublicKey: r.PublicKey[:],
		Contracts: make([][]byte, len(r.Contracts)),
		Start:     r.StartTimestamp,
		Duration:  r.DurationDays,
	}

	for i, contract := range r.Contracts {
		if contract == nil {
			return nil, xerrors.Errorf("missing contract %d", i)
		}

		data, err := contract.MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal contract: %v", err)
		}

		auth.Contracts[i] = data
	}

	data, err := encMode.Marshal(auth)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	return data, nil
}

// Sign signs the request for the gateway.
func (r *DecryptRequest) Sign(signer crypto.Signer, gatewayID []byte) error {
	digest, err := r.Digest(gatewayID)
	if err != nil {
		return xerrors.Errorf("failed to make digest: %v", err)
	}

	sig, err := signer.Sign(digest)
	if err != nil {
		return xerrors.Errorf("failed to sign: %v", err)
	}

	r.Signature = sig

	return nil
}

func unauthorized(format string, args ...interface{}) error {
	return xerrors.Errorf(format+": %w", append(args, ErrDecryptionUnauthorized)...)
}

func contains(list []crypto.PublicKey, pk crypto.PublicKey) bool {
	for _, other := range list {
		if other != nil && other.Equal(pk) {
			return true
		}
	}

	return false
}

func stringOf(ident access.Identity) string {
	text, err := ident.MarshalText()
	if err != nil {
		return "malformed"
	}

	return string(text)
}
