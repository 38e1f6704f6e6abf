package types

import (
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/crypto"
	"go.dedis.ch/veilroll/crypto/ed25519"
	"go.dedis.ch/veilroll/serde"
	"go.dedis.ch/veilroll/serde/registry"
	"golang.org/x/xerrors"
)

var permFormats = registry.NewSimpleRegistry()

// RegisterPermissionFormat registers the engine for the provided format.
func RegisterPermissionFormat(c serde.Format, f serde.FormatEngine) {
	permFormats.Register(c, f)
}

// DisjunctivePermission is a permission implementation that is using the
// Disjunctive Normal Form to represent the groups of identities allowed for a
// given rule.
//
// - implements types.Permission
type DisjunctivePermission struct {
	rules map[string]*Expression
}

// PermissionOption is the option type to create an access control.
type PermissionOption func(*DisjunctivePermission)

// WithRule is an option to grant a given group access to a rule.
func WithRule(rule string, group ...access.Identity) PermissionOption {
	return func(perm *DisjunctivePermission) {
		perm.Allow(rule, group...)
	}
}

// WithExpression is an option to set a rule from its expression.
func WithExpression(rule string, expr *Expression) PermissionOption {
	return func(perm *DisjunctivePermission) {
		perm.rules[rule] = expr
	}
}

// NewPermission returns a new empty instance of an access control.
func NewPermission(opts ...PermissionOption) *DisjunctivePermission {
	a := &DisjunctivePermission{
		rules: make(map[string]*Expression),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// GetRules returns a map of the expressions.
func (perm *DisjunctivePermission) GetRules() map[string]*Expression {
	rules := make(map[string]*Expression)

	for rule, expr := range perm.rules {
		rules[rule] = expr
	}

	return rules
}

// Allow implements types.Permission. It grants the access to the rule to the
// group of identities.
func (perm *DisjunctivePermission) Allow(rule string, group ...access.Identity) {
	expr, ok := perm.rules[rule]
	if !ok {
		expr = NewExpression()
	}

	expr.Allow(group)

	if len(expr.matches) > 0 {
		perm.rules[rule] = expr
	}
}

// Match implements types.Permission. It returns nil if the rule exists and the
// group of identities is associated with it.
func (perm *DisjunctivePermission) Match(rule string, group ...access.Identity) error {
	if len(group) == 0 {
		return xerrors.New("expect at least one identity")
	}

	expr, ok := perm.rules[rule]
	if !ok {
		return xerrors.Errorf("rule '%s' not found", rule)
	}

	err := expr.Match(group)
	if err != nil {
		return xerrors.Errorf("rule '%s': %v", rule, err)
	}

	return nil
}

// Serialize implements serde.Message. It looks up the format and returns the
// serialized data of the permission.
func (perm *DisjunctivePermission) Serialize(ctx serde.Context) ([]byte, error) {
	format := permFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, perm)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode access: %v", err)
	}

	return data, nil
}

// PublicKeyFac is the key of the public key factory.
type PublicKeyFac struct{}

// permFac is the implementation of a permission factory.
//
// - implements types.PermissionFactory
type permFac struct {
	fac crypto.PublicKeyFactory
}

// NewFactory returns a new instance of the factory. The identities are
// decoded as Ed25519 public keys.
func NewFactory() PermissionFactory {
	return NewFactoryWithKeys(ed25519.NewPublicKeyFactory())
}

// NewFactoryWithKeys returns a new instance of the factory that decodes the
// identities with the given public key factory.
func NewFactoryWithKeys(fac crypto.PublicKeyFactory) PermissionFactory {
	return permFac{
		fac: fac,
	}
}

// Deserialize implements serde.Factory.
func (f permFac) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.PermissionOf(ctx, data)
}

// PermissionOf implements types.PermissionFactory.
func (f permFac) PermissionOf(ctx serde.Context, data []byte) (Permission, error) {
	format := permFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, PublicKeyFac{}, f.fac)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("%v format: %v", ctx.GetFormat(), err)
	}

	perm, ok := msg.(Permission)
	if !ok {
		return nil, xerrors.Errorf("invalid access '%T'", msg)
	}

	return perm, nil
}
