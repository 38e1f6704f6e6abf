package types

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/serde"
	"go.dedis.ch/veilroll/testing/fake"
)

const (
	goodFormat = serde.Format("GOOD")
	badFormat  = serde.Format("BAD")
	msgFormat  = serde.Format("MSG")
)

func init() {
	RegisterPermissionFormat(goodFormat, fake.Format{Msg: &DisjunctivePermission{}, Data: []byte("perm")})
	RegisterPermissionFormat(badFormat, fake.NewBadFormat())
	RegisterPermissionFormat(msgFormat, fake.Format{Msg: fake.Message{}})
}

func TestPermission_WithRule(t *testing.T) {
	perm := NewPermission(WithRule("A", newIdentity("AA"), newIdentity("BB")))

	require.Len(t, perm.rules, 1)
	require.Len(t, perm.rules["A"].matches, 1)
	require.Len(t, perm.rules["A"].matches[0], 2)
}

func TestPermission_WithExpression(t *testing.T) {
	perm := NewPermission(WithExpression("test", NewExpression()))
	require.Len(t, perm.rules, 1)
}

func TestPermission_GetRules(t *testing.T) {
	perm := NewPermission(WithRule("A", newIdentity("a")), WithRule("B", newIdentity("b")))

	require.Len(t, perm.GetRules(), 2)
}

func TestPermission_Allow(t *testing.T) {
	perm := NewPermission()

	idents := []access.Identity{
		fakeIdentity{buffer: []byte{0xaa}},
		fakeIdentity{buffer: []byte{0xbb}},
	}

	perm.Allow("fake", idents...)
	require.Len(t, perm.rules, 1)

	perm.Allow("another", idents...)
	require.Len(t, perm.rules, 2)

	perm.Allow("empty")
	require.Len(t, perm.rules, 2)
}

func TestPermission_Match(t *testing.T) {
	idents := []access.Identity{
		fakeIdentity{buffer: []byte{0xaa}},
		fakeIdentity{buffer: []byte{0xbb}},
	}

	perm := NewPermission()
	perm.Allow("fake", idents...)

	err := perm.Match("fake", idents...)
	require.NoError(t, err)

	err = perm.Match("fake")
	require.EqualError(t, err, "expect at least one identity")

	err = perm.Match("unknown", idents...)
	require.EqualError(t, err, "rule 'unknown' not found")

	err = perm.Match("fake", newIdentity("C"))
	require.EqualError(t, err, "rule 'fake': unauthorized: ['C']")
}

func TestPermission_Serialize(t *testing.T) {
	perm := NewPermission()

	data, err := perm.Serialize(serde.NewContext(fake.ContextEngine{Format: goodFormat}))
	require.NoError(t, err)
	require.Equal(t, "perm", string(data))

	_, err = perm.Serialize(serde.NewContext(fake.ContextEngine{Format: badFormat}))
	require.EqualError(t, err, fake.Err("couldn't encode access"))
}

func TestPermissionFactory_Deserialize(t *testing.T) {
	factory := NewFactory()

	msg, err := factory.Deserialize(serde.NewContext(fake.ContextEngine{Format: goodFormat}), nil)
	require.NoError(t, err)
	require.IsType(t, &DisjunctivePermission{}, msg)

	_, err = factory.Deserialize(serde.NewContext(fake.ContextEngine{Format: badFormat}), nil)
	require.EqualError(t, err, fake.Err("BAD format"))

	_, err = factory.Deserialize(serde.NewContext(fake.ContextEngine{Format: msgFormat}), nil)
	require.EqualError(t, err, "invalid access 'fake.Message'")
}
