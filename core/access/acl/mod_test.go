package acl

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/access/darc"
	"go.dedis.ch/veilroll/crypto/ed25519"
	"go.dedis.ch/veilroll/serde/json"
	"go.dedis.ch/veilroll/testing/fake"
)

func TestManager_GrantAndCheck(t *testing.T) {
	snap := fake.NewSnapshot()
	mgr := NewManager(darc.NewService(json.NewContext()))

	alice := ed25519.NewSigner().GetPublicKey()
	bob := ed25519.NewSigner().GetPublicKey()
	eve := ed25519.NewSigner().GetPublicKey()

	handle := []byte{0xaa}

	err := mgr.Grant(snap, handle, alice, bob)
	require.NoError(t, err)

	// Granting twice the same identity is idempotent.
	err = mgr.Grant(snap, handle, alice)
	require.NoError(t, err)

	for _, ident := range []access.Identity{alice, bob} {
		ok, err := mgr.IsAuthorized(snap, handle, ident)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := mgr.IsAuthorized(snap, handle, eve)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = mgr.IsAuthorized(snap, []byte{0xbb}, alice)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_Grant_Fail(t *testing.T) {
	mgr := NewManager(darc.NewService(json.NewContext()))
	alice := ed25519.NewSigner().GetPublicKey()

	err := mgr.Grant(fake.NewBadSnapshot(), []byte{0xaa}, alice)
	require.Error(t, err)
	require.Regexp(t, "^failed to grant schnorr:[[:xdigit:]]+: store failed: ", err.Error())
}

func TestManager_IsAuthorized_Fail(t *testing.T) {
	mgr := NewManager(darc.NewService(json.NewContext()))

	_, err := mgr.IsAuthorized(fake.NewBadSnapshot(), []byte{0xaa}, fake.PublicKey{})
	require.EqualError(t, err,
		fake.Err("failed to read permission: store failed: while reading"))
}

func TestManager_Namespace(t *testing.T) {
	snap := fake.NewSnapshot()
	mgr := NewManager(darc.NewService(json.NewContext()))

	err := mgr.Grant(snap, []byte{0xaa}, ed25519.NewSigner().GetPublicKey())
	require.NoError(t, err)

	// The permission is not readable from the raw handle key.
	value, err := snap.Get([]byte{0xaa})
	require.NoError(t, err)
	require.Nil(t, value)

	require.Equal(t, 1, snap.Len())
}
