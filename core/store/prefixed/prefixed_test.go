package prefixed

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/veilroll/testing/fake"
)

func TestSnapshot_Isolation(t *testing.T) {
	parent := fake.NewSnapshot()

	a := NewSnapshot("A", parent)
	b := NewSnapshot("B", parent)

	require.NoError(t, a.Set([]byte("key"), []byte("from A")))
	require.NoError(t, b.Set([]byte("key"), []byte("from B")))

	value, err := a.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, "from A", string(value))

	value, err = NewReadable("B", parent).Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, "from B", string(value))

	require.Equal(t, 2, parent.Len())

	require.NoError(t, a.Delete([]byte("key")))
	value, err = a.Get([]byte("key"))
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestNewPrefixedKey(t *testing.T) {
	key := NewPrefixedKey([]byte("A"), []byte("key"))
	require.Len(t, key, 32)

	require.Equal(t, key, NewPrefixedKey([]byte("A"), []byte("key")))

	// The length prefixes prevent ambiguous concatenations.
	require.NotEqual(t, NewPrefixedKey([]byte("AB"), []byte("C")),
		NewPrefixedKey([]byte("A"), []byte("BC")))
}
