package kv

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestBoltDB_UpdateAndView(t *testing.T) {
	db := makeDB(t)

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		return b.Set([]byte("ping"), []byte("pong"))
	})
	require.NoError(t, err)

	err = db.View([]byte("bucket"), func(b Bucket) error {
		value := b.Get([]byte("ping"))
		require.Equal(t, []byte("pong"), value)

		return nil
	})
	require.NoError(t, err)

	err = db.View([]byte{0xaa}, nil)
	require.EqualError(t, err, "bucket 'aa' not found")

	err = db.Update(nil, nil)
	require.EqualError(t, err, "failed to create bucket: bucket name required")
}

func TestBoltDB_Update_Rollback(t *testing.T) {
	db := makeDB(t)

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		require.NoError(t, b.Set([]byte("ping"), []byte("pong")))

		return xerrors.New("oops")
	})
	require.EqualError(t, err, "oops")

	err = db.View([]byte("bucket"), nil)
	require.EqualError(t, err, "bucket '6275636b6574' not found")
}

func TestBoltDB_New(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "test.db"))
	require.Error(t, err)
	require.Regexp(t, "^failed to open db: ", err.Error())

	path := filepath.Join(t.TempDir(), "test.db")

	db, err := New(path, WithNoSync())
	require.NoError(t, err)

	defer db.Close()

	// The file stays locked until the database is closed.
	_, err = New(path, WithTimeout(10*time.Millisecond))
	require.EqualError(t, err, "failed to open db: timeout")
}

func TestBoltBucket_Get_Set_Delete(t *testing.T) {
	db := makeDB(t)

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		require.NoError(t, b.Set([]byte("ping"), []byte("pong")))

		value := b.Get([]byte("ping"))
		require.Equal(t, []byte("pong"), value)

		value = b.Get([]byte("pong"))
		require.Nil(t, value)

		require.NoError(t, b.Delete([]byte("ping")))

		value = b.Get([]byte("ping"))
		require.Nil(t, value)

		return nil
	})

	require.NoError(t, err)
}

func TestBucketStore(t *testing.T) {
	db := makeDB(t)

	var value []byte

	err := db.Update([]byte("bucket"), func(b Bucket) error {
		snap := NewSnapshot(b)

		require.NoError(t, snap.Set([]byte("A"), []byte("a")))
		require.NoError(t, snap.Set([]byte("B"), []byte("b")))
		require.NoError(t, snap.Delete([]byte("B")))

		missing, err := snap.Get([]byte("B"))
		require.NoError(t, err)
		require.Nil(t, missing)

		value, err = snap.Get([]byte("A"))

		return err
	})
	require.NoError(t, err)
	require.Equal(t, []byte("a"), value)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDB(t *testing.T) DB {
	db, err := New(filepath.Join(t.TempDir(), "test.db"), WithNoSync())
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}
