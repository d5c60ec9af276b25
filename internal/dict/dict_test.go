package dict

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dictdb/internal/storage"
)

func TestDB_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generic.db")

	db, err := Open(path, "generic_storage")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Save("k", "v"))

	v, err := db.Load("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestDB_LoadMissingReturnsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generic.db")

	db, err := Open(path, "generic_storage")
	require.NoError(t, err)
	defer db.Close()

	v, err := db.Load("absent")
	require.NoError(t, err, "a miss is not an error for Load")
	assert.Nil(t, v)
}

func TestDB_SaveOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generic.db")

	db, err := Open(path, "generic_storage")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Save("k", "first"))
	require.NoError(t, db.Save("k", "second"))

	v, err := db.Load("k")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

// failingStorage returns a non-miss failure from every call.
type failingStorage struct{}

func (failingStorage) Get(string) (any, error) { return nil, errors.New("boom") }
func (failingStorage) Set(string, any) error   { return errors.New("boom") }
func (failingStorage) Close() error            { return nil }

func TestDB_LoadPropagatesRealFailures(t *testing.T) {
	db := New(failingStorage{})
	_, err := db.Load("k")
	assert.Error(t, err, "only misses are swallowed, not storage failures")
}

func TestDB_OpenReadOnlyStoreViaNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generic.db")

	db, err := Open(path, "generic_storage")
	require.NoError(t, err)
	require.NoError(t, db.Save("k", "v"))
	require.NoError(t, db.Close())

	st, err := storage.Open(storage.Options{
		Path:      path,
		Namespace: "generic_storage",
		ReadOnly:  true,
	})
	require.NoError(t, err)

	ro := New(st)
	defer ro.Close()

	v, err := ro.Load("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.True(t, storage.IsReadOnly(ro.Save("k", "v2")))
}
