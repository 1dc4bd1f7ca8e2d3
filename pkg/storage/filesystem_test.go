package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save("certificado_c1_ab12.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.True(t, store.Exists(name))

	file, err := store.Open(name)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	require.NoError(t, store.Delete(name))
	require.False(t, store.Exists(name))

	// deleting a missing file is not an error
	require.NoError(t, store.Delete(name))
}

func TestLocalStorageContainsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	// traversal segments are stripped, keeping the path inside the base dir
	path, err := store.Path("../../etc/passwd")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(path, dir))

	_, err = store.Path("")
	require.ErrorIs(t, err, ErrOutsideBase)
}
