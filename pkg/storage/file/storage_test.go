// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-docvault/pkg/storage"
)

func TestNew_EmptyRoot(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "vault")
	_, err := New(root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStorage_PutGet(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	key := storage.RecordPath("documents", "doc-1")
	require.NoError(t, fs.Put(key, []byte("ciphertext"), nil))

	got, err := fs.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), got)

	info, err := os.Stat(filepath.Join(fs.rootDir, "records", "documents", "doc-1"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStorage_OverwriteLeavesNoTempFile(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put("wrappedDEK_v1", []byte("one"), nil))
	require.NoError(t, fs.Put("wrappedDEK_v1", []byte("two"), nil))

	got, err := fs.Get("wrappedDEK_v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	_, err = os.Stat(filepath.Join(fs.rootDir, "wrappedDEK_v1"+tempSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStorage_GetNotFound(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileStorage_InvalidKey(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, fs.Put("../escape", []byte("x"), nil), storage.ErrInvalidKey)
	_, err = fs.Get("../escape")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
}

func TestFileStorage_DeleteAndExists(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put("k", []byte("v"), nil))
	ok, err := fs.Exists("k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.Delete("k"))
	ok, err = fs.Exists("k")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, fs.Delete("k"), storage.ErrNotFound)
}

func TestFileStorage_List(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put(storage.RecordPath("documents", "b"), []byte("v"), nil))
	require.NoError(t, fs.Put(storage.RecordPath("documents", "a"), []byte("v"), nil))
	require.NoError(t, fs.Put(storage.AuditPath(1), []byte("v"), nil))

	keys, err := fs.List(storage.RecordPrefix("documents"))
	require.NoError(t, err)
	assert.Equal(t, []string{"records/documents/a", "records/documents/b"}, keys)

	ids, err := storage.ListRecordIDs(fs, "documents")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestFileStorage_PutAllFallback(t *testing.T) {
	fs, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, storage.PutAll(fs, map[string][]byte{
		storage.WrappedDEKKey(1): []byte("w"),
		storage.KEKSaltKey(1):    []byte("s"),
	}, nil))

	keys, err := fs.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{"kekSalt_v1", "wrappedDEK_v1"}, keys)
}
