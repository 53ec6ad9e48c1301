// Package local_test tests the local filesystem object store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/law-notes-crawler/internal/storage"
	"github.com/JakeFAU/law-notes-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
	t.Run("BaseDirCreatedLazily", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "laws")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)

		keys, err := store.List(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, keys)

		require.NoError(t, store.Put(context.Background(), "a_1.md", storage.ContentTypeMarkdown, []byte("a")))
		_, err = os.Stat(filepath.Join(dir, "a_1.md"))
		require.NoError(t, err)
	})
}

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "data/law_dictionary.json", storage.ContentTypeJSON, []byte(`{}`)))
	got, err := store.Get(ctx, "data/law_dictionary.json")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))

	info, err := os.Stat(filepath.Join(dir, "data", "law_dictionary.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Put(ctx, "data/law_dictionary.json", storage.ContentTypeJSON, []byte(`{"a":1}`)))
	got, err = store.Get(ctx, "data/law_dictionary.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope.md")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, store.Delete(context.Background(), "nope.md"))
}

func TestBlobStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	err = store.Put(context.Background(), "../escape.md", "", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path traversal")
	_, err = store.Get(context.Background(), "")
	require.Error(t, err)
}

func TestBlobStoreListSorted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	for _, key := range []string{"b_2.md", "a_1.md", "sub/c_3.md"} {
		require.NoError(t, store.Put(ctx, key, "", []byte(key)))
	}

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_1.md", "b_2.md", "sub/c_3.md"}, keys)

	keys, err = store.List(ctx, "sub/")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/c_3.md"}, keys)

	require.NoError(t, store.Delete(ctx, "a_1.md"))
	keys, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b_2.md", "sub/c_3.md"}, keys)
}
