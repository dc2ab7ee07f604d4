// Package local_test tests the local filesystem store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/course-archiver/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "Archive")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
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

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- restore permissions so the temp dir can be removed.
			_ = os.Chmod(tempDir, 0o700)
		})
		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestWriteFile(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("PathUnderBaseDir", func(t *testing.T) {
		path := filepath.Join(tempDir, "1 - Intro.pdf")
		require.NoError(t, store.WriteFile(ctx, path, []byte("first")))
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "first", string(got))
	})

	t.Run("Overwrites", func(t *testing.T) {
		path := filepath.Join(tempDir, "2 - Again.png")
		require.NoError(t, store.WriteFile(ctx, path, []byte("old")))
		require.NoError(t, store.WriteFile(ctx, path, []byte("new")))
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))

		entries, err := os.ReadDir(tempDir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.NotContains(t, e.Name(), ".artifact-", "temp file left behind")
		}
	})

	t.Run("RelativeToBaseDir", func(t *testing.T) {
		require.NoError(t, store.WriteFile(ctx, filepath.Join("a", "b", "page.pdf"), []byte("nested")))
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, "a", "b", "page.pdf"))
		require.NoError(t, err)
		assert.Equal(t, "nested", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		assert.Error(t, store.WriteFile(ctx, "", []byte("data")))
	})

	t.Run("Traversal", func(t *testing.T) {
		assert.Error(t, store.WriteFile(ctx, filepath.Join("..", "escape.pdf"), []byte("x")))
		assert.Error(t, store.WriteFile(ctx, filepath.Join(os.TempDir(), "elsewhere", "x.pdf"), []byte("x")))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, store.WriteFile(cctx, filepath.Join(tempDir, "x.pdf"), []byte("x")))
	})
}

func TestEnsureDir(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	require.NoError(t, store.EnsureDir(context.Background(), tempDir))
	sub := filepath.Join(tempDir, "week-1")
	require.NoError(t, store.EnsureDir(context.Background(), sub))
	require.NoError(t, store.EnsureDir(context.Background(), sub))
	info, err := os.Stat(sub)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.Error(t, store.EnsureDir(context.Background(), filepath.Join(tempDir, "..", "outside")))
}
