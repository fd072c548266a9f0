package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/sbackup/internal/logger"
	"github.com/kebairia/sbackup/internal/storage"
	"github.com/kebairia/sbackup/internal/storage/storagetest"
)

func TestTransfer_DownloadCreatesParents(t *testing.T) {
	m := storagetest.NewMemory()
	m.Put("media", "a/b/c.txt", []byte("hello"))
	tr := storage.NewTransfer(m, logger.Nop())

	dest := filepath.Join(t.TempDir(), "media", "a", "b", "c.txt")
	require.NoError(t, tr.Download(context.Background(), "media", "a/b/c.txt", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestTransfer_DownloadFailureLeavesNoFile(t *testing.T) {
	m := storagetest.NewMemory()
	m.Put("media", "x.txt", []byte("x"))
	m.DownloadErrors["media/x.txt"] = errors.New("network down")
	tr := storage.NewTransfer(m, logger.Nop())

	dest := filepath.Join(t.TempDir(), "x.txt")
	err := tr.Download(context.Background(), "media", "x.txt", dest)
	require.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestTransfer_DownloadMissingObject(t *testing.T) {
	m := storagetest.NewMemory()
	m.AddBucket("media", false)
	tr := storage.NewTransfer(m, logger.Nop())

	err := tr.Download(context.Background(), "media", "nope.txt", filepath.Join(t.TempDir(), "nope.txt"))
	require.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestTransfer_UploadIsIdempotent(t *testing.T) {
	m := storagetest.NewMemory()
	m.AddBucket("media", false)
	tr := storage.NewTransfer(m, logger.Nop())

	src := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o644))
	require.NoError(t, tr.Upload(context.Background(), "media", "dir/pic.png", src))

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o644))
	require.NoError(t, tr.Upload(context.Background(), "media", "dir/pic.png", src))

	assert.Equal(t, map[string][]byte{"dir/pic.png": []byte("v2")}, m.Objects("media"))
	assert.Equal(t, 2, m.Uploads)
}

func TestTransfer_UploadMissingLocalFile(t *testing.T) {
	m := storagetest.NewMemory()
	m.AddBucket("media", false)
	tr := storage.NewTransfer(m, logger.Nop())

	err := tr.Upload(context.Background(), "media", "x.txt", filepath.Join(t.TempDir(), "x.txt"))
	require.Error(t, err)
	assert.Zero(t, m.Uploads)
}
