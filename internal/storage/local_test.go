package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := store.Put(ctx, "attachments/1_a.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	exists, err := store.Exists(ctx, "attachments/1_a.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := store.Get(ctx, "attachments/1_a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = store.Put(ctx, "attachments/1_a.txt", strings.NewReader("again"))
	assert.ErrorIs(t, err, ErrBlobExists)

	require.NoError(t, store.Delete(ctx, "attachments/1_a.txt"))
	_, err = store.Get(ctx, "attachments/1_a.txt")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	require.NoError(t, store.Delete(ctx, "attachments/1_a.txt"), "deleting a missing blob is not an error")
}

func TestLocalStoreFailedPutLeavesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "attachments/2_b.txt", failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "attachments"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be removed")
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.txt", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = store.Get(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}

func TestLocalStoreCopiesWhenHardLinksAreUnsupported(t *testing.T) {
	for name, linkErr := range map[string]error{
		"EPERM":       syscall.EPERM,
		"unsupported": errors.ErrUnsupported,
	} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			store, err := NewLocalStore(root)
			require.NoError(t, err)
			store.link = func(oldname, newname string) error {
				return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: linkErr}
			}
			ctx := context.Background()

			n, err := store.Put(ctx, "attachments/1_scan.pdf", strings.NewReader("%PDF scan"))
			require.NoError(t, err)
			assert.Equal(t, int64(9), n)

			data, err := store.Get(ctx, "attachments/1_scan.pdf")
			require.NoError(t, err)
			assert.Equal(t, "%PDF scan", string(data))

			_, err = store.Put(ctx, "attachments/1_scan.pdf", strings.NewReader("other"))
			assert.ErrorIs(t, err, ErrBlobExists)

			entries, err := os.ReadDir(filepath.Join(root, "attachments"))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp files are cleaned up")
		})
	}
}

func TestLocalStoreSurfacesOtherLinkErrors(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store.link = func(oldname, newname string) error {
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: syscall.EIO}
	}

	_, err = store.Put(context.Background(), "attachments/1_a.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlobExists)
}
