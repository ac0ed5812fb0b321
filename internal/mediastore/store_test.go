package mediastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downloads-bridge/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *MemoryCatalog, string) {
	t.Helper()
	volume := filepath.Join(t.TempDir(), "Download")
	catalog := NewMemoryCatalog()
	store, err := NewStore(catalog, volume, nil)
	require.NoError(t, err)
	return store, catalog, volume
}

func saveEntry(t *testing.T, s *Store, name string, data []byte) string {
	t.Helper()
	ctx := context.Background()

	uri, err := s.Insert(ctx, storage.Values{DisplayName: name, MimeType: "application/pdf"})
	require.NoError(t, err)

	w, err := s.OpenOutput(ctx, uri)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, s.Publish(ctx, uri))
	return uri
}

func TestURI_RoundTrip(t *testing.T) {
	uri := URI(42)
	assert.Equal(t, "content://media/external/downloads/42", uri)

	id, err := ParseURI(uri)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "/tmp/x", DownloadsURI + "/", DownloadsURI + "/abc", DownloadsURI + "/-1"} {
		_, err := ParseURI(bad)
		assert.ErrorIs(t, err, ErrInvalidURI, bad)
	}
}

func TestStore_InsertIsPending(t *testing.T) {
	s, catalog, _ := newTestStore(t)
	ctx := context.Background()

	uri, err := s.Insert(ctx, storage.Values{DisplayName: "a.pdf", MimeType: "application/pdf"})
	require.NoError(t, err)

	id, err := ParseURI(uri)
	require.NoError(t, err)
	entry, err := catalog.Get(ctx, id)
	require.NoError(t, err)

	assert.True(t, entry.Pending)
	assert.Equal(t, "a.pdf", entry.DisplayName)
	assert.Equal(t, "application/pdf", entry.MimeType)
	assert.FileExists(t, entry.DataPath)

	visible, err := s.Query(ctx)
	require.NoError(t, err)
	assert.Empty(t, visible)

	_, err = s.OpenInput(ctx, uri)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestStore_PublishRoundTrip(t *testing.T) {
	s, _, volume := newTestStore(t)
	ctx := context.Background()
	data := []byte("%PDF-1.4 hello")

	uri := saveEntry(t, s, "hello.pdf", data)

	rc, err := s.OpenInput(ctx, uri)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.FileExists(t, filepath.Join(volume, "hello.pdf"))

	visible, err := s.Query(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), visible[0].Checksum)
	assert.Equal(t, int64(len(data)), visible[0].Size)
	assert.False(t, visible[0].Pending)
	assert.False(t, visible[0].PublishedAt.IsZero())
}

func TestStore_PublishEmpty(t *testing.T) {
	s, _, volume := newTestStore(t)

	saveEntry(t, s, "empty.pdf", []byte{})

	info, err := os.Stat(filepath.Join(volume, "empty.pdf"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestStore_PublishPicksUniqueName(t *testing.T) {
	s, _, volume := newTestStore(t)
	ctx := context.Background()

	first := saveEntry(t, s, "report.pdf", []byte("one"))
	second := saveEntry(t, s, "report.pdf", []byte("two"))
	third := saveEntry(t, s, "report.pdf", []byte("three"))
	assert.NotEqual(t, first, second)

	for name, want := range map[string]string{
		"report.pdf":     "one",
		"report (1).pdf": "two",
		"report (2).pdf": "three",
	} {
		got, err := os.ReadFile(filepath.Join(volume, name))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	rc, err := s.OpenInput(ctx, third)
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "three", string(got))
}

func TestStore_PublishTwiceIsNoop(t *testing.T) {
	s, _, _ := newTestStore(t)
	uri := saveEntry(t, s, "x.pdf", []byte("x"))

	assert.NoError(t, s.Publish(context.Background(), uri))
}

func TestStore_OpenOutputAfterPublish(t *testing.T) {
	s, _, _ := newTestStore(t)
	uri := saveEntry(t, s, "x.pdf", []byte("x"))

	_, err := s.OpenOutput(context.Background(), uri)
	assert.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	s, catalog, _ := newTestStore(t)
	ctx := context.Background()

	uri, err := s.Insert(ctx, storage.Values{DisplayName: "gone.pdf", MimeType: "application/pdf"})
	require.NoError(t, err)
	id, _ := ParseURI(uri)
	entry, err := catalog.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, uri))
	assert.NoFileExists(t, entry.DataPath)

	_, err = catalog.Get(ctx, id)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	// deleting again is fine
	assert.NoError(t, s.Delete(ctx, uri))
}

func TestStore_UnknownURI(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.OpenOutput(ctx, URI(99))
	assert.ErrorIs(t, err, ErrEntryNotFound)

	err = s.Publish(ctx, "file:///tmp/x")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

func TestStore_StalePending(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	old, err := s.Insert(ctx, storage.Values{DisplayName: "old.pdf"})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	_, err = s.Insert(ctx, storage.Values{DisplayName: "new.pdf"})
	require.NoError(t, err)
	saveEntry(t, s, "done.pdf", []byte("done"))

	stale, err := s.StalePending(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old, URI(stale[0].ID))
}

func TestStore_PublishWaitsForLock(t *testing.T) {
	s, catalog, _ := newTestStore(t)
	ctx := context.Background()

	uri, err := s.Insert(ctx, storage.Values{DisplayName: "locked.pdf"})
	require.NoError(t, err)

	acquired, err := catalog.AcquireLock(ctx, "media:downloads:locked.pdf", "other", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	err = s.Publish(cctx, uri)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, catalog.ReleaseLock(ctx, "media:downloads:locked.pdf", "other"))
	assert.NoError(t, s.Publish(ctx, uri))
}

func TestStore_ConcurrentPublishNeverSharesAFile(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	saveEntry(t, s, "a.pdf", []byte("seed"))

	// "a.pdf" resolves to "a (n).pdf" while "a (1).pdf" is requested
	// literally; both publishers race for the same visible name.
	for round := 0; round < 50; round++ {
		names := []string{"a.pdf", "a (1).pdf"}
		uris := make([]string, len(names))

		errs := make([]error, len(names))

		var wg sync.WaitGroup
		for i, name := range names {
			i, name := i, name
			wg.Add(1)
			go func() {
				defer wg.Done()
				uris[i], errs[i] = publish(ctx, s, name, []byte("from "+name))
			}()
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		for i, name := range names {
			rc, err := s.OpenInput(ctx, uris[i])
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			require.Equal(t, "from "+name, string(got), "round %d: %s", round, uris[i])
		}
	}

	entries, err := s.Query(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 101)
	paths := make(map[string]int64, len(entries))
	for _, entry := range entries {
		other, dup := paths[entry.DataPath]
		require.False(t, dup, "entries %d and %d share %s", other, entry.ID, entry.DataPath)
		paths[entry.DataPath] = entry.ID
	}
}

func TestStore_PublishRemovesPendingFile(t *testing.T) {
	s, catalog, volume := newTestStore(t)
	ctx := context.Background()

	uri := saveEntry(t, s, "moved.pdf", []byte("x"))
	id, _ := ParseURI(uri)
	entry, err := catalog.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(volume, "moved.pdf"), entry.DataPath)
	assert.NoFileExists(t, filepath.Join(volume, pendingDir, strconv.FormatInt(id, 10)))
}

func TestMemoryCatalog_ReleaseKeepsForeignLock(t *testing.T) {
	catalog := NewMemoryCatalog()
	ctx := context.Background()

	acquired, err := catalog.AcquireLock(ctx, "k", "first", time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	time.Sleep(5 * time.Millisecond)
	acquired, err = catalog.AcquireLock(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired, "expired lock can be taken over")

	require.NoError(t, catalog.ReleaseLock(ctx, "k", "first"))
	acquired, err = catalog.AcquireLock(ctx, "k", "third", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "a stale holder must not release the new lock")

	require.NoError(t, catalog.ReleaseLock(ctx, "k", "second"))
	acquired, err = catalog.AcquireLock(ctx, "k", "third", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func publish(ctx context.Context, s *Store, name string, data []byte) (string, error) {
	uri, err := s.Insert(ctx, storage.Values{DisplayName: name, MimeType: "application/pdf"})
	if err != nil {
		return "", err
	}
	w, err := s.OpenOutput(ctx, uri)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return uri, s.Publish(ctx, uri)
}
