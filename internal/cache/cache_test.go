package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/sovits-service/internal/audio"
	"github.com/book-expert/sovits-service/internal/cache"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/core/coretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 86400 * time.Second

func TestKey_IsDeterministic(t *testing.T) {
	t.Parallel()

	first := cache.Key("Hello world.", "alice")

	assert.Len(t, first, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", first)
	assert.Equal(t, first, cache.Key("Hello world.", "alice"))
	assert.Equal(t, first, cache.Key("  Hello world.\n", "alice"))
	assert.NotEqual(t, first, cache.Key("Hello world.", "bob"))
	assert.NotEqual(t, first, cache.Key("Hello world!", "alice"))
	assert.Equal(t, cache.Key("cafe\u0301", "v"), cache.Key("caf\u00e9", "v"))
}

func TestKey_MatchesKnownDigest(t *testing.T) {
	t.Parallel()

	// sha256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		cache.Key("ab", "c"))
}

func TestStoreLookup_RoundTrip(t *testing.T) {
	t.Parallel()

	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)

	c := cache.New(store, coretest.NewLogger(t))
	samples := audio.Quantize16([]float32{0, 0.25, -0.5, 0.75, -1})
	key := cache.Key("text", "voice")

	_, hit := c.Lookup(context.Background(), key)
	assert.False(t, hit)

	require.NoError(t, c.Store(context.Background(), key, samples))

	got, hit := c.Lookup(context.Background(), key)
	require.True(t, hit)
	assert.Equal(t, samples, got)

	data, err := os.ReadFile(filepath.Join(store.Dir(), key+cache.EntryExtension))
	require.NoError(t, err)

	_, rate, err := audio.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, audio.OutputSampleRate, rate)
}

func TestLookup_CorruptEntryIsMiss(t *testing.T) {
	t.Parallel()

	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := cache.Key("text", "voice")
	require.NoError(t, store.Upload(context.Background(), key+cache.EntryExtension, []byte("not a wav")))

	c := cache.New(store, coretest.NewLogger(t))

	_, hit := c.Lookup(context.Background(), key)
	assert.False(t, hit)
}

func TestStore_FailureWrapsCacheError(t *testing.T) {
	t.Parallel()

	store := &coretest.BlobStore{UploadErr: coretest.ErrInjected}
	c := cache.New(store, coretest.NewLogger(t))

	err := c.Store(context.Background(), "k", []float32{0})
	require.ErrorIs(t, err, core.ErrCache)
	require.ErrorIs(t, err, coretest.ErrInjected)
}

func TestSweep_AgeBoundary(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &coretest.BlobStore{Now: func() time.Time { return now }}
	c := cache.New(store, coretest.NewLogger(t), cache.WithClock(func() time.Time { return now }))

	for _, key := range []string{"old", "young", "exact"} {
		require.NoError(t, store.Upload(context.Background(), key, []byte("x")))
	}

	store.SetModTime("old", now.Add(-day-time.Second))
	store.SetModTime("young", now.Add(-day+time.Second))
	store.SetModTime("exact", now.Add(-day))

	removed, err := c.Sweep(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Download(context.Background(), "old")
	require.ErrorIs(t, err, core.ErrObjectNotFound)

	for _, key := range []string{"young", "exact"} {
		_, err = store.Download(context.Background(), key)
		require.NoError(t, err, key)
	}
}

func TestSweep_FileStoreUsesModificationTime(t *testing.T) {
	t.Parallel()

	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)

	c := cache.New(store, coretest.NewLogger(t))
	stale := cache.Key("stale", "v")
	fresh := cache.Key("fresh", "v")

	require.NoError(t, c.Store(context.Background(), stale, []float32{0.1}))
	require.NoError(t, c.Store(context.Background(), fresh, []float32{0.2}))

	now := time.Now()
	staleTime := now.Add(-day - time.Second)
	freshTime := now.Add(-day + time.Minute)

	require.NoError(t, os.Chtimes(filepath.Join(store.Dir(), stale+cache.EntryExtension), staleTime, staleTime))
	require.NoError(t, os.Chtimes(filepath.Join(store.Dir(), fresh+cache.EntryExtension), freshTime, freshTime))

	removed, err := c.Sweep(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, hit := c.Lookup(context.Background(), stale)
	assert.False(t, hit)

	_, hit = c.Lookup(context.Background(), fresh)
	assert.True(t, hit)
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	t.Parallel()

	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "a/b", ".hidden"} {
		require.ErrorIs(t, store.Upload(context.Background(), key, []byte("x")), cache.ErrInvalidKey, key)
	}
}

func TestFileStore_ListAndDelete(t *testing.T) {
	t.Parallel()

	store, err := cache.NewFileStore(filepath.Join(t.TempDir(), "created"))
	require.NoError(t, err)

	require.NoError(t, store.Upload(context.Background(), "a.wav", []byte("12345")))
	require.NoError(t, store.Upload(context.Background(), "a.wav", []byte("123")))

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "a.wav", infos[0].Key)
	assert.Equal(t, int64(3), infos[0].Size)

	require.NoError(t, store.Delete(context.Background(), "a.wav"))
	require.ErrorIs(t, store.Delete(context.Background(), "a.wav"), core.ErrObjectNotFound)

	_, err = store.Download(context.Background(), "a.wav")
	require.ErrorIs(t, err, core.ErrObjectNotFound)
}

func TestSweeper_ScheduleValidation(t *testing.T) {
	t.Parallel()

	c := cache.New(&coretest.BlobStore{}, coretest.NewLogger(t))

	_, err := cache.NewSweeper(c, "not a cron", day, coretest.NewLogger(t))
	require.Error(t, err)

	sweeper, err := cache.NewSweeper(c, "0 */2 * * *", day, coretest.NewLogger(t))
	require.NoError(t, err)

	from := time.Date(2025, 3, 1, 12, 30, 0, 0, time.Local)
	next, err := sweeper.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 14, 0, 0, 0, time.Local), next)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	c := cache.New(&coretest.BlobStore{}, coretest.NewLogger(t))
	sweeper, err := cache.NewSweeper(c, "0 */2 * * *", day, coretest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- sweeper.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_RunOnce(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &coretest.BlobStore{Now: func() time.Time { return now.Add(-2 * day) }}
	require.NoError(t, store.Upload(context.Background(), "old.wav", []byte("x")))

	c := cache.New(store, coretest.NewLogger(t))
	sweeper, err := cache.NewSweeper(c, "0 */2 * * *", day, coretest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 1, sweeper.RunOnce(context.Background()))
	assert.Zero(t, store.Len())
}
