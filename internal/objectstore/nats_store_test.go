// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/book-expert/sovits-service/internal/cache"
	"github.com/book-expert/sovits-service/internal/core"
	"github.com/book-expert/sovits-service/internal/core/coretest"
	"github.com/book-expert/sovits-service/internal/objectstore"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return jetstreamContext
}

func newStore(t *testing.T, bucket string) (*objectstore.NatsObjectStore, nats.JetStreamContext) {
	t.Helper()

	jetstreamContext := newJetStream(t)

	store, err := objectstore.New(jetstreamContext, bucket, objectstore.WithMemoryStorage())
	require.NoError(t, err)

	return store, jetstreamContext
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "test-bucket")

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, "page-1.txt", []byte("第一页。")))
	require.NoError(t, store.Upload(ctx, "page-1.txt", []byte("Page one.")))

	data, err := store.Download(ctx, "page-1.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("Page one."), data)
	assert.Equal(t, "test-bucket", store.Bucket())
}

func TestNatsObjectStore_ConfigOptions(t *testing.T) {
	t.Parallel()

	jetstreamContext := newJetStream(t)

	_, err := objectstore.New(jetstreamContext, "expiring", objectstore.WithTTL(time.Hour), objectstore.WithMemoryStorage())
	require.NoError(t, err)

	bucket, err := jetstreamContext.ObjectStore("expiring")
	require.NoError(t, err)

	info, err := bucket.Status()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, info.TTL())
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	store, jetstreamContext := newStore(t, "shared")
	require.NoError(t, store.Upload(context.Background(), "k", []byte("v")))

	again, err := objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)

	data, err := again.Download(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
}

func TestNatsObjectStore_MissingObject(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "missing")

	_, err := store.Download(context.Background(), "nope")
	require.ErrorIs(t, err, core.ErrObjectNotFound)

	require.ErrorIs(t, store.Delete(context.Background(), "nope"), core.ErrObjectNotFound)
}

func TestNatsObjectStore_ListAndDelete(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "listing")
	ctx := context.Background()

	infos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	before := time.Now().Add(-time.Minute)

	require.NoError(t, store.Upload(ctx, "a.wav", []byte("aaaa")))
	require.NoError(t, store.Upload(ctx, "b.wav", []byte("bb")))

	infos, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	sizes := map[string]int64{}
	for _, info := range infos {
		sizes[info.Key] = info.Size
		assert.True(t, info.ModTime.After(before))
	}

	assert.Equal(t, map[string]int64{"a.wav": 4, "b.wav": 2}, sizes)

	require.NoError(t, store.Delete(ctx, "a.wav"))

	infos, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "b.wav", infos[0].Key)
}

func TestNatsObjectStore_BacksResultCache(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "SOVITS_CACHE")
	resultCache := cache.New(store, coretest.NewLogger(t))
	key := cache.Key("Hello.", "alice")

	require.NoError(t, resultCache.Store(context.Background(), key, []float32{0, 0.5, -0.5}))

	samples, hit := resultCache.Lookup(context.Background(), key)
	require.True(t, hit)
	assert.Len(t, samples, 3)

	removed, err := resultCache.Sweep(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = resultCache.Sweep(context.Background(), -time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, hit = resultCache.Lookup(context.Background(), key)
	assert.False(t, hit)
}
