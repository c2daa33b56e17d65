// Package objectstore keeps blobs in a NATS JetStream object store bucket. It backs
// the worker's text and audio objects and, optionally, the result cache.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/sovits-service/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Option adjusts the bucket configuration used when the bucket is created.
type Option func(cfg *nats.ObjectStoreConfig)

// WithTTL expires objects after ttl. Zero keeps objects until deleted.
func WithTTL(ttl time.Duration) Option {
	return func(cfg *nats.ObjectStoreConfig) {
		cfg.TTL = ttl
	}
}

// WithMemoryStorage keeps the bucket in server memory instead of on disk.
func WithMemoryStorage() Option {
	return func(cfg *nats.ObjectStoreConfig) {
		cfg.Storage = nats.MemoryStorage
	}
}

// NatsObjectStore implements core.BlobStore on one bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists. Options apply only
// when the bucket is created.
func New(jetstreamContext nats.JetStreamContext, bucketName string, opts ...Option) (*NatsObjectStore, error) {
	cfg := nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: "sovits-service blobs: " + bucketName,
		Storage:     nats.FileStorage,
		Replicas:    1,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := jetstreamContext.CreateObjectStore(&cfg)

	switch {
	case err == nil:
	case errors.Is(err, jetstream.ErrBucketExists), errors.Is(err, nats.ErrStreamNameAlreadyInUse):
		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	default:
		return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Download returns the object's bytes.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	data, err := n.store.GetBytes(key)
	if err != nil {
		return nil, n.wrap("get", key, err)
	}

	return data, nil
}

// Upload stores data under key, replacing any previous version.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := n.store.PutBytes(key, data)
	if err != nil {
		return n.wrap("put", key, err)
	}

	return nil
}

// List returns every live object with its modification time.
func (n *NatsObjectStore) List(_ context.Context) ([]core.ObjectInfo, error) {
	objects, err := n.store.List()
	if errors.Is(err, nats.ErrNoObjectsFound) {
		return []core.ObjectInfo{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list bucket '%s': %w", n.bucket, err)
	}

	infos := make([]core.ObjectInfo, 0, len(objects))

	for _, object := range objects {
		if object.Deleted {
			continue
		}

		infos = append(infos, core.ObjectInfo{
			Key:     object.Name,
			ModTime: object.ModTime,
			Size:    int64(object.Size),
		})
	}

	return infos, nil
}

// Delete removes the object under key.
func (n *NatsObjectStore) Delete(_ context.Context, key string) error {
	err := n.store.Delete(key)
	if err != nil {
		return n.wrap("delete", key, err)
	}

	return nil
}

// wrap maps a missing object to core.ErrObjectNotFound.
func (n *NatsObjectStore) wrap(op, key string, err error) error {
	if errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("%w: '%s' in bucket '%s'", core.ErrObjectNotFound, key, n.bucket)
	}

	return fmt.Errorf("failed to %s object '%s' in bucket '%s': %w", op, key, n.bucket, err)
}
