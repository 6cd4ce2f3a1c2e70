// Package blob removes file attachments owned by deleted entries.
package blob

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go/jetstream"
	"go.trai.ch/zerr"
)

// Store deletes blobs by reference.
type Store interface {
	Delete(ctx context.Context, ref string) error
}

// Nop is a Store for deployments without attachments.
type Nop struct{}

// Delete implements Store.
func (Nop) Delete(context.Context, string) error { return nil }

// ObjectStore deletes blobs from a NATS JetStream object store bucket.
type ObjectStore struct {
	obs jetstream.ObjectStore
}

// NewObjectStore wraps an object store bucket.
func NewObjectStore(obs jetstream.ObjectStore) *ObjectStore {
	return &ObjectStore{obs: obs}
}

// Delete removes the object named ref. A missing object counts as deleted.
func (s *ObjectStore) Delete(ctx context.Context, ref string) error {
	err := s.obs.Delete(ctx, ref)
	if err == nil || errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil
	}
	return zerr.Wrap(err, "delete blob "+ref)
}

// Open binds to (or creates) the named bucket.
func Open(ctx context.Context, js jetstream.JetStream, bucket string) (*ObjectStore, error) {
	obs, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{Bucket: bucket})
	if err != nil {
		return nil, zerr.Wrap(err, "open object store "+bucket)
	}
	return NewObjectStore(obs), nil
}
