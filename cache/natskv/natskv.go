// Package natskv implements cache.Service on NATS JetStream key-value
// buckets, one bucket per region.
//
// JetStream buckets expire entries by bucket age, so each region's TTL is
// fixed when the bucket is opened from the policy; the ttl passed to Put is
// not applied per key.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.trai.ch/zerr"

	"github.com/jacentio/codex/cache"
	"github.com/jacentio/codex/internal/digest"
)

// DefaultPrefix is prepended to region names to form bucket names.
const DefaultPrefix = "codex"

// Service is a cache.Service backed by JetStream KV buckets.
type Service struct {
	buckets map[cache.Region]jetstream.KeyValue
}

// New wraps already opened buckets. Regions without a bucket fail every call.
func New(buckets map[cache.Region]jetstream.KeyValue) *Service {
	return &Service{buckets: buckets}
}

// BucketName returns the bucket holding region.
func BucketName(prefix string, region cache.Region) string {
	return prefix + "_" + strings.ReplaceAll(string(region), "-", "_")
}

// Open creates or updates one bucket per region with the region's TTL as
// the bucket's maximum age.
func Open(ctx context.Context, js jetstream.JetStream, prefix string, policy cache.Policy) (*Service, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	buckets := make(map[cache.Region]jetstream.KeyValue, len(cache.All()))
	for _, region := range cache.All() {
		name := BucketName(prefix, region)
		kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      name,
			Description: "codex cache region " + string(region),
			TTL:         policy.TTL(region),
			History:     1,
		})
		if err != nil {
			return nil, zerr.Wrap(err, "open kv bucket "+name)
		}
		buckets[region] = kv
	}
	return New(buckets), nil
}

func (s *Service) bucket(region cache.Region) (jetstream.KeyValue, error) {
	kv, ok := s.buckets[region]
	if !ok {
		return nil, fmt.Errorf("no bucket for region %q", region)
	}
	return kv, nil
}

// Get implements cache.Service.
func (s *Service) Get(ctx context.Context, region cache.Region, key string) ([]byte, bool, error) {
	kv, err := s.bucket(region)
	if err != nil {
		return nil, false, err
	}
	entry, err := kv.Get(ctx, digest.Key(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, zerr.Wrap(err, "kv get")
	}
	return entry.Value(), true, nil
}

// Put implements cache.Service.
func (s *Service) Put(ctx context.Context, region cache.Region, key string, value []byte, _ time.Duration) error {
	kv, err := s.bucket(region)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, digest.Key(key), value); err != nil {
		return zerr.Wrap(err, "kv put")
	}
	return nil
}

// Delete implements cache.Service.
func (s *Service) Delete(ctx context.Context, region cache.Region, key string) error {
	kv, err := s.bucket(region)
	if err != nil {
		return err
	}
	if err := kv.Purge(ctx, digest.Key(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return zerr.Wrap(err, "kv purge")
	}
	return nil
}

// ClearAll implements cache.Service by purging every key in the region's
// bucket.
func (s *Service) ClearAll(ctx context.Context, region cache.Region) error {
	kv, err := s.bucket(region)
	if err != nil {
		return err
	}
	lister, err := kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return zerr.Wrap(err, "kv list keys")
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for k := range lister.Keys() {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if err := kv.Purge(ctx, k); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return zerr.Wrap(err, "kv purge")
		}
	}
	return nil
}
