// Package cache provides the named, independently expiring cache regions used
// by the store's read paths.
//
// A region is a namespace with its own TTL. Regions are read-through and
// write-invalidate: the store is always authoritative and every cached value
// can be recomputed from it. Values are stored as JSON so any Service that
// moves bytes (in memory, NATS KV) can back them.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Region names a cache namespace.
type Region string

const (
	// RegionEntity caches single records by store key.
	RegionEntity Region = "entity"

	// RegionEntityByField caches single records by type, field and value.
	RegionEntityByField Region = "entity-by-field"

	// RegionEntityList caches record lists by type, scope and filter list.
	RegionEntityList Region = "entity-list"

	// RegionIDs caches id enumerations by type and scope.
	RegionIDs Region = "ids"

	// RegionIDsByField caches id enumerations by type, field and value.
	RegionIDsByField Region = "ids-by-field"

	// RegionRecent caches the most recently changed records by type and scope.
	RegionRecent Region = "recent"

	// RegionDistinct caches distinct field values by type and field.
	RegionDistinct Region = "distinct"

	// RegionProjection caches multi-field projections by type and fields.
	RegionProjection Region = "projection"
)

// All returns every region, in a fixed order.
func All() []Region {
	return []Region{
		RegionEntity,
		RegionEntityByField,
		RegionEntityList,
		RegionIDs,
		RegionIDsByField,
		RegionRecent,
		RegionDistinct,
		RegionProjection,
	}
}

// Service is a shared key-value cache partitioned by region. Implementations
// must be safe for concurrent use; callers add no locking of their own.
type Service interface {
	// Get returns the value stored under key, or false on a miss.
	Get(ctx context.Context, region Region, key string) ([]byte, bool, error)

	// Put stores value under key for ttl.
	Put(ctx context.Context, region Region, key string, value []byte, ttl time.Duration) error

	// Delete removes key from region.
	Delete(ctx context.Context, region Region, key string) error

	// ClearAll removes every key from region.
	ClearAll(ctx context.Context, region Region) error
}

// Policy holds the TTL of each region.
type Policy map[Region]time.Duration

// DefaultPolicy returns a policy with short-lived regions expiring after short
// and the aggregate regions (distinct, projection) after long.
func DefaultPolicy(short, long time.Duration) Policy {
	p := make(Policy, len(All()))
	for _, r := range All() {
		p[r] = short
	}
	p[RegionDistinct] = long
	p[RegionProjection] = long
	return p
}

// TTL returns the TTL for region, defaulting to 24 hours.
func (p Policy) TTL(region Region) time.Duration {
	if ttl, ok := p[region]; ok && ttl > 0 {
		return ttl
	}
	return 24 * time.Hour
}

// Regions is the typed facade the store uses over a Service. Service errors
// are logged and reported as misses: a cache never fails a read.
type Regions struct {
	svc    Service
	policy Policy
	logger *slog.Logger
}

// NewRegions creates a Regions facade.
func NewRegions(svc Service, policy Policy, logger *slog.Logger) *Regions {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = DefaultPolicy(24*time.Hour, 7*24*time.Hour)
	}
	return &Regions{svc: svc, policy: policy, logger: logger}
}

// Policy returns the TTL policy in use.
func (r *Regions) Policy() Policy {
	return r.policy
}

// Load decodes the value cached under key into dst.
func (r *Regions) Load(ctx context.Context, region Region, key string, dst any) bool {
	data, ok, err := r.svc.Get(ctx, region, key)
	if err != nil {
		r.logger.Warn("cache get failed", "region", region, "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		r.logger.Warn("cache value unreadable", "region", region, "key", key, "error", err)
		return false
	}
	return true
}

// Store caches value under key with the region's TTL.
func (r *Regions) Store(ctx context.Context, region Region, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("cache value not encodable", "region", region, "key", key, "error", err)
		return
	}
	if err := r.svc.Put(ctx, region, key, data, r.policy.TTL(region)); err != nil {
		r.logger.Warn("cache put failed", "region", region, "key", key, "error", err)
	}
}

// Forget removes key from region.
func (r *Regions) Forget(ctx context.Context, region Region, key string) {
	if err := r.svc.Delete(ctx, region, key); err != nil {
		r.logger.Warn("cache delete failed", "region", region, "key", key, "error", err)
	}
}

// Clear empties region.
func (r *Regions) Clear(ctx context.Context, region Region) {
	if err := r.svc.ClearAll(ctx, region); err != nil {
		r.logger.Warn("cache clear failed", "region", region, "error", err)
	}
}

// ClearEverything empties every region.
func (r *Regions) ClearEverything(ctx context.Context) {
	for _, region := range All() {
		r.Clear(ctx, region)
	}
}
