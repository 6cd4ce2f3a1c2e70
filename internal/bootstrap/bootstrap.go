// Package bootstrap assembles a Store from the environment for the Lambda
// binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/caarlos0/env/v11"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/codex/blob"
	"github.com/jacentio/codex/cache"
	"github.com/jacentio/codex/cache/natskv"
	"github.com/jacentio/codex/catalog"
	"github.com/jacentio/codex/store"
)

// Settings holds the deployment settings outside store.Config.
type Settings struct {
	// NATSURL selects the shared cache and blob store. Without it the cache
	// is process-local and attachments are not removed.
	NATSURL string `env:"CODEX_NATS_URL"`

	// CachePrefix names the cache buckets.
	// Default: "codex"
	CachePrefix string `env:"CODEX_CACHE_PREFIX" envDefault:"codex"`

	// BlobBucket is the object store bucket holding attachments.
	// Default: "codex_blobs"
	BlobBucket string `env:"CODEX_BLOB_BUCKET" envDefault:"codex_blobs"`

	// Debug enables debug logging.
	Debug bool `env:"CODEX_DEBUG"`
}

// Env is an assembled Store with its dependencies.
type Env struct {
	Store  *store.Store
	Config store.Config
	Logger *slog.Logger

	nc *nats.Conn
}

// Close releases the NATS connection, if any.
func (e *Env) Close() {
	if e.nc != nil {
		e.nc.Close()
	}
}

// Open reads the environment and builds the Store with the catalog types
// registered.
func Open(ctx context.Context) (*Env, error) {
	var settings Settings
	if err := env.Parse(&settings); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	registry := store.NewRegistry(cfg.Table)
	if err := catalog.Register(registry, ""); err != nil {
		return nil, err
	}
	backend := store.NewDynamoBackend(dynamodb.NewFromConfig(awsCfg), registry)

	e := &Env{Config: cfg, Logger: logger}
	policy := cache.DefaultPolicy(cfg.ShortTTL, cfg.LongTTL)
	var svc cache.Service = cache.NewMemory()
	blobs := blob.Store(blob.Nop{})

	if settings.NATSURL != "" {
		nc, err := nats.Connect(settings.NATSURL, nats.Name("codex"))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		e.nc = nc
		js, err := jetstream.New(nc)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("jetstream: %w", err)
		}
		kv, err := natskv.Open(ctx, js, settings.CachePrefix, policy)
		if err != nil {
			e.Close()
			return nil, err
		}
		svc = kv
		obs, err := blob.Open(ctx, js, settings.BlobBucket)
		if err != nil {
			e.Close()
			return nil, err
		}
		blobs = obs
	}

	svc, err = cache.Instrument(svc, prometheus.DefaultRegisterer)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("register cache metrics: %w", err)
	}

	e.Store = store.New(backend, cache.NewRegions(svc, policy, logger), registry,
		store.WithConfig(cfg),
		store.WithLogger(logger),
		store.WithBlobStore(blobs),
	)
	return e, nil
}
