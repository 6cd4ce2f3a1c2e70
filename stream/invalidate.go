// Package stream provides DynamoDB Streams handlers that keep the store's
// cache regions in line with writes made by other processes.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/codex/store"
)

// Invalidator is the part of *store.Store the handler drives.
type Invalidator interface {
	InvalidateCreated(ctx context.Context)
	InvalidateChanged(ctx context.Context, key store.StoreKey)
	InvalidateDeleted(ctx context.Context, key store.StoreKey)
}

// Handler processes DynamoDB stream events for cache invalidation.
type Handler struct {
	store  Invalidator
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s Invalidator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// Counts summarizes one batch.
type Counts struct {
	Created int
	Changed int
	Deleted int
	Skipped int
}

// HandleInvalidation applies the cache invalidation rules for each stream
// record: INSERT clears id enumerations, MODIFY drops the cached record and
// REMOVE applies the delete rules. It is designed to be used as an AWS
// Lambda handler; records with unreadable keys are logged and skipped.
func (h *Handler) HandleInvalidation(ctx context.Context, event events.DynamoDBEvent) (Counts, error) {
	var counts Counts
	for _, record := range event.Records {
		key, err := StreamKey(record.Change.Keys)
		if err != nil {
			h.logger.Warn("skipping stream record",
				"eventID", record.EventID,
				"error", err,
			)
			counts.Skipped++
			continue
		}

		switch record.EventName {
		case string(events.DynamoDBOperationTypeInsert):
			h.store.InvalidateCreated(ctx)
			counts.Created++
		case string(events.DynamoDBOperationTypeModify):
			h.store.InvalidateChanged(ctx, key)
			counts.Changed++
		case string(events.DynamoDBOperationTypeRemove):
			h.store.InvalidateDeleted(ctx, key)
			counts.Deleted++
		default:
			counts.Skipped++
		}
	}

	h.logger.Info("stream batch invalidated",
		"records", len(event.Records),
		"created", counts.Created,
		"changed", counts.Changed,
		"deleted", counts.Deleted,
		"skipped", counts.Skipped,
	)
	return counts, nil
}

// StreamKey extracts the store key from a DynamoDB stream key image.
func StreamKey(keys map[string]events.DynamoDBAttributeValue) (store.StoreKey, error) {
	v, ok := keys[store.AttrKey]
	if !ok || v.DataType() != events.DataTypeString {
		return store.StoreKey{}, fmt.Errorf("stream key without string %s attribute", store.AttrKey)
	}
	return store.ParseStoreKey(v.String())
}
