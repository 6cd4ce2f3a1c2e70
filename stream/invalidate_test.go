package stream_test

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/codex/store"
	"github.com/jacentio/codex/stream"
)

type recordingInvalidator struct {
	created int
	changed []string
	deleted []string
}

func (r *recordingInvalidator) InvalidateCreated(context.Context) { r.created++ }

func (r *recordingInvalidator) InvalidateChanged(_ context.Context, k store.StoreKey) {
	r.changed = append(r.changed, k.String())
}

func (r *recordingInvalidator) InvalidateDeleted(_ context.Context, k store.StoreKey) {
	r.deleted = append(r.deleted, k.String())
}

func streamRecord(eventName, key string) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   eventName + "-" + key,
		EventName: eventName,
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				store.AttrKey: events.NewStringAttribute(key),
			},
		},
	}
}

func TestNewHandler(t *testing.T) {
	// Test with nil store and logger (should not panic)
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandleInvalidation_EventTypes(t *testing.T) {
	inv := &recordingInvalidator{}
	h := stream.NewHandler(inv, nil)

	counts, err := h.HandleInvalidation(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{
			streamRecord("INSERT", "Monster#goblin"),
			streamRecord("MODIFY", "Monster#orc"),
			streamRecord("REMOVE", "User#alice/Product#sword-1-a"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if inv.created != 1 || counts.Created != 1 {
		t.Errorf("expected 1 create invalidation, got %d (counts %d)", inv.created, counts.Created)
	}
	if len(inv.changed) != 1 || inv.changed[0] != "Monster#orc" {
		t.Errorf("expected change invalidation for Monster#orc, got %v", inv.changed)
	}
	if len(inv.deleted) != 1 || inv.deleted[0] != "User#alice/Product#sword-1-a" {
		t.Errorf("expected delete invalidation for nested key, got %v", inv.deleted)
	}
	if counts.Skipped != 0 {
		t.Errorf("expected no skipped records, got %d", counts.Skipped)
	}
}

func TestHandleInvalidation_SkipsBadKeys(t *testing.T) {
	inv := &recordingInvalidator{}
	h := stream.NewHandler(inv, nil)

	missing := events.DynamoDBEventRecord{EventID: "no-key", EventName: "INSERT"}
	malformed := streamRecord("REMOVE", "no-separator")

	counts, err := h.HandleInvalidation(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{missing, malformed, streamRecord("INSERT", "Monster#goblin")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Skipped != 2 {
		t.Errorf("expected 2 skipped records, got %d", counts.Skipped)
	}
	if inv.created != 1 {
		t.Errorf("expected the valid record to be processed, got %d creates", inv.created)
	}
	if len(inv.deleted) != 0 {
		t.Errorf("expected no delete invalidations, got %v", inv.deleted)
	}
}

func TestHandleInvalidation_UnknownEventName(t *testing.T) {
	inv := &recordingInvalidator{}
	h := stream.NewHandler(inv, nil)

	counts, _ := h.HandleInvalidation(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{streamRecord("TRUNCATE", "Monster#goblin")},
	})
	if counts.Skipped != 1 {
		t.Errorf("expected unknown event to be skipped, got %+v", counts)
	}
}

func TestStreamKey(t *testing.T) {
	tests := []struct {
		name    string
		keys    map[string]events.DynamoDBAttributeValue
		want    string
		wantErr bool
	}{
		{
			name: "root key",
			keys: map[string]events.DynamoDBAttributeValue{store.AttrKey: events.NewStringAttribute("Monster#goblin")},
			want: "Monster#goblin",
		},
		{
			name: "nested key",
			keys: map[string]events.DynamoDBAttributeValue{store.AttrKey: events.NewStringAttribute("User#bob/Product#x")},
			want: "User#bob/Product#x",
		},
		{
			name:    "number key",
			keys:    map[string]events.DynamoDBAttributeValue{store.AttrKey: events.NewNumberAttribute("42")},
			wantErr: true,
		},
		{
			name:    "empty",
			keys:    map[string]events.DynamoDBAttributeValue{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := stream.StreamKey(tt.keys)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got key %q", k)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if k.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, k.String())
			}
		})
	}
}
