package memstore_test

import (
	"context"
	"testing"
	"time"

	"smart-tracker/internal/domain"
	"smart-tracker/internal/infra/memstore"
)

func TestRecordStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewRecordStore()

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("empty store: got %d records", len(records))
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"tracker-1", "tracker-2"} {
		rec := domain.Record{DeviceID: id, ReceivedAt: at, Body: map[string]any{"device_id": id}}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	records, _ = store.List(ctx)
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}
	if records[0].DeviceID != "tracker-1" || records[1].DeviceID != "tracker-2" {
		t.Errorf("order: got %s, %s", records[0].DeviceID, records[1].DeviceID)
	}
	if records[0].ID == "" || records[0].ID == records[1].ID {
		t.Errorf("ids not assigned uniquely: %q, %q", records[0].ID, records[1].ID)
	}
}

func TestLatestCache(t *testing.T) {
	ctx := context.Background()
	cache := memstore.NewLatestCache()

	if _, ok, _ := cache.Get(ctx); ok {
		t.Fatal("empty cache reported a payload")
	}

	payload := []byte(`{"gps":{"lat":1}}`)
	if err := cache.Put(ctx, payload); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	payload[0] = 'X'

	got, ok, err := cache.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"gps":{"lat":1}}` {
		t.Errorf("payload: got %s", got)
	}
}
