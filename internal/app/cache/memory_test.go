package cache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestMemory_TTL(t *testing.T) {
	store := NewMemory()
	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	if err := store.Set(ctx, "holders", []byte(`{"total":12}`), 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, ok, err := store.Get(ctx, "holders")
	if err != nil || !ok {
		t.Fatalf("expected fresh hit, ok=%t err=%v", ok, err)
	}
	if !bytes.Equal(value, []byte(`{"total":12}`)) {
		t.Fatalf("unexpected value %s", value)
	}

	// Advance past expiry: the entry must be both absent and evicted.
	now = now.Add(31 * time.Second)
	if _, ok, _ := store.Get(ctx, "holders"); ok {
		t.Fatalf("expected miss after TTL")
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Size != 0 {
		t.Fatalf("expired entry not evicted, size=%d", stats.Size)
	}
}

func TestMemory_OverwriteReplacesWholeEntry(t *testing.T) {
	store := NewMemory()
	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	store.Set(ctx, "stats", []byte("old"), time.Second)
	store.Set(ctx, "stats", []byte("new"), time.Minute)

	now = now.Add(30 * time.Second)
	value, ok, _ := store.Get(ctx, "stats")
	if !ok || string(value) != "new" {
		t.Fatalf("overwrite not applied, ok=%t value=%s", ok, value)
	}
}

func TestMemory_ClearAndStats(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	store.Set(ctx, "a", []byte("1"), time.Minute)
	store.Set(ctx, "b", []byte("2"), time.Minute)

	stats, _ := store.Stats(ctx)
	if stats.Size != 2 || len(stats.Keys) != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats, _ = store.Stats(ctx)
	if stats.Size != 0 {
		t.Fatalf("clear left %d entries", stats.Size)
	}
}

func TestMemory_CallerCannotMutateStoredValue(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	payload := []byte("immutable")
	store.Set(ctx, "k", payload, time.Minute)
	payload[0] = 'X'

	value, ok, _ := store.Get(ctx, "k")
	if !ok || string(value) != "immutable" {
		t.Fatalf("stored value aliased caller slice: %s", value)
	}
}
