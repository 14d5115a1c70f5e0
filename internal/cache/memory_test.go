package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := &Entry{Output: "result", ToolName: "search", ToolVersion: "1.0.0"}
	if err := store.Set(ctx, "k1", entry, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Output != "result" {
		t.Errorf("Output = %v, want result", got.Output)
	}
}

func TestMemoryStoreMiss(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(absent) = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", &Entry{Output: 1}, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("entry should be live: %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired entry Get() = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreNoTTLNeverExpires(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", &Entry{Output: 1}, 0); err != nil {
		t.Fatal(err)
	}

	if removed := store.Sweep(time.Now().Add(time.Hour)); removed != 0 {
		t.Errorf("Sweep() removed %d entries without TTL", removed)
	}
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Errorf("Get() = %v, want entry without TTL to survive", err)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "short", &Entry{}, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "long", &Entry{}, time.Hour); err != nil {
		t.Fatal(err)
	}

	time.Sleep(15 * time.Millisecond)

	if removed := store.Sweep(time.Now()); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStoreDeleteAndFlush(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := store.Set(ctx, k, &Entry{}, time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Error("deleted entry still present")
	}

	if err := store.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() after Flush = %d, want 0", store.Len())
	}
}
