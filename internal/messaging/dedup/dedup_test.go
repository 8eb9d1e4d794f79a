package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryStore_FirstDeliveryPasses(t *testing.T) {
	store := NewMemoryStore(10 * time.Minute)

	seen, err := store.Seen(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("first delivery must not be reported as duplicate")
	}
}

func TestMemoryStore_RedeliveryRejected(t *testing.T) {
	store := NewMemoryStore(10 * time.Minute)
	ctx := context.Background()

	if _, err := store.Seen(ctx, "msg-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		seen, err := store.Seen(ctx, "msg-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !seen {
			t.Fatalf("redelivery %d must be reported as duplicate", i+1)
		}
	}
}

func TestMemoryStore_ExpiredEntryPruned(t *testing.T) {
	store := NewMemoryStore(10 * time.Minute)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	if _, err := store.Seen(ctx, "msg-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current = current.Add(11 * time.Minute)

	seen, err := store.Seen(ctx, "msg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("entry past the TTL window must be treated as new")
	}
	if len(store.seen) != 1 {
		t.Fatalf("expected old entry to be pruned, map has %d entries", len(store.seen))
	}
}

func TestMemoryStore_EmptyIDNeverDeduplicated(t *testing.T) {
	store := NewMemoryStore(10 * time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		seen, err := store.Seen(ctx, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen {
			t.Fatal("messages without a provider id must always be processed")
		}
	}
}

func TestRedisStore_Seen(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := NewRedisStore(client, 10*time.Minute)
	ctx := context.Background()

	seen, err := store.Seen(ctx, "msg-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("first delivery must not be a duplicate")
	}

	seen, err = store.Seen(ctx, "msg-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Fatal("second delivery must be a duplicate")
	}

	srv.FastForward(11 * time.Minute)

	seen, err = store.Seen(ctx, "msg-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("delivery after TTL expiry must be treated as new")
	}
}

func TestRedisStore_EmptyID(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	store := NewRedisStore(client, 10*time.Minute)

	seen, err := store.Seen(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatal("empty provider id must never be deduplicated")
	}
}
