package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markverse/replenish/internal/pkg/env"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s",
			env.GetEnv("CACHE_HOST", "localhost"),
			env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       13,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_, err := client.Ping(ctx).Result()
	cancel()
	if err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return NewStore(client)
}

type testPayload struct {
	CustomerID uint   `json:"customer_id"`
	Method     string `json:"method"`
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := testPayload{CustomerID: 42, Method: "card"}
	require.NoError(t, store.Put(ctx, "job-1", in))

	var out testPayload
	require.NoError(t, store.Get(ctx, "job-1", &out))
	assert.Equal(t, in, out)

	// Put replaces the previous entry
	require.NoError(t, store.Put(ctx, "job-1", testPayload{CustomerID: 43}))
	require.NoError(t, store.Get(ctx, "job-1", &out))
	assert.Equal(t, uint(43), out.CustomerID)
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)

	var out testPayload
	err := store.Get(context.Background(), "no-such-job", &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "job-2", testPayload{CustomerID: 1}))
	require.NoError(t, store.Delete(ctx, "job-2"))
	require.NoError(t, store.Delete(ctx, "job-2"))

	var out testPayload
	assert.ErrorIs(t, store.Get(ctx, "job-2", &out), ErrNotFound)
}
