package redis

import (
	"context"
	"os"
	"testing"

	"github.com/AbduElrahman2001/BALHA/internal/store"
	"github.com/AbduElrahman2001/BALHA/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is required for integration tests")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	storetest.RunBackendTests(t, func(t *testing.T) store.Backend {
		deviceID := "test-" + uuid.NewString()
		t.Cleanup(func() {
			keys, _ := client.Keys(ctx, keyPrefix+":"+deviceID+":*").Result()
			if len(keys) > 0 {
				_ = client.Del(ctx, keys...).Err()
			}
		})
		return New(client, deviceID)
	})
}

func TestKeyLayout(t *testing.T) {
	b := New(nil, "shop-1")
	assert.Equal(t, "balha:shop-1:turns", b.key(store.KeyTurns))
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
