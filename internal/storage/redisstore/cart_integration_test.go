//go:build integration

package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/marketplace/internal/domain/cart"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestCartStore(t *testing.T) {
	client := startRedis(t)
	store := NewCartStore(client, time.Hour)
	ctx := context.Background()

	empty, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	c := cart.New()
	c.Add(cart.Line{ProductID: 5, SellerID: 2, Name: "Bolo", UnitPrice: decimal.RequireFromString("22.00"), Quantity: 1})
	c.Add(cart.Line{ProductID: 6, SellerID: 2, Name: "Torta", UnitPrice: decimal.RequireFromString("30.00"), Quantity: 2})
	require.NoError(t, store.Save(ctx, 1, c))

	ttl, err := client.TTL(ctx, cartKey(1)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.True(t, decimal.RequireFromString("82.00").Equal(got.Total()))

	require.NoError(t, store.Save(ctx, 1, cart.New()))
	n, err := client.Exists(ctx, cartKey(1)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCartStore_ConcurrentUpdates(t *testing.T) {
	client := startRedis(t)
	store := NewCartStore(client, time.Hour)
	ctx := context.Background()

	// Each writer commits once, so none loses more than n-1 races.
	const n = updateAttempts - 6
	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			_, err := store.Update(ctx, 3, func(c *cart.Cart) error {
				c.Add(cart.Line{ProductID: 5, SellerID: 2, Name: "Bolo", UnitPrice: decimal.RequireFromString("22.00"), Quantity: 1})
				return nil
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, err := store.Get(ctx, 3)
	require.NoError(t, err)
	l, ok := got.Line(5)
	require.True(t, ok)
	assert.Equal(t, n, l.Quantity)
}

func TestCartStore_UpdateAbortKeepsCart(t *testing.T) {
	client := startRedis(t)
	store := NewCartStore(client, time.Hour)
	ctx := context.Background()

	c := cart.New()
	c.Add(cart.Line{ProductID: 5, SellerID: 2, UnitPrice: decimal.RequireFromString("1.00"), Quantity: 1})
	require.NoError(t, store.Save(ctx, 4, c))

	errRefused := errors.New("refused")
	_, err := store.Update(ctx, 4, func(c *cart.Cart) error {
		c.Remove(5)
		return errRefused
	})
	require.ErrorIs(t, err, errRefused)

	got, err := store.Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	emptied, err := store.Update(ctx, 4, func(c *cart.Cart) error {
		c.Remove(5)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, emptied.IsEmpty())
	n, err := client.Exists(ctx, cartKey(4)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
