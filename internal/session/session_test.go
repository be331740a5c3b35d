package session

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-assistant/internal/catalog"
)

func stores(t *testing.T) (map[string]Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemoryStore(time.Hour, 0)
	t.Cleanup(mem.Close)
	return map[string]Store{
		"redis":  NewRedisStore(client, time.Hour),
		"memory": mem,
	}, mr
}

func TestStoreRoundTrip(t *testing.T) {
	all, _ := stores(t)
	for name, store := range all {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sess, err := store.Get(ctx, "abc")
			require.NoError(t, err)
			require.Equal(t, "abc", sess.ID)
			require.Empty(t, sess.Cart)
			require.Equal(t, CatalogDefault, sess.CatalogSource)

			sess.Cart = append(sess.Cart, CartItem{Name: "Camera", UnitPrice: decimal.RequireFromString("1500.50"), Quantity: 2, Discount: decimal.NewFromInt(10)})
			sess.OverallDiscount = decimal.NewFromInt(5)
			sess.Client = ClientDetails{Name: "Asha"}
			sess.UseCatalog([]catalog.Record{{"name": "Camera", "price": json.Number("1500.50")}})
			require.NoError(t, store.Save(ctx, sess))

			loaded, err := store.Get(ctx, "abc")
			require.NoError(t, err)
			require.Len(t, loaded.Cart, 1)
			require.True(t, loaded.Cart[0].UnitPrice.Equal(decimal.RequireFromString("1500.5")))
			require.Equal(t, 2, loaded.Cart[0].Quantity)
			require.True(t, loaded.OverallDiscount.Equal(decimal.NewFromInt(5)))
			require.Equal(t, "Asha", loaded.Client.Name)
			require.Equal(t, CatalogCustom, loaded.CatalogSource)
			require.Equal(t, json.Number("1500.50"), loaded.Catalog[0]["price"])

			require.NoError(t, store.Delete(ctx, "abc"))
			fresh, err := store.Get(ctx, "abc")
			require.NoError(t, err)
			require.Empty(t, fresh.Cart)
		})
	}
}

func TestStoreRejectsEmptyID(t *testing.T) {
	all, _ := stores(t)
	for name, store := range all {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "")
			require.ErrorIs(t, err, ErrInvalidID)
			require.ErrorIs(t, store.Save(context.Background(), &Session{}), ErrInvalidID)
		})
	}
}

func TestMemoryStoreIsolatesCopies(t *testing.T) {
	store := NewMemoryStore(time.Hour, 0)
	defer store.Close()
	ctx := context.Background()

	sess, err := store.Get(ctx, "s")
	require.NoError(t, err)
	sess.Cart = []CartItem{{Name: "Camera", Quantity: 1}}
	require.NoError(t, store.Save(ctx, sess))

	sess.Cart[0].Quantity = 99
	loaded, err := store.Get(ctx, "s")
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Cart[0].Quantity)
}

func TestMemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore(time.Minute, 0)
	defer store.Close()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	sess, _ := store.Get(ctx, "s")
	sess.Cart = []CartItem{{Name: "Camera", Quantity: 1}}
	require.NoError(t, store.Save(ctx, sess))

	now = now.Add(50 * time.Second)
	loaded, err := store.Get(ctx, "s")
	require.NoError(t, err)
	require.Len(t, loaded.Cart, 1, "reads slide the expiry")

	now = now.Add(50 * time.Second)
	store.sweep()
	require.Equal(t, 1, store.Len())

	now = now.Add(2 * time.Minute)
	store.sweep()
	require.Equal(t, 0, store.Len())
}

func TestRedisStoreSlidingTTL(t *testing.T) {
	_, mr := stores(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client, time.Minute, WithPrefix("test:"))
	ctx := context.Background()

	sess, err := store.Get(ctx, "s")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sess))
	require.True(t, mr.Exists("test:s"))

	mr.FastForward(40 * time.Second)
	_, err = store.Get(ctx, "s")
	require.NoError(t, err)
	require.Equal(t, time.Minute, mr.TTL("test:s"))
}

func TestAppendHistoryKeepsNewest(t *testing.T) {
	sess := New("s", time.Now())
	for i := 0; i < 25; i++ {
		sess.AppendHistory("user", fmt.Sprintf("m%d", i), time.Now(), 20)
	}
	require.Len(t, sess.History, 20)
	require.Equal(t, "m5", sess.History[0].Content)
	require.Equal(t, "m24", sess.History[19].Content)
}

func TestCartHelpers(t *testing.T) {
	sess := New("s", time.Now())
	sess.Cart = []CartItem{{Name: "Camera", Quantity: 2}, {Name: "Router", Quantity: 1}}
	sess.OverallDiscount = decimal.NewFromInt(5)
	require.Equal(t, 1, sess.Item("router"))
	require.Equal(t, -1, sess.Item("mount"))
	require.Equal(t, 3, sess.ItemCount())

	sess.ClearCart()
	require.Empty(t, sess.Cart)
	require.True(t, sess.OverallDiscount.IsZero())

	sess.UseCatalog(nil)
	require.Equal(t, CatalogDefault, sess.CatalogSource)
}
