package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/session"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client, DefaultPrefix, ttl), mr
}

func TestStore_LoadSave(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	_, err := s.Load(ctx, "cart:a")
	require.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, s.Save(ctx, "cart:a", []byte(`{"version":1}`)))
	got, err := s.Load(ctx, "cart:a")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(got))

	raw, err := mr.Get("storefront:cart:a")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, raw)
	require.NoError(t, s.Ping(ctx))
}

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, time.Hour)

	require.NoError(t, s.Save(ctx, "checkout:a", []byte("x")))
	assert.Equal(t, time.Hour, mr.TTL("storefront:checkout:a"))

	mr.FastForward(time.Hour)
	_, err := s.Load(ctx, "checkout:a")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "://nope")
	require.Error(t, err)
}
