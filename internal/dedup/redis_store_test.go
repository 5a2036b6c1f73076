package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-sos/internal/models"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, RedisStoreConfig{LockTTL: time.Second}), mr
}

func TestRedisStore_AppendSameMillisecond(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)
	key := Key{PatientID: "p1", Category: models.CategoryMedical}

	require.NoError(t, s.Append(ctx, key, t0))
	require.NoError(t, s.Append(ctx, key, t0))

	w, err := s.Load(ctx, key, t0)
	require.NoError(t, err)
	assert.Len(t, w.Timestamps, 2)
	assert.Equal(t, t0.UnixMilli(), w.LastFired.UnixMilli())

	assert.True(t, mr.Exists("sos:dedup:p1:Medical:ts"))
	assert.Equal(t, WindowLookback, mr.TTL("sos:dedup:p1:Medical:ts"))
	assert.Equal(t, WindowLookback, mr.TTL("sos:dedup:p1:Medical:last"))
}

func TestRedisStore_LoadEmptyAndPrune(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t)
	key := Key{PatientID: "p1", Category: models.CategorySafety}

	w, err := s.Load(ctx, key, t0)
	require.NoError(t, err)
	assert.Empty(t, w.Timestamps)
	assert.True(t, w.LastFired.IsZero())

	require.NoError(t, s.Append(ctx, key, t0))
	require.NoError(t, s.Append(ctx, key, t0.Add(40*time.Minute)))
	w, err = s.Load(ctx, key, t0.Add(70*time.Minute))
	require.NoError(t, err)
	require.Len(t, w.Timestamps, 1)
	assert.Equal(t, t0.Add(40*time.Minute).UnixMilli(), w.Timestamps[0].UnixMilli())
}

func TestRedisStore_Lock(t *testing.T) {
	s, mr := newRedisStore(t)
	key := Key{PatientID: "p1", Category: models.CategoryMedical}

	unlock, err := s.Lock(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, mr.Exists("sos:dedup:p1:Medical:lock"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists("sos:dedup:p1:Medical:lock"))

	again, err := s.Lock(context.Background(), key)
	require.NoError(t, err)
	again()
}

func TestRedisStore_UnlockDoesNotReleaseForeignLock(t *testing.T) {
	s, mr := newRedisStore(t)
	key := Key{PatientID: "p1", Category: models.CategoryMedical}

	unlock, err := s.Lock(context.Background(), key)
	require.NoError(t, err)

	// 锁过期后被其他实例获取
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("sos:dedup:p1:Medical:lock", "other-instance"))

	unlock()
	got, err := mr.Get("sos:dedup:p1:Medical:lock")
	require.NoError(t, err)
	assert.Equal(t, "other-instance", got)
}

func TestRedisStore_EvictIsNoop(t *testing.T) {
	s, _ := newRedisStore(t)
	n, err := s.Evict(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
