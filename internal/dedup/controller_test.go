package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// storeFactories 两种后端跑同一组用例
func storeFactories(t *testing.T) map[string]func() WindowStore {
	return map[string]func() WindowStore{
		"memory": func() WindowStore { return NewMemoryStore(8) },
		"redis": func() WindowStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, RedisStoreConfig{})
		},
	}
}

func TestController_Debounce(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewController(newStore(), 5*time.Minute, 10, zap.NewNop())

			ok, reason := c.ShouldAlert(ctx, "p1", models.CategoryMedical, "heart attack", t0)
			assert.True(t, ok)
			assert.Equal(t, ReasonAccepted, reason)
			require.NoError(t, c.Record(ctx, "p1", models.CategoryMedical, t0))

			ok, reason = c.ShouldAlert(ctx, "p1", models.CategoryMedical, "heart attack", t0.Add(5*time.Minute-time.Second))
			assert.False(t, ok)
			assert.Equal(t, ReasonDebounce, reason)

			ok, reason = c.ShouldAlert(ctx, "p1", models.CategoryMedical, "heart attack", t0.Add(5*time.Minute+time.Second))
			assert.True(t, ok)
			assert.Equal(t, ReasonAccepted, reason)
		})
	}
}

func TestController_AcceptDoesNotRecord(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewController(newStore(), 5*time.Minute, 10, zap.NewNop())

			ok, _ := c.ShouldAlert(ctx, "p1", models.CategoryMedical, "", t0)
			require.True(t, ok)
			// 未调用 Record（派发失败），下一次仍可通过
			ok, _ = c.ShouldAlert(ctx, "p1", models.CategoryMedical, "", t0.Add(time.Minute))
			assert.True(t, ok)
		})
	}
}

func TestController_IndependentCategoriesAndPatients(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewController(newStore(), 5*time.Minute, 10, zap.NewNop())

			require.NoError(t, c.Record(ctx, "p1", models.CategoryMedical, t0))
			ok, reason := c.ShouldAlert(ctx, "p1", models.CategoryMedical, "", t0)
			require.False(t, ok)
			require.Equal(t, ReasonDebounce, reason)

			ok, _ = c.ShouldAlert(ctx, "p1", models.CategorySafety, "", t0)
			assert.True(t, ok)
			ok, _ = c.ShouldAlert(ctx, "p2", models.CategoryMedical, "", t0)
			assert.True(t, ok)
		})
	}
}

func TestController_HourlyCap(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewController(newStore(), 5*time.Minute, 10, zap.NewNop())

			for i := 0; i < 10; i++ {
				ts := t0.Add(time.Duration(i) * 6 * time.Minute)
				ok, reason := c.ShouldAlert(ctx, "p1", models.CategoryPhysical, "", ts)
				require.True(t, ok, "event %d: %s", i+1, reason)
				require.NoError(t, c.Record(ctx, "p1", models.CategoryPhysical, ts))
			}

			// 第 11 次：与上次间隔超过防抖，但仍在一小时内
			ok, reason := c.ShouldAlert(ctx, "p1", models.CategoryPhysical, "", t0.Add(59*time.Minute))
			assert.False(t, ok)
			assert.Equal(t, ReasonHourlyCap, reason)

			// 首个事件滑出窗口后恢复
			ok, reason = c.ShouldAlert(ctx, "p1", models.CategoryPhysical, "", t0.Add(61*time.Minute))
			assert.True(t, ok)
			assert.Equal(t, ReasonAccepted, reason)
		})
	}
}

func TestController_HourlyCapWithoutDebounce(t *testing.T) {
	ctx := context.Background()
	c := NewController(NewMemoryStore(0), 0, 10, zap.NewNop())

	for i := 0; i < 10; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		ok, _ := c.ShouldAlert(ctx, "p1", models.CategoryRequest, "", ts)
		require.True(t, ok)
		require.NoError(t, c.Record(ctx, "p1", models.CategoryRequest, ts))
	}
	ok, reason := c.ShouldAlert(ctx, "p1", models.CategoryRequest, "", t0.Add(10*time.Second))
	assert.False(t, ok)
	assert.Equal(t, ReasonHourlyCap, reason)
}

// failingStore 模拟存储不可用
type failingStore struct{ *MemoryStore }

func (failingStore) Load(context.Context, Key, time.Time) (Window, error) {
	return Window{}, assert.AnError
}

func TestController_StoreFailureAccepts(t *testing.T) {
	c := NewController(failingStore{NewMemoryStore(1)}, 5*time.Minute, 10, zap.NewNop())
	ok, reason := c.ShouldAlert(context.Background(), "p1", models.CategoryMedical, "", t0)
	assert.True(t, ok)
	assert.Equal(t, ReasonStoreUnavailable, reason)
}

func TestController_LockSerializesCheckThenRecord(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := NewController(newStore(), 5*time.Minute, 10, zap.NewNop())

			var accepted atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := c.Lock(ctx, "p1", models.CategoryMedical)
					if !assert.NoError(t, err) {
						return
					}
					defer unlock()
					if ok, _ := c.ShouldAlert(ctx, "p1", models.CategoryMedical, "", t0); ok {
						accepted.Add(1)
						assert.NoError(t, c.Record(ctx, "p1", models.CategoryMedical, t0))
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), accepted.Load())
		})
	}
}

func TestWindowStore_LockReleaseThroughInterface(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			var store WindowStore = newStore()
			key := Key{PatientID: "p1", Category: models.CategorySafety}

			unlock, err := store.Lock(context.Background(), key)
			require.NoError(t, err)
			require.NotNil(t, unlock)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_, err = store.Lock(ctx, key)
			assert.Error(t, err)

			unlock()
			again, err := store.Lock(context.Background(), key)
			require.NoError(t, err)
			again()
		})
	}
}
