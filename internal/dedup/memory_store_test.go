package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
)

func TestMemoryStore_LoadPrunes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4)
	key := Key{PatientID: "p1", Category: models.CategoryMedical}

	require.NoError(t, s.Append(ctx, key, t0))
	require.NoError(t, s.Append(ctx, key, t0.Add(30*time.Minute)))

	w, err := s.Load(ctx, key, t0.Add(61*time.Minute))
	require.NoError(t, err)
	require.Len(t, w.Timestamps, 1)
	assert.True(t, w.Timestamps[0].Equal(t0.Add(30*time.Minute)))
	assert.True(t, w.LastFired.Equal(t0.Add(30*time.Minute)))

	// 恰好一小时前的不算过期
	w, err = s.Load(ctx, key, t0.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Len(t, w.Timestamps, 1)
}

func TestMemoryStore_LastFiredKeepsMax(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4)
	key := Key{PatientID: "p1", Category: models.CategoryMedical}

	require.NoError(t, s.Append(ctx, key, t0.Add(time.Minute)))
	require.NoError(t, s.Append(ctx, key, t0))

	w, err := s.Load(ctx, key, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, w.LastFired.Equal(t0.Add(time.Minute)))
	require.Len(t, w.Timestamps, 2)
	assert.True(t, w.Timestamps[0].Before(w.Timestamps[1]))
}

func TestMemoryStore_LockRespectsContext(t *testing.T) {
	s := NewMemoryStore(4)
	key := Key{PatientID: "p1", Category: models.CategoryMedical}

	unlock, err := s.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 其他键不受影响
	other, err := s.Lock(context.Background(), Key{PatientID: "p2", Category: models.CategoryMedical})
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	again, err := s.Lock(context.Background(), key)
	require.NoError(t, err)
	again()
}

func TestMemoryStore_Evict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4)
	wall := t0
	s.now = func() time.Time { return wall }

	idle := Key{PatientID: "idle", Category: models.CategoryMedical}
	busy := Key{PatientID: "busy", Category: models.CategoryMedical}
	held := Key{PatientID: "held", Category: models.CategorySafety}

	require.NoError(t, s.Append(ctx, idle, t0))
	require.NoError(t, s.Append(ctx, held, t0))
	unlock, err := s.Lock(ctx, held)
	require.NoError(t, err)

	wall = t0.Add(90 * time.Minute)
	require.NoError(t, s.Append(ctx, busy, wall))

	evicted, err := s.Evict(ctx, wall.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 2, s.Len())

	unlock()
	wall = wall.Add(2 * time.Hour)
	evicted, err = s.Evict(ctx, wall.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)
	assert.Zero(t, s.Len())
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	wall := t0
	s.now = func() time.Time { return wall }
	require.NoError(t, s.Append(ctx, Key{PatientID: "p1", Category: models.CategoryMedical}, t0))

	sweeper, err := NewSweeper(s, "", zap.NewNop())
	require.NoError(t, err)
	sweeper.now = func() time.Time { return t0.Add(2 * time.Hour) }
	sweeper.Start()
	defer sweeper.Stop()

	sweeper.Sweep()
	assert.Zero(t, s.Len())

	_, err = NewSweeper(s, "not a schedule", zap.NewNop())
	assert.Error(t, err)
}
