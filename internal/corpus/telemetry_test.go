package corpus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
	"wisefido-sos/internal/repository"
)

func TestUsageRecorder_FlushOnStop(t *testing.T) {
	store := repository.NewMemoryPhraseRepository()
	r := rule("en-1", "en", models.SeverityCritical, models.CategoryMedical, `heart attack`)
	require.NoError(t, store.CreatePhrase(context.Background(), &r))

	recorder := NewUsageRecorder(store, zap.NewNop(), 16, time.Hour)
	recorder.Start()

	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, recorder.Record("en-1", t1))
	assert.True(t, recorder.Record("en-1", t1.Add(time.Minute)))
	recorder.Stop()

	got, err := store.GetPhrase(context.Background(), "en-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UsageCount)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastTriggeredAt.Equal(t1.Add(time.Minute)))
}

func TestUsageRecorder_DropsWhenFull(t *testing.T) {
	store := repository.NewMemoryPhraseRepository()
	recorder := NewUsageRecorder(store, zap.NewNop(), 1, time.Hour)

	// 未启动时队列不被消费
	assert.True(t, recorder.Record("en-1", time.Now()))
	assert.False(t, recorder.Record("en-1", time.Now()))
}

func TestUsageRecorder_UnknownPhraseDoesNotBlock(t *testing.T) {
	store := repository.NewMemoryPhraseRepository()
	recorder := NewUsageRecorder(store, zap.NewNop(), 4, 10*time.Millisecond)
	recorder.Start()
	recorder.Record("missing", time.Now())
	time.Sleep(30 * time.Millisecond)
	recorder.Stop()
	recorder.Stop()
}
