package corpus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-sos/internal/repository"
)

type usageEvent struct {
	phraseID string
	at       time.Time
}

type usageAggregate struct {
	count int64
	last  time.Time
}

// UsageRecorder 规则使用量异步上报（有界队列，满时丢弃，不影响检测路径）
type UsageRecorder struct {
	store         repository.PhraseStore
	logger        *zap.Logger
	events        chan usageEvent
	flushInterval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewUsageRecorder 创建使用量上报器
func NewUsageRecorder(store repository.PhraseStore, logger *zap.Logger, bufferSize int, flushInterval time.Duration) *UsageRecorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}
	return &UsageRecorder{
		store:         store,
		logger:        logger,
		events:        make(chan usageEvent, bufferSize),
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
}

// Record 非阻塞入队，队列满时返回 false
func (u *UsageRecorder) Record(phraseID string, at time.Time) bool {
	select {
	case u.events <- usageEvent{phraseID: phraseID, at: at}:
		return true
	default:
		u.logger.Debug("Usage telemetry queue full, dropping event",
			zap.String("phrase_id", phraseID),
		)
		return false
	}
}

// Start 启动后台聚合与刷新协程
func (u *UsageRecorder) Start() {
	u.startOnce.Do(func() {
		u.wg.Add(1)
		go u.run()
	})
}

// Stop 停止并做最后一次刷新
func (u *UsageRecorder) Stop() {
	u.stopOnce.Do(func() {
		close(u.stopCh)
	})
	u.wg.Wait()
}

func (u *UsageRecorder) run() {
	defer u.wg.Done()

	ticker := time.NewTicker(u.flushInterval)
	defer ticker.Stop()

	pending := make(map[string]*usageAggregate)
	add := func(ev usageEvent) {
		agg := pending[ev.phraseID]
		if agg == nil {
			agg = &usageAggregate{}
			pending[ev.phraseID] = agg
		}
		agg.count++
		if ev.at.After(agg.last) {
			agg.last = ev.at
		}
	}

	for {
		select {
		case ev := <-u.events:
			add(ev)
		case <-ticker.C:
			u.flush(pending)
			pending = make(map[string]*usageAggregate)
		case <-u.stopCh:
			for {
				select {
				case ev := <-u.events:
					add(ev)
				default:
					u.flush(pending)
					return
				}
			}
		}
	}
}

func (u *UsageRecorder) flush(pending map[string]*usageAggregate) {
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for phraseID, agg := range pending {
		if err := u.store.IncrementUsage(ctx, phraseID, agg.count, agg.last); err != nil {
			u.logger.Warn("Failed to persist phrase usage",
				zap.String("phrase_id", phraseID),
				zap.Int64("count", agg.count),
				zap.Error(err),
			)
		}
	}
}
