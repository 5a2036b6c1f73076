package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSweepSchedule 默认清理周期
const DefaultSweepSchedule = "@every 5m"

// Sweeper 定时清理空闲超过一小时的去重窗口
type Sweeper struct {
	store  WindowStore
	cron   *cron.Cron
	idle   time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewSweeper 创建清理任务，schedule 为 cron 表达式（支持 "@every 5m"）
func NewSweeper(store WindowStore, schedule string, logger *zap.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	s := &Sweeper{
		store:  store,
		cron:   cron.New(),
		idle:   WindowLookback,
		logger: logger,
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule dedup sweep: %w", err)
	}
	return s, nil
}

// Start 启动定时任务
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop 停止定时任务并等待运行中的清理结束
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep 执行一次清理
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	evicted, err := s.store.Evict(ctx, s.now().Add(-s.idle))
	if err != nil {
		s.logger.Warn("Dedup sweep failed", zap.Error(err))
		return
	}
	if evicted > 0 {
		s.logger.Debug("Dedup windows evicted", zap.Int("count", evicted))
	}
}
