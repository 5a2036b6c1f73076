package dedup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"
)

// 判定原因
const (
	ReasonAccepted         = "accepted"
	ReasonHourlyCap        = "hourly cap exceeded"
	ReasonDebounce         = "debounce window active"
	ReasonStoreUnavailable = "accepted (dedup store unavailable)"
)

// 默认参数
const (
	DefaultDebounce   = 5 * time.Minute
	DefaultMaxPerHour = 10
)

// Controller 去重控制器：按 (patient, category) 维护滑动窗口，执行防抖与小时上限
type Controller struct {
	store      WindowStore
	debounce   time.Duration
	maxPerHour int
	logger     *zap.Logger
}

// NewController 创建去重控制器
func NewController(store WindowStore, debounce time.Duration, maxPerHour int, logger *zap.Logger) *Controller {
	if debounce < 0 {
		debounce = DefaultDebounce
	}
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxPerHour
	}
	return &Controller{
		store:      store,
		debounce:   debounce,
		maxPerHour: maxPerHour,
		logger:     logger,
	}
}

// Lock 串行化同一 (patient, category) 的 检查→派发→记录
func (c *Controller) Lock(ctx context.Context, patientID string, category models.Category) (func(), error) {
	return c.store.Lock(ctx, Key{PatientID: patientID, Category: category})
}

// ShouldAlert 判定是否应触发报警；判定本身不记录事件，派发成功后需调用 Record。
// 存储故障时放行（宁可重复报警，也不漏报新的紧急情况）。
func (c *Controller) ShouldAlert(ctx context.Context, patientID string, category models.Category, utterance string, ts time.Time) (bool, string) {
	key := Key{PatientID: patientID, Category: category}

	window, err := c.store.Load(ctx, key, ts)
	if err != nil {
		c.logger.Error("Dedup store unavailable, accepting alert",
			zap.String("patient_id", patientID),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return true, ReasonStoreUnavailable
	}

	if len(window.Timestamps) >= c.maxPerHour {
		c.reject(patientID, category, ReasonHourlyCap, len(window.Timestamps), utterance)
		return false, ReasonHourlyCap
	}

	if !window.LastFired.IsZero() && absDuration(ts.Sub(window.LastFired)) < c.debounce {
		c.reject(patientID, category, ReasonDebounce, len(window.Timestamps), utterance)
		return false, ReasonDebounce
	}

	return true, ReasonAccepted
}

// Record 记录一次已派发的报警
func (c *Controller) Record(ctx context.Context, patientID string, category models.Category, ts time.Time) error {
	return c.store.Append(ctx, Key{PatientID: patientID, Category: category}, ts)
}

func (c *Controller) reject(patientID string, category models.Category, reason string, windowCount int, utterance string) {
	metrics.IncDedupRejection(string(category), reason)
	c.logger.Info("Alert suppressed by deduplication",
		zap.String("patient_id", patientID),
		zap.String("category", string(category)),
		zap.String("reason", reason),
		zap.Int("alerts_in_window", windowCount),
		zap.Int("utterance_length", len(utterance)),
	)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
