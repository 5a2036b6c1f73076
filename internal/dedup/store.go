package dedup

import (
	"context"
	"time"

	"wisefido-sos/internal/models"
)

// WindowLookback 小时上限的回看窗口
const WindowLookback = time.Hour

// Key 去重窗口键 (patient, category)
type Key struct {
	PatientID string
	Category  models.Category
}

func (k Key) String() string {
	return k.PatientID + "|" + string(k.Category)
}

// Window 某键的去重窗口快照
type Window struct {
	Timestamps []time.Time // 回看窗口内已触发的报警时间（升序）
	LastFired  time.Time   // 最近一次触发时间（零值表示从未触发）
}

// WindowStore 去重状态存储。Load 会按 now-WindowLookback 惰性裁剪。
type WindowStore interface {
	Load(ctx context.Context, key Key, now time.Time) (Window, error)
	Append(ctx context.Context, key Key, ts time.Time) error
	// Lock 按键加锁，串行化 检查→派发→记录；不同键互不阻塞
	Lock(ctx context.Context, key Key) (func(), error)
	// Evict 清理 idleBefore 之后无活动的窗口，返回清理数量
	Evict(ctx context.Context, idleBefore time.Time) (int, error)
}
