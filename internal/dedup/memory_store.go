package dedup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 64

type memoryEntry struct {
	lock       chan struct{} // 容量 1 的信号量：支持 ctx 取消的按键锁
	refs       int           // 持有或等待锁的数量（受 shard.mu 保护）
	timestamps []time.Time
	lastFired  time.Time
	touchedAt  time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[Key]*memoryEntry
}

// MemoryStore 单实例内存去重存储：按 xxhash(patient|category) 分片，锁粒度为单个键
type MemoryStore struct {
	shards []*memoryShard
	now    func() time.Time
}

// NewMemoryStore 创建内存存储，shardCount <= 0 时使用 64
func NewMemoryStore(shardCount int) *MemoryStore {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	s := &MemoryStore{
		shards: make([]*memoryShard, shardCount),
		now:    time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[Key]*memoryEntry)}
	}
	return s
}

var _ WindowStore = (*MemoryStore)(nil)

func (s *MemoryStore) shard(key Key) *memoryShard {
	return s.shards[xxhash.Sum64String(key.String())%uint64(len(s.shards))]
}

// entry 取得或创建条目（调用方需持有 shard.mu）
func (s *MemoryStore) entry(sh *memoryShard, key Key) *memoryEntry {
	e := sh.entries[key]
	if e == nil {
		e = &memoryEntry{lock: make(chan struct{}, 1), touchedAt: s.now()}
		sh.entries[key] = e
	}
	return e
}

func (s *MemoryStore) Load(_ context.Context, key Key, now time.Time) (Window, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := sh.entries[key]
	if e == nil {
		return Window{}, nil
	}
	e.timestamps = prune(e.timestamps, now.Add(-WindowLookback))
	e.touchedAt = s.now()

	return Window{
		Timestamps: append([]time.Time(nil), e.timestamps...),
		LastFired:  e.lastFired,
	}, nil
}

func (s *MemoryStore) Append(_ context.Context, key Key, ts time.Time) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := s.entry(sh, key)
	e.timestamps = append(e.timestamps, ts)
	sort.Slice(e.timestamps, func(i, j int) bool { return e.timestamps[i].Before(e.timestamps[j]) })
	if ts.After(e.lastFired) {
		e.lastFired = ts
	}
	e.touchedAt = s.now()
	return nil
}

func (s *MemoryStore) Lock(ctx context.Context, key Key) (func(), error) {
	sh := s.shard(key)
	sh.mu.Lock()
	e := s.entry(sh, key)
	e.refs++
	sh.mu.Unlock()

	release := func() {
		sh.mu.Lock()
		e.refs--
		e.touchedAt = s.now()
		sh.mu.Unlock()
	}

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.lock
			release()
		})
	}, nil
}

func (s *MemoryStore) Evict(_ context.Context, idleBefore time.Time) (int, error) {
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.refs == 0 && e.touchedAt.Before(idleBefore) {
				delete(sh.entries, key)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted, nil
}

// Len 当前窗口数量
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// prune 丢弃早于 cutoff 的时间戳（timestamps 已升序）
func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(timestamps), func(i int) bool { return !timestamps[i].Before(cutoff) })
	if i == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[i:]...)
}
