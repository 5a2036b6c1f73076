package corpus

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"
	"wisefido-sos/internal/repository"
)

// DefaultCacheTTL 规则缓存默认有效期
const DefaultCacheTTL = 5 * time.Minute

// staleRetryAfter 存储不可用时旧快照的续期时长，期间不再访问存储
const staleRetryAfter = 30 * time.Second

// Snapshot 某语言规则的不可变快照，发布后只读
type Snapshot struct {
	Language  string               // 实际使用的规则语言
	Requested string               // 调用方请求的语言
	Rules     []*models.PhraseRule // 已编译、按 phrase_id 排序
	LoadedAt  time.Time
	Fallback  bool // 是否回退到英文规则
}

// Cache 短语规则缓存：按语言缓存快照，TTL 到期后整体替换
type Cache struct {
	store  repository.PhraseStore
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]*Snapshot
	group   singleflight.Group
}

// NewCache 创建规则缓存，ttl <= 0 时使用默认 5 分钟
func NewCache(store repository.PhraseStore, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*Snapshot),
	}
}

// GetRulesForLanguage 获取某语言的启用规则（无规则时回退英文）
func (c *Cache) GetRulesForLanguage(ctx context.Context, language string) []*models.PhraseRule {
	return c.Resolve(ctx, language).Rules
}

// Resolve 解析语言并返回规则快照；存储不可用时返回最近一次成功加载的快照
func (c *Cache) Resolve(ctx context.Context, language string) *Snapshot {
	requested := language
	lang := models.NormalizeLanguage(language)
	if lang == "" {
		lang = models.DefaultLanguage
	}

	snap := c.load(ctx, lang)
	if len(snap.Rules) > 0 || lang == models.DefaultLanguage {
		return withRequested(snap, requested, lang != models.NormalizeLanguage(requested))
	}

	c.logger.Debug("No phrases for language, falling back to English",
		zap.String("language", lang),
	)
	return withRequested(c.load(ctx, models.DefaultLanguage), requested, true)
}

// Invalidate 丢弃某语言的快照（下次访问时重新加载）
func (c *Cache) Invalidate(language string) {
	lang := models.NormalizeLanguage(language)
	c.mu.Lock()
	if lang == "" {
		c.entries = make(map[string]*Snapshot)
	} else {
		delete(c.entries, lang)
	}
	c.mu.Unlock()
}

func withRequested(snap *Snapshot, requested string, fallback bool) *Snapshot {
	if snap.Requested == requested && snap.Fallback == fallback {
		return snap
	}
	cp := *snap
	cp.Requested = requested
	cp.Fallback = fallback
	return &cp
}

func (c *Cache) load(ctx context.Context, lang string) *Snapshot {
	c.mu.RLock()
	entry := c.entries[lang]
	c.mu.RUnlock()

	if entry != nil && c.now().Sub(entry.LoadedAt) < c.ttl {
		return entry
	}

	v, _, _ := c.group.Do(lang, func() (interface{}, error) {
		return c.refresh(ctx, lang, entry), nil
	})
	return v.(*Snapshot)
}

// republish 以旧快照续期 staleRetryAfter（不超过 TTL）后重新发布
func (c *Cache) republish(lang string, previous *Snapshot) *Snapshot {
	retry := staleRetryAfter
	if retry > c.ttl {
		retry = c.ttl
	}
	cp := *previous
	cp.LoadedAt = c.now().Add(retry - c.ttl)

	c.mu.Lock()
	// 并发 Invalidate 或成功刷新后不覆盖
	if c.entries[lang] == previous {
		c.entries[lang] = &cp
	}
	c.mu.Unlock()
	return &cp
}

func (c *Cache) refresh(ctx context.Context, lang string, previous *Snapshot) *Snapshot {
	rules, err := c.store.ListActivePhrases(ctx, lang)
	if err != nil {
		metrics.IncPhraseCacheRefresh("error")
		if previous != nil {
			c.logger.Warn("Phrase store unavailable, serving last good snapshot",
				zap.String("language", lang),
				zap.Time("snapshot_loaded_at", previous.LoadedAt),
				zap.Error(err),
			)
			return c.republish(lang, previous)
		}
		c.logger.Error("Phrase store unavailable and no snapshot cached",
			zap.String("language", lang),
			zap.Error(err),
		)
		return &Snapshot{Language: lang, Requested: lang, LoadedAt: c.now()}
	}

	compiled := make([]*models.PhraseRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		// 写入时已校验；此处兜底跳过被直接改库导致的无效规则
		if err := rule.Validate(); err != nil {
			c.logger.Error("Skipping invalid phrase rule",
				zap.String("phrase_id", rule.ID),
				zap.Error(err),
			)
			continue
		}
		compiled = append(compiled, rule)
	}
	sort.Slice(compiled, func(i, j int) bool { return compiled[i].ID < compiled[j].ID })

	snap := &Snapshot{
		Language:  lang,
		Requested: lang,
		Rules:     compiled,
		LoadedAt:  c.now(),
	}

	c.mu.Lock()
	c.entries[lang] = snap
	c.mu.Unlock()

	metrics.IncPhraseCacheRefresh("success")
	c.logger.Debug("Phrase cache refreshed",
		zap.String("language", lang),
		zap.Int("rule_count", len(compiled)),
	)
	return snap
}
