package matcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"wisefido-sos/internal/corpus"
	"wisefido-sos/internal/models"
)

// RuleSource 规则来源（corpus.Cache 实现）
type RuleSource interface {
	Resolve(ctx context.Context, language string) *corpus.Snapshot
}

// UsageSink 规则命中上报（corpus.UsageRecorder 实现），必须非阻塞
type UsageSink interface {
	Record(phraseID string, at time.Time) bool
}

// Engine 匹配引擎：对语句逐条评估当前语言的全部启用规则
type Engine struct {
	rules  RuleSource
	usage  UsageSink
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine 创建匹配引擎，usage 可为 nil
func NewEngine(rules RuleSource, usage UsageSink, logger *zap.Logger) *Engine {
	return &Engine{
		rules:  rules,
		usage:  usage,
		logger: logger,
		now:    time.Now,
	}
}

// Match 返回全部命中规则的候选（非首个命中即止），按置信度、紧急程度、phrase_id 排序
func (e *Engine) Match(ctx context.Context, utterance, language string) []models.MatchCandidate {
	if strings.TrimSpace(utterance) == "" {
		return nil
	}

	snap := e.rules.Resolve(ctx, language)
	candidates := MatchRules(snap.Rules, utterance, snap.Language)

	if len(candidates) > 0 {
		if snap.Fallback {
			e.logger.Debug("Matched using fallback language rules",
				zap.String("requested_language", snap.Requested),
				zap.String("language", snap.Language),
			)
		}
		if e.usage != nil {
			at := e.now()
			for _, c := range candidates {
				e.usage.Record(c.PhraseID, at)
			}
		}
	}
	return candidates
}

// MatchRules 纯函数：对给定规则集评估语句
func MatchRules(rules []*models.PhraseRule, utterance, language string) []models.MatchCandidate {
	var candidates []models.MatchCandidate
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		re := rule.Compiled()
		if re == nil {
			continue
		}
		loc := re.FindStringIndex(utterance)
		if loc == nil {
			continue
		}
		candidates = append(candidates, models.MatchCandidate{
			PhraseID: rule.ID,
			Phrase:   rule.Pattern,
			Language: language,
			Severity: rule.Severity,
			Category: rule.Category,
			MatchedSpan: models.MatchedSpan{
				Text:  utterance[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			},
			BaseConfidence: BaseConfidence(rule.Severity, rule.Category),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.BaseConfidence != b.BaseConfidence {
			return a.BaseConfidence > b.BaseConfidence
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.PhraseID < b.PhraseID
	})
	return candidates
}
