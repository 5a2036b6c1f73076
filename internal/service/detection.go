package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"wisefido-sos/internal/contextfilter"
	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"
)

// 判定原因
const (
	ReasonEmptyUtterance = "empty utterance"
	ReasonNoMatch        = "no emergency phrase matched"
	ReasonInternalError  = "internal error"
)

// lockTimeout 等待同键去重锁的上限（持锁方包含一次限时派发）
const lockTimeout = 10 * time.Second

// LanguageResolver 患者首选语言
type LanguageResolver interface {
	GetPreferredLanguage(ctx context.Context, patientID string) (string, error)
}

// Matcher 匹配引擎
type Matcher interface {
	Match(ctx context.Context, utterance, language string) []models.MatchCandidate
}

// ContextFilter 语境过滤
type ContextFilter interface {
	Partition(candidates []models.MatchCandidate, utterance string) ([]models.MatchCandidate, []contextfilter.Rejection)
}

// Deduplicator 去重控制
type Deduplicator interface {
	Lock(ctx context.Context, patientID string, category models.Category) (func(), error)
	ShouldAlert(ctx context.Context, patientID string, category models.Category, utterance string, ts time.Time) (bool, string)
	Record(ctx context.Context, patientID string, category models.Category, ts time.Time) error
}

// AlertCreator 报警派发
type AlertCreator interface {
	CreateAlert(ctx context.Context, patientID string, decision models.AlertDecision, utterance string) (models.AlertRecord, error)
	ResponseTime(severity models.Severity) int
}

// DetectionService 紧急语句检测：匹配 → 语境过滤 → 去重 → 派发
type DetectionService struct {
	languages  LanguageResolver
	matcher    Matcher
	filter     ContextFilter // nil 表示关闭语境过滤
	dedup      Deduplicator
	dispatcher AlertCreator
	logger     *zap.Logger
	now        func() time.Time
}

// NewDetectionService 创建检测服务，filter 为 nil 时跳过语境过滤
func NewDetectionService(
	languages LanguageResolver,
	matcher Matcher,
	filter ContextFilter,
	dedup Deduplicator,
	dispatcher AlertCreator,
	logger *zap.Logger,
) *DetectionService {
	return &DetectionService{
		languages:  languages,
		matcher:    matcher,
		filter:     filter,
		dedup:      dedup,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessUtterance 处理一条最终转写语句，返回主判定（已派发的最高置信度类别优先）。
// timestamp 为 Unix 毫秒，0 表示当前时间。不会 panic，也不会返回错误。
func (s *DetectionService) ProcessUtterance(ctx context.Context, patientID, text string, timestamp int64) models.AlertDecision {
	return models.PrimaryDecision(s.Detect(ctx, patientID, text, timestamp))
}

// Detect 处理语句并返回每个类别的判定（至少一条）
func (s *DetectionService) Detect(ctx context.Context, patientID, text string, timestamp int64) (decisions []models.AlertDecision) {
	start := time.Now()
	ts := s.resolveTimestamp(timestamp)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while processing utterance",
				zap.String("patient_id", patientID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			decisions = []models.AlertDecision{{
				PatientID: patientID,
				Reason:    ReasonInternalError,
				Timestamp: ts,
				State:     models.StateError,
			}}
		}
		metrics.ObserveUtterance(string(terminalState(decisions)), time.Since(start))
	}()

	// 通话结束不应中断已进入流水线的语句
	ctx = context.WithoutCancel(ctx)
	return s.detect(ctx, patientID, text, ts)
}

func (s *DetectionService) detect(ctx context.Context, patientID, text string, ts time.Time) []models.AlertDecision {
	base := models.AlertDecision{PatientID: patientID, Timestamp: ts, State: models.StateReceived}

	if strings.TrimSpace(text) == "" {
		base.State = models.StateNoMatch
		base.Reason = ReasonEmptyUtterance
		return []models.AlertDecision{base}
	}

	language, err := s.languages.GetPreferredLanguage(ctx, patientID)
	if err != nil {
		s.logger.Warn("Preferred language lookup failed, using default rules",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		language = models.DefaultLanguage
	}

	candidates := s.matcher.Match(ctx, text, language)
	if len(candidates) == 0 {
		base.State = models.StateNoMatch
		base.Reason = ReasonNoMatch
		return []models.AlertDecision{base}
	}

	if s.filter != nil {
		kept, dropped := s.filter.Partition(candidates, text)
		for _, rej := range dropped {
			for _, sup := range rej.Verdict.Suppressors {
				metrics.IncSuppressed(string(sup))
			}
			s.logger.Info("Candidate suppressed by context filter",
				zap.String("patient_id", patientID),
				zap.String("category", string(rej.Candidate.Category)),
				zap.String("phrase_id", rej.Candidate.PhraseID),
				zap.String("reason", rej.Verdict.Reason()),
			)
		}
		if len(kept) == 0 {
			top := dropped[0]
			d := s.fromCandidate(base, top.Candidate)
			d.State = models.StateFiltered
			d.Reason = top.Verdict.Reason()
			return []models.AlertDecision{d}
		}
		candidates = kept
	}

	// 同类别只取置信度最高的候选竞争去重名额（候选已按置信度降序）
	var decisions []models.AlertDecision
	seen := make(map[models.Category]bool)
	for _, c := range candidates {
		if seen[c.Category] {
			continue
		}
		seen[c.Category] = true
		decisions = append(decisions, s.evaluate(ctx, s.fromCandidate(base, c), text))
	}
	return decisions
}

// evaluate 单个类别：加锁 → 去重检查 → 派发 → 记录
func (s *DetectionService) evaluate(ctx context.Context, d models.AlertDecision, text string) models.AlertDecision {
	d.State = models.StateDedupCheck

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	unlock, err := s.dedup.Lock(lockCtx, d.PatientID, d.Category)
	cancel()
	if err != nil {
		s.logger.Error("Failed to acquire dedup lock, continuing unlocked",
			zap.String("patient_id", d.PatientID),
			zap.String("category", string(d.Category)),
			zap.Error(err),
		)
		unlock = func() {}
	}
	defer unlock()

	accept, reason := s.dedup.ShouldAlert(ctx, d.PatientID, d.Category, text, d.Timestamp)
	if !accept {
		d.State = models.StateRejected
		d.Reason = reason
		return d
	}
	d.ShouldAlert = true
	d.State = models.StateAccepted
	d.Reason = reason

	record, err := s.dispatcher.CreateAlert(ctx, d.PatientID, d, text)
	d.AlertID = record.AlertID
	notified := record.NotificationOutcome == models.OutcomeFull || record.NotificationOutcome == models.OutcomePartial
	if err != nil && !notified {
		// 派发失败不占用去重名额
		d.State = models.StateError
		d.Reason = fmt.Sprintf("alert dispatch failed: %v", err)
		return d
	}

	if err := s.dedup.Record(ctx, d.PatientID, d.Category, d.Timestamp); err != nil {
		s.logger.Error("Failed to record dispatched alert in dedup window",
			zap.String("patient_id", d.PatientID),
			zap.String("category", string(d.Category)),
			zap.String("alert_id", record.AlertID),
			zap.Error(err),
		)
	}

	d.State = models.StateDispatched
	d.Reason = fmt.Sprintf("alert dispatched (notification outcome: %s)", record.NotificationOutcome)
	if err != nil {
		d.Reason += "; alert record not persisted"
	}
	return d
}

func (s *DetectionService) fromCandidate(base models.AlertDecision, c models.MatchCandidate) models.AlertDecision {
	base.Category = c.Category
	base.Severity = c.Severity
	base.PhraseText = c.MatchedSpan.Text
	base.Confidence = c.BaseConfidence
	base.ResponseTimeSeconds = s.dispatcher.ResponseTime(c.Severity)
	base.State = models.StateMatched
	return base
}

func (s *DetectionService) resolveTimestamp(ms int64) time.Time {
	if ms <= 0 {
		return s.now()
	}
	return time.UnixMilli(ms)
}

// terminalState 多类别时以已派发为准
func terminalState(decisions []models.AlertDecision) models.PipelineState {
	if len(decisions) == 0 {
		return models.StateError
	}
	for _, d := range decisions {
		if d.State == models.StateDispatched {
			return d.State
		}
	}
	return decisions[0].State
}
