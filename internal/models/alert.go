package models

import "time"

// PipelineState 单条语句的处理状态
type PipelineState string

const (
	StateReceived   PipelineState = "RECEIVED"
	StateMatched    PipelineState = "MATCHED"
	StateFiltered   PipelineState = "FILTERED"
	StateDedupCheck PipelineState = "DEDUP_CHECK"
	StateAccepted   PipelineState = "ACCEPTED"
	StateDispatched PipelineState = "DISPATCHED"
	StateRejected   PipelineState = "REJECTED"
	StateNoMatch    PipelineState = "NO_MATCH"
	StateError      PipelineState = "ERROR"
)

// MatchedSpan 命中片段
type MatchedSpan struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// MatchCandidate 匹配候选（每条语句临时产生）
type MatchCandidate struct {
	PhraseID       string      `json:"phrase_id"`
	Phrase         string      `json:"phrase"`
	Language       string      `json:"language"`
	Severity       Severity    `json:"severity"`
	Category       Category    `json:"category"`
	MatchedSpan    MatchedSpan `json:"matched_span"`
	BaseConfidence float64     `json:"base_confidence"`
}

// AlertDecision 报警判定结果
type AlertDecision struct {
	PatientID           string        `json:"patient_id"`
	Category            Category      `json:"category,omitempty"`
	Severity            Severity      `json:"severity,omitempty"`
	PhraseText          string        `json:"phrase_text,omitempty"`
	Confidence          float64       `json:"confidence"`
	ResponseTimeSeconds int           `json:"response_time_seconds"`
	ShouldAlert         bool          `json:"should_alert"`
	Reason              string        `json:"reason"`
	Timestamp           time.Time     `json:"timestamp"`
	State               PipelineState `json:"state"`
	AlertID             string        `json:"alert_id,omitempty"`
}

// PrimaryDecision 多类别判定中的主判定：首个已放行的类别，否则取第一条
func PrimaryDecision(decisions []AlertDecision) AlertDecision {
	for _, d := range decisions {
		if d.ShouldAlert {
			return d
		}
	}
	if len(decisions) == 0 {
		return AlertDecision{State: StateError}
	}
	return decisions[0]
}

// DispatchOutcome 通知汇总结果
type DispatchOutcome string

const (
	OutcomeFull         DispatchOutcome = "full"
	OutcomePartial      DispatchOutcome = "partial"
	OutcomeNone         DispatchOutcome = "none"
	OutcomeNoRecipients DispatchOutcome = "no_recipients"
	OutcomeDisabled     DispatchOutcome = "disabled"
)

// Visibility 报警可见范围
const (
	VisibilityCaregivers       = "caregivers"
	VisibilityEmergencyContact = "emergency_contacts"
)

// NotificationResult 单个接收人的通知结果
type NotificationResult struct {
	ContactID string   `json:"contact_id"`
	Channels  []string `json:"channels"`
	Delivered bool     `json:"delivered"`
	Error     string   `json:"error,omitempty"`
}

// AlertRecord 持久化报警记录（对应 sos_alerts 表），创建后不再修改
type AlertRecord struct {
	AlertID             string               `json:"alert_id" db:"alert_id"`
	PatientID           string               `json:"patient_id" db:"patient_id"`
	Category            Category             `json:"category" db:"category"`
	Severity            Severity             `json:"severity" db:"severity"`
	OriginalUtterance   string               `json:"original_utterance" db:"original_utterance"`
	PhraseText          string               `json:"phrase_text" db:"phrase_text"`
	Confidence          float64              `json:"confidence" db:"confidence"`
	ResponseTimeSeconds int                  `json:"response_time_seconds" db:"response_time_seconds"`
	CreatedAt           time.Time            `json:"created_at" db:"created_at"`
	NotificationOutcome DispatchOutcome      `json:"notification_outcome" db:"notification_outcome"`
	Visibility          string               `json:"visibility" db:"visibility"`
	Notifications       []NotificationResult `json:"notifications" db:"notifications"` // JSONB
}
