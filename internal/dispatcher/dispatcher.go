package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-sos/internal/metrics"
	"wisefido-sos/internal/models"
	"wisefido-sos/internal/notifier"
	"wisefido-sos/internal/repository"
)

// DefaultResponseTimes 紧急程度 → 响应时限（秒）
var DefaultResponseTimes = map[models.Severity]int{
	models.SeverityCritical: 60,
	models.SeverityHigh:     300,
	models.SeverityMedium:   900,
}

// Config 派发配置
type Config struct {
	Enabled         bool                    // 关闭时只落库不通知（非生产环境默认）
	ResponseTimes   map[models.Severity]int // 为空时使用 DefaultResponseTimes
	NotifyTimeout   time.Duration           // 单个接收人的超时
	DispatchTimeout time.Duration           // 整次派发的超时
}

// Dispatcher 报警派发：生成报警记录、通知护理人员、持久化（一次写入，不再修改）
type Dispatcher struct {
	alerts    repository.AlertStore
	directory repository.PatientDirectory
	notifier  notifier.Notifier
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewDispatcher 创建派发器
func NewDispatcher(
	alerts repository.AlertStore,
	directory repository.PatientDirectory,
	n notifier.Notifier,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if len(cfg.ResponseTimes) == 0 {
		cfg.ResponseTimes = DefaultResponseTimes
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 3 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 5 * time.Second
	}
	return &Dispatcher{
		alerts:    alerts,
		directory: directory,
		notifier:  n,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ResponseTime 某紧急程度的响应时限（秒）
func (d *Dispatcher) ResponseTime(severity models.Severity) int {
	if secs, ok := d.cfg.ResponseTimes[severity]; ok {
		return secs
	}
	return DefaultResponseTimes[severity]
}

// CreateAlert 派发一条已通过去重的报警。
// 通知失败只体现在 NotificationOutcome 上；仅持久化失败时返回 error。
func (d *Dispatcher) CreateAlert(ctx context.Context, patientID string, decision models.AlertDecision, utterance string) (models.AlertRecord, error) {
	record := models.AlertRecord{
		AlertID:             uuid.New().String(),
		PatientID:           patientID,
		Category:            decision.Category,
		Severity:            decision.Severity,
		OriginalUtterance:   utterance,
		PhraseText:          decision.PhraseText,
		Confidence:          decision.Confidence,
		ResponseTimeSeconds: d.ResponseTime(decision.Severity),
		CreatedAt:           d.now().UTC(),
		Visibility:          visibilityFor(decision.Severity),
		Notifications:       []models.NotificationResult{},
	}

	if d.cfg.Enabled {
		record.NotificationOutcome, record.Notifications = d.notifyAll(ctx, record)
	} else {
		record.NotificationOutcome = models.OutcomeDisabled
	}

	if err := d.alerts.CreateAlert(ctx, &record); err != nil {
		d.logger.Error("Failed to persist alert record",
			zap.String("alert_id", record.AlertID),
			zap.String("patient_id", patientID),
			zap.String("category", string(record.Category)),
			zap.String("notification_outcome", string(record.NotificationOutcome)),
			zap.Error(err),
		)
		return record, fmt.Errorf("failed to persist alert: %w", err)
	}

	metrics.IncAlertDispatched(string(record.Category), string(record.Severity), string(record.NotificationOutcome))
	d.logger.Info("Alert dispatched",
		zap.String("alert_id", record.AlertID),
		zap.String("patient_id", patientID),
		zap.String("category", string(record.Category)),
		zap.String("severity", string(record.Severity)),
		zap.Int("response_time_seconds", record.ResponseTimeSeconds),
		zap.String("notification_outcome", string(record.NotificationOutcome)),
		zap.Int("recipients", len(record.Notifications)),
	)
	return record, nil
}

func (d *Dispatcher) notifyAll(ctx context.Context, record models.AlertRecord) (models.DispatchOutcome, []models.NotificationResult) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DispatchTimeout)
	defer cancel()

	caregivers, err := d.directory.GetCaregivers(ctx, record.PatientID)
	if err != nil {
		d.logger.Error("Caregiver lookup failed, dispatching with zero recipients",
			zap.String("alert_id", record.AlertID),
			zap.String("patient_id", record.PatientID),
			zap.Error(err),
		)
		return models.OutcomeNoRecipients, []models.NotificationResult{}
	}
	if len(caregivers) == 0 {
		d.logger.Warn("No caregivers configured for patient",
			zap.String("alert_id", record.AlertID),
			zap.String("patient_id", record.PatientID),
		)
		return models.OutcomeNoRecipients, []models.NotificationResult{}
	}

	msg, err := notifier.Render(d.templateData(ctx, record))
	if err != nil {
		// 模板只依赖已校验的紧急程度，这里失败意味着配置错误
		d.logger.Error("Failed to render notification", zap.String("alert_id", record.AlertID), zap.Error(err))
		msg = notifier.Message{
			AlertID:   record.AlertID,
			PatientID: record.PatientID,
			Severity:  record.Severity,
			Category:  record.Category,
			Subject:   fmt.Sprintf("[%s] %s alert", record.Severity, record.Category),
			Body:      fmt.Sprintf("%s alert for patient %s. Ref: %s", record.Category, record.PatientID, record.AlertID),
			CreatedAt: record.CreatedAt,
		}
	}

	results := make([]models.NotificationResult, len(caregivers))
	var wg sync.WaitGroup
	for i, contact := range caregivers {
		wg.Add(1)
		go func(i int, contact models.CaregiverContact) {
			defer wg.Done()
			results[i] = d.notifyOne(ctx, contact, msg, record.Severity)
		}(i, contact)
	}
	wg.Wait()

	return aggregate(results), results
}

// notifyOne 单个接收人的通知，超时即判失败，不等待通道返回
func (d *Dispatcher) notifyOne(ctx context.Context, contact models.CaregiverContact, msg notifier.Message, severity models.Severity) models.NotificationResult {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
	defer cancel()

	done := make(chan models.NotificationResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- models.NotificationResult{ContactID: contact.ContactID, Error: fmt.Sprintf("notifier panic: %v", r)}
			}
		}()
		done <- d.notifier.Notify(ctx, contact, msg, severity)
	}()

	select {
	case res := <-done:
		if !res.Delivered {
			d.logger.Warn("Caregiver notification failed",
				zap.String("alert_id", msg.AlertID),
				zap.String("contact_id", contact.ContactID),
				zap.String("error", res.Error),
			)
		}
		return res
	case <-ctx.Done():
		d.logger.Warn("Caregiver notification timed out",
			zap.String("alert_id", msg.AlertID),
			zap.String("contact_id", contact.ContactID),
		)
		return models.NotificationResult{ContactID: contact.ContactID, Error: "notification timed out"}
	}
}

func (d *Dispatcher) templateData(ctx context.Context, record models.AlertRecord) notifier.TemplateData {
	data := notifier.TemplateData{
		AlertID:             record.AlertID,
		PatientID:           record.PatientID,
		Severity:            record.Severity,
		Category:            record.Category,
		ResponseTimeSeconds: record.ResponseTimeSeconds,
		CreatedAt:           record.CreatedAt,
	}
	patient, err := d.directory.GetPatient(ctx, record.PatientID)
	if err != nil {
		d.logger.Warn("Patient lookup failed, notifying with patient id only",
			zap.String("patient_id", record.PatientID),
			zap.Error(err),
		)
		return data
	}
	data.PatientName = patient.DisplayName
	data.CallbackNumber = patient.CallbackNumber
	return data
}

func aggregate(results []models.NotificationResult) models.DispatchOutcome {
	delivered := 0
	for _, r := range results {
		if r.Delivered {
			delivered++
		}
	}
	switch {
	case len(results) == 0:
		return models.OutcomeNoRecipients
	case delivered == len(results):
		return models.OutcomeFull
	case delivered > 0:
		return models.OutcomePartial
	default:
		return models.OutcomeNone
	}
}

func visibilityFor(severity models.Severity) string {
	if severity == models.SeverityCritical {
		return models.VisibilityEmergencyContact
	}
	return models.VisibilityCaregivers
}
