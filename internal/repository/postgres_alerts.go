package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
)

// PostgresAlertRepository 报警记录仓库（sos_alerts 表，只插入不更新）
type PostgresAlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlertRepository 创建报警记录仓库
func NewPostgresAlertRepository(db *sql.DB, logger *zap.Logger) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db, logger: logger}
}

var _ AlertStore = (*PostgresAlertRepository)(nil)

// CreateAlert 插入报警记录
func (r *PostgresAlertRepository) CreateAlert(ctx context.Context, record *models.AlertRecord) error {
	if record == nil {
		return fmt.Errorf("alert record is required")
	}
	if record.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if record.AlertID == "" {
		record.AlertID = uuid.New().String()
	}

	notifications := record.Notifications
	if notifications == nil {
		notifications = []models.NotificationResult{}
	}
	notificationsJSON, err := json.Marshal(notifications)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}

	query := `
		INSERT INTO sos_alerts (
			alert_id,
			patient_id,
			category,
			severity,
			original_utterance,
			phrase_text,
			confidence,
			response_time_seconds,
			notification_outcome,
			visibility,
			notifications,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.AlertID,
		record.PatientID,
		string(record.Category),
		string(record.Severity),
		record.OriginalUtterance,
		record.PhraseText,
		record.Confidence,
		record.ResponseTimeSeconds,
		string(record.NotificationOutcome),
		record.Visibility,
		string(notificationsJSON),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// ListRecentAlerts 查询患者最近的报警记录
func (r *PostgresAlertRepository) ListRecentAlerts(ctx context.Context, patientID string, limit int) ([]*models.AlertRecord, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT
			alert_id::text,
			patient_id,
			category,
			severity,
			original_utterance,
			COALESCE(phrase_text, ''),
			confidence,
			response_time_seconds,
			notification_outcome,
			visibility,
			COALESCE(notifications, '[]'::jsonb),
			created_at
		FROM sos_alerts
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var records []*models.AlertRecord
	for rows.Next() {
		var rec models.AlertRecord
		var category, severity, outcome string
		var notificationsRaw []byte
		if err := rows.Scan(
			&rec.AlertID,
			&rec.PatientID,
			&category,
			&severity,
			&rec.OriginalUtterance,
			&rec.PhraseText,
			&rec.Confidence,
			&rec.ResponseTimeSeconds,
			&outcome,
			&rec.Visibility,
			&notificationsRaw,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		rec.Category = models.Category(category)
		rec.Severity = models.Severity(severity)
		rec.NotificationOutcome = models.DispatchOutcome(outcome)
		if len(notificationsRaw) > 0 {
			if err := json.Unmarshal(notificationsRaw, &rec.Notifications); err != nil {
				r.logger.Warn("Failed to unmarshal alert notifications",
					zap.String("alert_id", rec.AlertID),
					zap.Error(err),
				)
			}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return records, nil
}
