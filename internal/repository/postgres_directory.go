package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wisefido-sos/internal/models"
)

// PostgresPatientDirectory 患者目录（只读 patients / patient_caregivers 表）
type PostgresPatientDirectory struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPatientDirectory 创建患者目录
func NewPostgresPatientDirectory(db *sql.DB, logger *zap.Logger) *PostgresPatientDirectory {
	return &PostgresPatientDirectory{db: db, logger: logger}
}

var _ PatientDirectory = (*PostgresPatientDirectory)(nil)

// GetPatient 获取患者信息
func (d *PostgresPatientDirectory) GetPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := `
		SELECT
			patient_id,
			COALESCE(display_name, ''),
			COALESCE(preferred_language, 'en'),
			COALESCE(callback_number, '')
		FROM patients
		WHERE patient_id = $1
	`
	var p models.Patient
	err := d.db.QueryRowContext(ctx, query, patientID).Scan(
		&p.PatientID,
		&p.DisplayName,
		&p.PreferredLanguage,
		&p.CallbackNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("patient not found: %s", patientID)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &p, nil
}

// GetPreferredLanguage 获取患者首选语言
func (d *PostgresPatientDirectory) GetPreferredLanguage(ctx context.Context, patientID string) (string, error) {
	p, err := d.GetPatient(ctx, patientID)
	if err != nil {
		return "", err
	}
	return p.PreferredLanguage, nil
}

// GetCaregivers 获取患者的启用中的护理人员，紧急联系人优先
func (d *PostgresPatientDirectory) GetCaregivers(ctx context.Context, patientID string) ([]models.CaregiverContact, error) {
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	query := `
		SELECT
			contact_id::text,
			COALESCE(name, ''),
			COALESCE(role, 'Caregiver'),
			COALESCE(phone, ''),
			COALESCE(email, ''),
			COALESCE(push_topic, ''),
			receive_sms,
			receive_email,
			receive_push,
			is_emergency_contact
		FROM patient_caregivers
		WHERE patient_id = $1
		  AND is_enabled = TRUE
		ORDER BY is_emergency_contact DESC, contact_id
	`
	rows, err := d.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query caregivers: %w", err)
	}
	defer rows.Close()

	var contacts []models.CaregiverContact
	for rows.Next() {
		var c models.CaregiverContact
		if err := rows.Scan(
			&c.ContactID,
			&c.Name,
			&c.Role,
			&c.Phone,
			&c.Email,
			&c.PushTopic,
			&c.ReceiveSMS,
			&c.ReceiveEmail,
			&c.ReceivePush,
			&c.IsEmergencyContact,
		); err != nil {
			return nil, fmt.Errorf("failed to scan caregiver: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate caregivers: %w", err)
	}
	return contacts, nil
}
