package repository

import (
	"context"
	"time"

	"wisefido-sos/internal/models"
)

// PhraseStore 短语规则存储（管理端 CRUD + 运行时只读 + 使用量统计）
type PhraseStore interface {
	ListActivePhrases(ctx context.Context, language string) ([]*models.PhraseRule, error)
	ListPhrases(ctx context.Context, filters PhraseFilters) ([]*models.PhraseRule, error)
	GetPhrase(ctx context.Context, phraseID string) (*models.PhraseRule, error)
	CreatePhrase(ctx context.Context, rule *models.PhraseRule) error
	UpdatePhrase(ctx context.Context, rule *models.PhraseRule) error
	DeactivatePhrase(ctx context.Context, phraseID string) error
	IncrementUsage(ctx context.Context, phraseID string, delta int64, triggeredAt time.Time) error
}

// PhraseFilters 短语查询条件
type PhraseFilters struct {
	Language        string
	Category        string
	IncludeInactive bool
}

// AlertStore 报警记录存储（记录归外部报警子系统所有）
type AlertStore interface {
	CreateAlert(ctx context.Context, record *models.AlertRecord) error
	ListRecentAlerts(ctx context.Context, patientID string, limit int) ([]*models.AlertRecord, error)
}

// PatientDirectory 患者/护理人员目录（只读）
type PatientDirectory interface {
	GetPatient(ctx context.Context, patientID string) (*models.Patient, error)
	GetPreferredLanguage(ctx context.Context, patientID string) (string, error)
	GetCaregivers(ctx context.Context, patientID string) ([]models.CaregiverContact, error)
}
