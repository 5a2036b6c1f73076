package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wisefido-sos/internal/models"
)

// MemoryPhraseRepository 内存短语仓库：DB 未就绪时联调 / 单元测试使用
type MemoryPhraseRepository struct {
	mu      sync.RWMutex
	phrases map[string]models.PhraseRule
}

func NewMemoryPhraseRepository() *MemoryPhraseRepository {
	return &MemoryPhraseRepository{phrases: map[string]models.PhraseRule{}}
}

var _ PhraseStore = (*MemoryPhraseRepository)(nil)

func (r *MemoryPhraseRepository) ListActivePhrases(ctx context.Context, language string) ([]*models.PhraseRule, error) {
	return r.ListPhrases(ctx, PhraseFilters{Language: language})
}

func (r *MemoryPhraseRepository) ListPhrases(_ context.Context, filters PhraseFilters) ([]*models.PhraseRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.PhraseRule, 0, len(r.phrases))
	for _, p := range r.phrases {
		if filters.Language != "" && p.Language != filters.Language {
			continue
		}
		if filters.Category != "" && string(p.Category) != filters.Category {
			continue
		}
		if !filters.IncludeInactive && !p.IsActive {
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryPhraseRepository) GetPhrase(_ context.Context, phraseID string) (*models.PhraseRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.phrases[phraseID]
	if !ok {
		return nil, fmt.Errorf("%w: phrase_id=%s", models.ErrPhraseNotFound, phraseID)
	}
	return &p, nil
}

func (r *MemoryPhraseRepository) CreatePhrase(_ context.Context, rule *models.PhraseRule) error {
	if rule == nil {
		return fmt.Errorf("phrase is required")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt, rule.UpdatedAt, rule.Version = now, now, 1
	r.phrases[rule.ID] = *rule
	return nil
}

func (r *MemoryPhraseRepository) UpdatePhrase(_ context.Context, rule *models.PhraseRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("phrase_id is required")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.phrases[rule.ID]
	if !ok {
		return fmt.Errorf("%w: phrase_id=%s", models.ErrPhraseNotFound, rule.ID)
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UsageCount = existing.UsageCount
	rule.LastTriggeredAt = existing.LastTriggeredAt
	rule.Version = existing.Version + 1
	rule.UpdatedAt = time.Now().UTC()
	r.phrases[rule.ID] = *rule
	return nil
}

func (r *MemoryPhraseRepository) DeactivatePhrase(_ context.Context, phraseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.phrases[phraseID]
	if !ok {
		return fmt.Errorf("%w: phrase_id=%s", models.ErrPhraseNotFound, phraseID)
	}
	p.IsActive = false
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	r.phrases[phraseID] = p
	return nil
}

func (r *MemoryPhraseRepository) IncrementUsage(_ context.Context, phraseID string, delta int64, triggeredAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.phrases[phraseID]
	if !ok {
		return fmt.Errorf("%w: phrase_id=%s", models.ErrPhraseNotFound, phraseID)
	}
	p.UsageCount += delta
	if p.LastTriggeredAt == nil || triggeredAt.After(*p.LastTriggeredAt) {
		t := triggeredAt
		p.LastTriggeredAt = &t
	}
	r.phrases[phraseID] = p
	return nil
}

// MemoryAlertRepository 内存报警记录仓库
type MemoryAlertRepository struct {
	mu      sync.RWMutex
	records []models.AlertRecord
}

func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{}
}

var _ AlertStore = (*MemoryAlertRepository)(nil)

func (r *MemoryAlertRepository) CreateAlert(_ context.Context, record *models.AlertRecord) error {
	if record == nil {
		return fmt.Errorf("alert record is required")
	}
	if record.PatientID == "" {
		return fmt.Errorf("patient_id is required")
	}
	if record.AlertID == "" {
		record.AlertID = uuid.New().String()
	}
	r.mu.Lock()
	r.records = append(r.records, *record)
	r.mu.Unlock()
	return nil
}

func (r *MemoryAlertRepository) ListRecentAlerts(_ context.Context, patientID string, limit int) ([]*models.AlertRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.AlertRecord
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if r.records[i].PatientID == patientID {
			rec := r.records[i]
			out = append(out, &rec)
		}
	}
	return out, nil
}

// MemoryPatientDirectory 内存患者目录
type MemoryPatientDirectory struct {
	mu         sync.RWMutex
	patients   map[string]models.Patient
	caregivers map[string][]models.CaregiverContact
}

func NewMemoryPatientDirectory() *MemoryPatientDirectory {
	return &MemoryPatientDirectory{
		patients:   map[string]models.Patient{},
		caregivers: map[string][]models.CaregiverContact{},
	}
}

var _ PatientDirectory = (*MemoryPatientDirectory)(nil)

// UpsertPatient 写入患者及其护理人员
func (d *MemoryPatientDirectory) UpsertPatient(p models.Patient, caregivers ...models.CaregiverContact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[p.PatientID] = p
	d.caregivers[p.PatientID] = append([]models.CaregiverContact(nil), caregivers...)
}

func (d *MemoryPatientDirectory) GetPatient(_ context.Context, patientID string) (*models.Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[patientID]
	if !ok {
		return nil, fmt.Errorf("patient not found: %s", patientID)
	}
	return &p, nil
}

func (d *MemoryPatientDirectory) GetPreferredLanguage(ctx context.Context, patientID string) (string, error) {
	p, err := d.GetPatient(ctx, patientID)
	if err != nil {
		return "", err
	}
	return p.PreferredLanguage, nil
}

func (d *MemoryPatientDirectory) GetCaregivers(_ context.Context, patientID string) ([]models.CaregiverContact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.patients[patientID]; !ok {
		return nil, fmt.Errorf("patient not found: %s", patientID)
	}
	return append([]models.CaregiverContact(nil), d.caregivers[patientID]...), nil
}
