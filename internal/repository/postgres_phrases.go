package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
)

// PostgresPhraseRepository 短语规则仓库（sos_phrases 表）
type PostgresPhraseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPhraseRepository 创建短语规则仓库
func NewPostgresPhraseRepository(db *sql.DB, logger *zap.Logger) *PostgresPhraseRepository {
	return &PostgresPhraseRepository{db: db, logger: logger}
}

var _ PhraseStore = (*PostgresPhraseRepository)(nil)

const phraseColumns = `
			phrase_id::text,
			language,
			severity,
			category,
			pattern,
			is_active,
			COALESCE(description, ''),
			usage_count,
			last_triggered_at,
			version,
			created_at,
			updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPhrase(row rowScanner) (*models.PhraseRule, error) {
	var rule models.PhraseRule
	var severity, category string
	var lastTriggered sql.NullTime
	if err := row.Scan(
		&rule.ID,
		&rule.Language,
		&severity,
		&category,
		&rule.Pattern,
		&rule.IsActive,
		&rule.Description,
		&rule.UsageCount,
		&lastTriggered,
		&rule.Version,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rule.Severity = models.Severity(severity)
	rule.Category = models.Category(category)
	if lastTriggered.Valid {
		rule.LastTriggeredAt = &lastTriggered.Time
	}
	return &rule, nil
}

// ListActivePhrases 查询某语言的全部启用规则
func (r *PostgresPhraseRepository) ListActivePhrases(ctx context.Context, language string) ([]*models.PhraseRule, error) {
	if language == "" {
		return nil, fmt.Errorf("language is required")
	}
	return r.ListPhrases(ctx, PhraseFilters{Language: language})
}

// ListPhrases 按条件查询规则
func (r *PostgresPhraseRepository) ListPhrases(ctx context.Context, filters PhraseFilters) ([]*models.PhraseRule, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filters.Language != "" {
		conditions = append(conditions, fmt.Sprintf("language = $%d", argIndex))
		args = append(args, filters.Language)
		argIndex++
	}
	if filters.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filters.Category)
		argIndex++
	}
	if !filters.IncludeInactive {
		conditions = append(conditions, "is_active = TRUE")
	}

	query := "SELECT" + phraseColumns + "\n\t\tFROM sos_phrases"
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\n\t\tORDER BY phrase_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list phrases: %w", err)
	}
	defer rows.Close()

	var rules []*models.PhraseRule
	for rows.Next() {
		rule, err := scanPhrase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan phrase: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate phrases: %w", err)
	}
	return rules, nil
}

// GetPhrase 根据 phrase_id 获取规则
func (r *PostgresPhraseRepository) GetPhrase(ctx context.Context, phraseID string) (*models.PhraseRule, error) {
	if phraseID == "" {
		return nil, fmt.Errorf("phrase_id is required")
	}

	query := "SELECT" + phraseColumns + "\n\t\tFROM sos_phrases\n\t\tWHERE phrase_id = $1"
	rule, err := scanPhrase(r.db.QueryRowContext(ctx, query, phraseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: phrase_id=%s", models.ErrPhraseNotFound, phraseID)
		}
		return nil, fmt.Errorf("failed to get phrase: %w", err)
	}
	return rule, nil
}

// CreatePhrase 创建规则（写入前校验正则）
func (r *PostgresPhraseRepository) CreatePhrase(ctx context.Context, rule *models.PhraseRule) error {
	if rule == nil {
		return fmt.Errorf("phrase is required")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.Version = 1

	query := `
		INSERT INTO sos_phrases (
			phrase_id,
			language,
			severity,
			category,
			pattern,
			is_active,
			description,
			usage_count,
			version,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Language,
		string(rule.Severity),
		string(rule.Category),
		rule.Pattern,
		rule.IsActive,
		rule.Description,
		rule.Version,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create phrase: %w", err)
	}

	r.logger.Info("Phrase created",
		zap.String("phrase_id", rule.ID),
		zap.String("language", rule.Language),
		zap.String("category", string(rule.Category)),
	)
	return nil
}

// UpdatePhrase 更新规则（写入前校验正则，version 自增）
func (r *PostgresPhraseRepository) UpdatePhrase(ctx context.Context, rule *models.PhraseRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("phrase_id is required")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sos_phrases
		SET language = $2,
			severity = $3,
			category = $4,
			pattern = $5,
			is_active = $6,
			description = $7,
			version = version + 1,
			updated_at = $8
		WHERE phrase_id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Language,
		string(rule.Severity),
		string(rule.Category),
		rule.Pattern,
		rule.IsActive,
		rule.Description,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update phrase: %w", err)
	}
	return requireAffected(result, rule.ID)
}

// DeactivatePhrase 停用规则（不物理删除，保留使用统计）
func (r *PostgresPhraseRepository) DeactivatePhrase(ctx context.Context, phraseID string) error {
	if phraseID == "" {
		return fmt.Errorf("phrase_id is required")
	}
	query := `
		UPDATE sos_phrases
		SET is_active = FALSE,
			version = version + 1,
			updated_at = $2
		WHERE phrase_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, phraseID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate phrase: %w", err)
	}
	return requireAffected(result, phraseID)
}

// IncrementUsage 累加使用次数（最终一致，不要求事务）
func (r *PostgresPhraseRepository) IncrementUsage(ctx context.Context, phraseID string, delta int64, triggeredAt time.Time) error {
	query := `
		UPDATE sos_phrases
		SET usage_count = usage_count + $2,
			last_triggered_at = GREATEST(COALESCE(last_triggered_at, $3), $3)
		WHERE phrase_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, phraseID, delta, triggeredAt); err != nil {
		return fmt.Errorf("failed to increment phrase usage: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result, phraseID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: phrase_id=%s", models.ErrPhraseNotFound, phraseID)
	}
	return nil
}
