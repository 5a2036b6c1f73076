package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"wisefido-sos/internal/models"
	"wisefido-sos/internal/repository"
)

// SeedFile 短语种子文件结构
//
//	version: 1
//	phrases:
//	  en:
//	    - id: en-med-heart-attack
//	      severity: CRITICAL
//	      category: Medical
//	      pattern: '\bheart attack\b'
type SeedFile struct {
	Version int                            `yaml:"version"`
	Phrases map[string][]models.PhraseRule `yaml:"phrases"`
}

// LoadSeedFile 读取并校验种子文件
func LoadSeedFile(path string) ([]*models.PhraseRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed 解析种子内容；任何一条规则无效则整体拒绝
func ParseSeed(data []byte) ([]*models.PhraseRule, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse phrase seed file: %w", err)
	}
	if len(file.Phrases) == 0 {
		return nil, fmt.Errorf("phrase seed file has no phrases")
	}

	languages := make([]string, 0, len(file.Phrases))
	for lang := range file.Phrases {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	seen := make(map[string]bool)
	var rules []*models.PhraseRule
	for _, lang := range languages {
		for i := range file.Phrases[lang] {
			rule := file.Phrases[lang][i]
			rule.Language = lang
			rule.IsActive = true
			if rule.ID == "" {
				rule.ID = fmt.Sprintf("%s-%d", lang, i+1)
			}
			if seen[rule.ID] {
				return nil, fmt.Errorf("%w: duplicate phrase id %s", models.ErrInvalidPhrase, rule.ID)
			}
			seen[rule.ID] = true
			if err := rule.Validate(); err != nil {
				return nil, fmt.Errorf("phrase %s: %w", rule.ID, err)
			}
			rules = append(rules, &rule)
		}
	}
	return rules, nil
}

// Seed 将种子规则写入存储：已存在的 phrase_id 保持不变（不覆盖管理员修改）
func Seed(ctx context.Context, store repository.PhraseStore, rules []*models.PhraseRule) (created int, err error) {
	for _, rule := range rules {
		_, getErr := store.GetPhrase(ctx, rule.ID)
		if getErr == nil {
			continue
		}
		if !errors.Is(getErr, models.ErrPhraseNotFound) {
			return created, fmt.Errorf("failed to check phrase %s: %w", rule.ID, getErr)
		}
		if err := store.CreatePhrase(ctx, rule); err != nil {
			return created, fmt.Errorf("failed to seed phrase %s: %w", rule.ID, err)
		}
		created++
	}
	return created, nil
}
