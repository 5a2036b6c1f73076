package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidPhrase 短语规则校验失败（写入时拒绝）
var ErrInvalidPhrase = errors.New("invalid phrase rule")

// ErrPhraseNotFound 短语规则不存在
var ErrPhraseNotFound = errors.New("phrase rule not found")

// Severity 紧急程度
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Rank 紧急程度排序值（越大越紧急）
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Valid 是否为已知紧急程度
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Category 紧急类别
type Category string

const (
	CategoryMedical  Category = "Medical"
	CategorySafety   Category = "Safety"
	CategoryPhysical Category = "Physical"
	CategoryRequest  Category = "Request"
)

// Categories 全部类别（固定顺序）
var Categories = []Category{CategoryMedical, CategorySafety, CategoryPhysical, CategoryRequest}

// Valid 是否为已知类别
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// DefaultLanguage 回退语言
const DefaultLanguage = "en"

// SupportedLanguages 支持的语言代码
var SupportedLanguages = []string{"en", "es", "fr", "de", "it", "pt", "zh", "ja", "ko", "ru"}

// NormalizeLanguage 规范化语言代码（"en-US" -> "en"），未知语言返回空字符串
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	for _, known := range SupportedLanguages {
		if lang == known {
			return lang
		}
	}
	return ""
}

// PhraseRule 检测规则（对应 sos_phrases 表）
type PhraseRule struct {
	ID              string     `json:"id" yaml:"id" db:"phrase_id"`
	Language        string     `json:"language" yaml:"language" db:"language"`
	Severity        Severity   `json:"severity" yaml:"severity" db:"severity"`
	Category        Category   `json:"category" yaml:"category" db:"category"`
	Pattern         string     `json:"pattern" yaml:"pattern" db:"pattern"`
	IsActive        bool       `json:"is_active" yaml:"is_active" db:"is_active"`
	Description     string     `json:"description" yaml:"description" db:"description"`
	UsageCount      int64      `json:"usage_count" yaml:"-" db:"usage_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" yaml:"-" db:"last_triggered_at"`
	Version         int        `json:"version" yaml:"-" db:"version"`
	CreatedAt       time.Time  `json:"created_at" yaml:"-" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" yaml:"-" db:"updated_at"`

	compiled *regexp.Regexp
}

// CompilePattern 编译大小写不敏感的正则
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: pattern is required", ErrInvalidPhrase)
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: pattern does not compile: %v", ErrInvalidPhrase, err)
	}
	return re, nil
}

// Validate 写入时校验：语言、紧急程度、类别、正则
func (r *PhraseRule) Validate() error {
	if NormalizeLanguage(r.Language) == "" {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidPhrase, r.Language)
	}
	r.Language = NormalizeLanguage(r.Language)
	r.Severity = Severity(strings.ToUpper(strings.TrimSpace(string(r.Severity))))
	if !r.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidPhrase, r.Severity)
	}
	if !r.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidPhrase, r.Category)
	}
	re, err := CompilePattern(r.Pattern)
	if err != nil {
		return err
	}
	r.compiled = re
	return nil
}

// Compiled 返回已编译正则（未编译时即时编译，失败返回 nil）
func (r *PhraseRule) Compiled() *regexp.Regexp {
	if r.compiled == nil {
		re, err := CompilePattern(r.Pattern)
		if err != nil {
			return nil
		}
		r.compiled = re
	}
	return r.compiled
}
