package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
	"wisefido-sos/internal/repository"
)

// CacheInvalidator 规则缓存失效（corpus.Cache 实现），language 为空表示全部
type CacheInvalidator interface {
	Invalidate(language string)
}

// PhraseHandler 短语规则管理接口
type PhraseHandler struct {
	store  repository.PhraseStore
	cache  CacheInvalidator
	logger *zap.Logger
}

// phraseRequest 创建/更新请求体；is_active 为指针以区分缺省与 false
type phraseRequest struct {
	ID          string          `json:"id"`
	Language    string          `json:"language"`
	Severity    models.Severity `json:"severity"`
	Category    models.Category `json:"category"`
	Pattern     string          `json:"pattern"`
	Description string          `json:"description"`
	IsActive    *bool           `json:"is_active"`
}

func (p phraseRequest) rule() *models.PhraseRule {
	return &models.PhraseRule{
		ID:          strings.TrimSpace(p.ID),
		Language:    p.Language,
		Severity:    p.Severity,
		Category:    p.Category,
		Pattern:     p.Pattern,
		Description: p.Description,
	}
}

func NewPhraseHandler(store repository.PhraseStore, cache CacheInvalidator, logger *zap.Logger) *PhraseHandler {
	return &PhraseHandler{store: store, cache: cache, logger: logger}
}

// List GET /admin/api/v1/phrases?language=&category=&include_inactive=
func (h *PhraseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := repository.PhraseFilters{
		Language:        strings.TrimSpace(q.Get("language")),
		Category:        strings.TrimSpace(q.Get("category")),
		IncludeInactive: q.Get("include_inactive") == "true",
	}
	rules, err := h.store.ListPhrases(r.Context(), filters)
	if err != nil {
		h.fail(w, "list", "", err)
		return
	}
	respondList(w, rules)
}

// Get GET /admin/api/v1/phrases/{phraseID}
func (h *PhraseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "phraseID")
	rule, err := h.store.GetPhrase(r.Context(), id)
	if err != nil {
		h.fail(w, "get", id, err)
		return
	}
	respond(w, rule)
}

// Create POST /admin/api/v1/phrases
func (h *PhraseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req phraseRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rule := req.rule()
	rule.IsActive = true
	if err := h.store.CreatePhrase(r.Context(), rule); err != nil {
		h.fail(w, "create", rule.ID, err)
		return
	}
	h.cache.Invalidate(rule.Language)
	h.logger.Info("Phrase rule created",
		zap.String("phrase_id", rule.ID),
		zap.String("language", rule.Language),
		zap.String("category", string(rule.Category)),
	)
	respond(w, rule)
}

// Update PUT /admin/api/v1/phrases/{phraseID}
func (h *PhraseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "phraseID")
	var req phraseRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	rule := req.rule()
	rule.ID = id
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	} else {
		// 未提供 is_active 时沿用当前状态
		existing, err := h.store.GetPhrase(r.Context(), id)
		if err != nil {
			h.fail(w, "update", id, err)
			return
		}
		rule.IsActive = existing.IsActive
	}
	if err := h.store.UpdatePhrase(r.Context(), rule); err != nil {
		h.fail(w, "update", id, err)
		return
	}
	// 语言可能被修改，整体失效
	h.cache.Invalidate("")
	h.logger.Info("Phrase rule updated", zap.String("phrase_id", id), zap.Int("version", rule.Version))
	respond(w, rule)
}

// Deactivate DELETE /admin/api/v1/phrases/{phraseID}（软删除）
func (h *PhraseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "phraseID")
	if err := h.store.DeactivatePhrase(r.Context(), id); err != nil {
		h.fail(w, "deactivate", id, err)
		return
	}
	h.cache.Invalidate("")
	h.logger.Info("Phrase rule deactivated", zap.String("phrase_id", id))
	respond(w, map[string]string{"phrase_id": id})
}

func (h *PhraseHandler) fail(w http.ResponseWriter, op, id string, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidPhrase):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrPhraseNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("Phrase store operation failed",
			zap.String("op", op),
			zap.String("phrase_id", id),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
