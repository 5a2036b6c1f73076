package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"wisefido-sos/internal/models"
	"wisefido-sos/internal/repository"
)

// UtteranceDetector 语句检测（service.DetectionService 实现）
type UtteranceDetector interface {
	Detect(ctx context.Context, patientID, text string, timestamp int64) []models.AlertDecision
}

// UtteranceHandler 语句检测与报警查询接口
type UtteranceHandler struct {
	detector UtteranceDetector
	alerts   repository.AlertStore
	logger   *zap.Logger
}

func NewUtteranceHandler(detector UtteranceDetector, alerts repository.AlertStore, logger *zap.Logger) *UtteranceHandler {
	return &UtteranceHandler{detector: detector, alerts: alerts, logger: logger}
}

type utteranceRequest struct {
	PatientID string `json:"patient_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"` // Unix 毫秒，0 表示当前时间
}

type utteranceResponse struct {
	Decision  models.AlertDecision   `json:"decision"`
	Decisions []models.AlertDecision `json:"decisions"`
}

// Process POST /api/v1/utterances
func (h *UtteranceHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.PatientID == "" {
		respondError(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	decisions := h.detector.Detect(r.Context(), req.PatientID, req.Text, req.Timestamp)
	respond(w, utteranceResponse{
		Decision:  models.PrimaryDecision(decisions),
		Decisions: decisions,
	})
}

// ListAlerts GET /api/v1/patients/{patientID}/alerts?limit=
func (h *UtteranceHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "patientID")
	limit := queryLimit(r)

	records, err := h.alerts.ListRecentAlerts(r.Context(), patientID, limit)
	if err != nil {
		h.logger.Error("Failed to list alerts", zap.String("patient_id", patientID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	respondList(w, records)
}
