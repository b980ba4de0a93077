package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/dreschagin/quality-gate/internal/application/usecase"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/middleware"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

// QualityGate - операции фасада, которые отдает HTTP API
type QualityGate interface {
	ValidateForDeployment(ctx context.Context) (*entity.DeploymentValidationResult, error)
	PerformFullQualityValidation(ctx context.Context) (*usecase.FullQualityReport, error)
	GetSystemStatus() usecase.SystemStatusReport
	GetSystemHealthReport(ctx context.Context) usecase.SystemHealthReport
	IsSystemReady() bool
}

// GateHandler обрабатывает запросы на проверку качества и допуск к деплою
type GateHandler struct {
	gate   QualityGate
	logger *logger.Logger
}

func NewGateHandler(gate QualityGate, logger *logger.Logger) *GateHandler {
	return &GateHandler{gate: gate, logger: logger}
}

// ValidateDeployment запускает проверку допуска к деплою.
// 409 - проверка уже идет, 504 - таймаут (тело содержит заблокированный результат).
func (h *GateHandler) ValidateDeployment(w http.ResponseWriter, r *http.Request) {
	result, err := h.gate.ValidateForDeployment(r.Context())
	switch {
	case err == nil:
		middleware.WriteJSON(w, http.StatusOK, result)
	case errors.Is(err, apperror.ErrValidationInProgress):
		middleware.WriteJSON(w, http.StatusConflict, errorBody(err))
	case errors.Is(err, apperror.ErrValidationTimeout):
		if result == nil {
			middleware.WriteJSON(w, http.StatusGatewayTimeout, errorBody(err))
			return
		}
		middleware.WriteJSON(w, http.StatusGatewayTimeout, result)
	case errors.Is(err, apperror.ErrSystemInitialization):
		middleware.WriteJSON(w, http.StatusServiceUnavailable, errorBody(err))
	default:
		h.logger.Error("Deployment validation failed", err)
		middleware.WriteJSON(w, http.StatusInternalServerError, errorBody(err))
	}
}

// ValidateQuality запускает полную проверку качества без записи попытки деплоя
func (h *GateHandler) ValidateQuality(w http.ResponseWriter, r *http.Request) {
	report, err := h.gate.PerformFullQualityValidation(r.Context())
	if err != nil {
		if errors.Is(err, apperror.ErrSystemInitialization) {
			middleware.WriteJSON(w, http.StatusServiceUnavailable, errorBody(err))
			return
		}
		h.logger.Error("Full quality validation failed", err)
		middleware.WriteJSON(w, http.StatusInternalServerError, errorBody(err))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

func (h *GateHandler) SystemStatus(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.gate.GetSystemStatus())
}

func (h *GateHandler) SystemReport(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.gate.GetSystemHealthReport(r.Context()))
}

// Ready используется как readiness probe
func (h *GateHandler) Ready(w http.ResponseWriter, _ *http.Request) {
	if !h.gate.IsSystemReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}
