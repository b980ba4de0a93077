package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/middleware"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

// HealthSource - чтение состояния мониторинга здоровья
type HealthSource interface {
	GetCurrentHealthStatus() *entity.HealthStatus
	History() []entity.HealthStatus
	RunHealthCheck(ctx context.Context) (entity.HealthStatus, error)
}

type HealthHandler struct {
	health HealthSource
	logger *logger.Logger
}

func NewHealthHandler(health HealthSource, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{health: health, logger: logger}
}

type healthResponse struct {
	Current *entity.HealthStatus  `json:"current"`
	History []entity.HealthStatus `json:"history,omitempty"`
}

// Current отдает последний HealthStatus.
// ?refresh=true выполняет внеочередной раунд, ?history=N добавляет последние N раундов.
func (h *HealthHandler) Current(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if refresh, _ := strconv.ParseBool(query.Get("refresh")); refresh {
		status, err := h.health.RunHealthCheck(r.Context())
		if err != nil {
			h.logger.Error("On-demand health check failed", err)
			middleware.WriteJSON(w, http.StatusServiceUnavailable, errorBody(err))
			return
		}
		middleware.WriteJSON(w, http.StatusOK, healthResponse{Current: &status})
		return
	}

	resp := healthResponse{Current: h.health.GetCurrentHealthStatus()}
	if raw := query.Get("history"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid history", http.StatusBadRequest)
			return
		}
		history := h.health.History()
		if n < len(history) {
			history = history[len(history)-n:]
		}
		resp.History = history
	}

	if resp.Current == nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}
