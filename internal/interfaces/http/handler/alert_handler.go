package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/dreschagin/quality-gate/internal/application/alerting"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/middleware"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

// AlertSource - история и управление алертами
type AlertSource interface {
	Recent(n int) []entity.AlertRecord
	Stats() alerting.Stats
	PendingEscalations() []alerting.PendingEscalation
	Acknowledge(alertID string) int
}

// ArchivedAlerts - постоянное хранилище алертов (Postgres)
type ArchivedAlerts interface {
	ListRecentAlerts(ctx context.Context, limit int) ([]entity.Alert, error)
}

type AlertHandler struct {
	alerts  AlertSource
	archive ArchivedAlerts
	logger  *logger.Logger
}

func NewAlertHandler(alerts AlertSource, archive ArchivedAlerts, logger *logger.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, archive: archive, logger: logger}
}

type alertsResponse struct {
	Records     []entity.AlertRecord         `json:"records"`
	Stats       alerting.Stats               `json:"stats"`
	Escalations []alerting.PendingEscalation `json:"pending_escalations"`
}

// List отдает последние алерты процесса; ?source=archive читает постоянное хранилище
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("source"), "archive") {
		if h.archive == nil {
			middleware.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "alert archive is not configured"})
			return
		}
		alerts, err := h.archive.ListRecentAlerts(r.Context(), limit)
		if err != nil {
			h.logger.Error("Failed to read alert archive", err)
			middleware.WriteJSON(w, http.StatusBadGateway, errorBody(err))
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"alerts": nonNil(alerts)})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, alertsResponse{
		Records:     nonNil(h.alerts.Recent(limit)),
		Stats:       h.alerts.Stats(),
		Escalations: nonNil(h.alerts.PendingEscalations()),
	})
}

// Acknowledge отменяет ожидающие эскалации алерта
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "Missing alert id", http.StatusBadRequest)
		return
	}

	cancelled := h.alerts.Acknowledge(id)
	h.logger.Info("Alert acknowledged", "alert_id", id, "cancelled_escalations", cancelled)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"alert_id":              id,
		"cancelled_escalations": cancelled,
	})
}
