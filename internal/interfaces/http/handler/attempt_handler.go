package handler

import (
	"net/http"
	"strconv"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/interfaces/http/middleware"
	"github.com/dreschagin/quality-gate/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AttemptSource - попытки деплоя, которые держит процесс
type AttemptSource interface {
	Attempts() []entity.DeploymentAttempt
}

// AttemptHandler отдает журнал попыток деплоя.
// С репозиторием читает постоянный журнал с курсором, без него - буфер процесса.
type AttemptHandler struct {
	source     AttemptSource
	repository port.DeploymentAttemptRepository
	logger     *logger.Logger
}

func NewAttemptHandler(source AttemptSource, repository port.DeploymentAttemptRepository, logger *logger.Logger) *AttemptHandler {
	return &AttemptHandler{source: source, repository: repository, logger: logger}
}

type attemptsResponse struct {
	Items      []entity.DeploymentAttempt `json:"items"`
	NextCursor string                     `json:"next_cursor,omitempty"`
	Source     string                     `json:"source"`
}

func (h *AttemptHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		http.Error(w, "Invalid limit", http.StatusBadRequest)
		return
	}

	if h.repository != nil {
		page, err := h.repository.ListRecent(r.Context(), port.AttemptQuery{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err == nil {
			middleware.WriteJSON(w, http.StatusOK, attemptsResponse{
				Items:      nonNil(page.Items),
				NextCursor: page.NextCursor,
				Source:     "repository",
			})
			return
		}
		h.logger.Warn("Attempt repository unavailable, serving in-memory history", "error", err.Error())
	}

	// новые сначала, как и в репозитории
	items := h.source.Attempts()
	out := make([]entity.DeploymentAttempt, 0, limit)
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	middleware.WriteJSON(w, http.StatusOK, attemptsResponse{Items: out, Source: "memory"})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultPageSize, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, strconv.ErrSyntax
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return limit, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
