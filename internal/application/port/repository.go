package port

import (
	"context"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
)

// AlertRecordStore хранит обработанные алерты вне памяти процесса
type AlertRecordStore interface {
	SaveAlert(ctx context.Context, alert entity.Alert) error
	ListRecentAlerts(ctx context.Context, limit int) ([]entity.Alert, error)
}

// DeploymentAttemptRepository - журнал попыток деплоя
type DeploymentAttemptRepository interface {
	Save(ctx context.Context, attempt entity.DeploymentAttempt) error
	ListRecent(ctx context.Context, query AttemptQuery) (AttemptPage, error)
}

// AttemptQuery - параметры выборки попыток
type AttemptQuery struct {
	Limit  int
	Cursor string
}

// AttemptPage содержит результат выборки и курсор следующей страницы.
type AttemptPage struct {
	Items      []entity.DeploymentAttempt
	NextCursor string
}
