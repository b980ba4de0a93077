package port

import "github.com/dreschagin/quality-gate/internal/domain/entity"

// NotificationService рассылает события подключенным клиентам (Port)
// Реализация в Infrastructure слое (WebSocket Hub)
type NotificationService interface {
	BroadcastAlert(alert entity.Alert)
	BroadcastHealth(status entity.HealthStatus)
	BroadcastDeployment(result entity.DeploymentValidationResult)
	ClientCount() int
}
