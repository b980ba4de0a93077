package valueobject

// HealthLevel - агрегированное состояние раунда проверок здоровья
type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthWarning  HealthLevel = "warning"
	HealthCritical HealthLevel = "critical"
)

func (h HealthLevel) String() string {
	return string(h)
}

// SystemStatus - статус системы для внешних потребителей
type SystemStatus string

const (
	StatusOperational SystemStatus = "operational"
	StatusDegraded    SystemStatus = "degraded"
	StatusCritical    SystemStatus = "critical"
)

// SystemStatusFor переводит уровень здоровья в статус системы.
func SystemStatusFor(level HealthLevel) SystemStatus {
	switch level {
	case HealthHealthy:
		return StatusOperational
	case HealthCritical:
		return StatusCritical
	default:
		return StatusDegraded
	}
}

func (s SystemStatus) String() string {
	return string(s)
}
