package alerting

import "time"

// Stats - сводка по истории алертов
type Stats struct {
	Total               int            `json:"total"`
	Successful          int            `json:"successful"`
	Failed              int            `json:"failed"`
	Throttled           int            `json:"throttled"`
	Escalated           int            `json:"escalated"`
	PendingEscalations  int            `json:"pending_escalations"`
	BySeverity          map[string]int `json:"by_severity"`
	ByType              map[string]int `json:"by_type"`
	AverageResponseTime time.Duration  `json:"average_response_time"`
	LastAlertAt         *time.Time     `json:"last_alert_at,omitempty"`
}

func (s *System) Stats() Stats {
	records := s.history.Items()

	stats := Stats{
		Total:      len(records),
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}

	var totalResponse time.Duration
	delivered := 0
	for _, r := range records {
		stats.BySeverity[r.Alert.Severity.String()]++
		stats.ByType[r.Alert.Type]++
		switch {
		case r.Throttled:
			stats.Throttled++
		case r.Success:
			stats.Successful++
		default:
			stats.Failed++
		}
		if r.Alert.IsEscalated() {
			stats.Escalated++
		}
		if !r.Throttled {
			totalResponse += r.ResponseTime
			delivered++
		}
	}
	if delivered > 0 {
		stats.AverageResponseTime = totalResponse / time.Duration(delivered)
	}
	if last, ok := s.history.Latest(); ok {
		ts := last.Alert.Timestamp
		stats.LastAlertAt = &ts
	}

	s.escMu.Lock()
	stats.PendingEscalations = len(s.escalations)
	s.escMu.Unlock()

	return stats
}
