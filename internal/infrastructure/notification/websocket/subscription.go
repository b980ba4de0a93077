package websocket

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
)

// Subscription - какие сообщения получает клиент.
// Пустой Types означает все типы; MinSeverity отсекает алерты ниже порога.
type Subscription struct {
	Types       map[string]bool
	MinSeverity valueobject.Severity
}

// ParseSubscription читает ?types=alert,deployment&min_severity=high
func ParseSubscription(query url.Values) (Subscription, error) {
	sub := Subscription{}

	if raw := strings.TrimSpace(query.Get("types")); raw != "" {
		sub.Types = make(map[string]bool)
		for _, part := range strings.Split(raw, ",") {
			kind := strings.ToLower(strings.TrimSpace(part))
			switch kind {
			case MessageAlert, MessageHealth, MessageDeployment:
				sub.Types[kind] = true
			case "":
			default:
				return Subscription{}, fmt.Errorf("unknown message type %q", kind)
			}
		}
	}

	if raw := strings.TrimSpace(query.Get("min_severity")); raw != "" {
		severity := valueobject.Severity(strings.ToLower(raw))
		if err := severity.Validate(); err != nil {
			return Subscription{}, err
		}
		sub.MinSeverity = severity
	}

	return sub, nil
}

// Accepts решает, отправлять ли сообщение подписчику
func (s Subscription) Accepts(message Message) bool {
	if len(s.Types) > 0 && !s.Types[message.Type] {
		return false
	}
	if message.Type == MessageAlert && s.MinSeverity != "" {
		alert, ok := message.Data.(entity.Alert)
		if ok && !alert.Severity.AtLeast(s.MinSeverity) {
			return false
		}
	}
	return true
}
