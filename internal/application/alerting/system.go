// Package alerting маршрутизирует алерты по каналам с троттлингом по правилам
// и отложенной эскалацией.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dreschagin/quality-gate/internal/application/port"
	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
	"github.com/dreschagin/quality-gate/internal/metrics"
	"github.com/dreschagin/quality-gate/pkg/apperror"
	"github.com/dreschagin/quality-gate/pkg/history"
	"github.com/dreschagin/quality-gate/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultHistorySize = 1000
	defaultSendTimeout = 10 * time.Second
)

// Config - настройки AlertSystem
type Config struct {
	Rules       []entity.AlertRule
	HistorySize int
	SendTimeout time.Duration
	Clock       port.Clock
	Metrics     *metrics.Metrics
}

// System - маршрутизатор алертов, безопасен для конкурентного использования
type System struct {
	log         *logger.Logger
	clock       port.Clock
	metrics     *metrics.Metrics
	sendTimeout time.Duration

	mu       sync.RWMutex
	channels map[string]port.AlertChannel
	rules    []entity.AlertRule

	throttleMu sync.Mutex
	lastSent   map[string]time.Time

	escMu       sync.Mutex
	escalations map[string]*pendingEscalation
	escSeq      uint64

	history *history.Buffer[entity.AlertRecord]
}

type pendingEscalation struct {
	seq       uint64
	timer     *time.Timer
	alertID   string
	ruleID    string
	alertType string
	armedAt   time.Time
	fireAt    time.Time
}

// PendingEscalation - снимок взведенного таймера эскалации
type PendingEscalation struct {
	Key       string    `json:"key"`
	AlertID   string    `json:"alert_id"`
	RuleID    string    `json:"rule_id"`
	AlertType string    `json:"alert_type"`
	FireAt    time.Time `json:"fire_at"`
}

// NewSystem создает AlertSystem. Правила валидируются; nil Rules означает DefaultRules
func NewSystem(cfg Config, log *logger.Logger) (*System, error) {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = port.SystemClock{}
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if err := ValidateRules(cfg.Rules); err != nil {
		return nil, err
	}

	return &System{
		log:         log,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		sendTimeout: cfg.SendTimeout,
		channels:    make(map[string]port.AlertChannel),
		rules:       append([]entity.AlertRule(nil), cfg.Rules...),
		lastSent:    make(map[string]time.Time),
		escalations: make(map[string]*pendingEscalation),
		history:     history.New[entity.AlertRecord](cfg.HistorySize),
	}, nil
}

// RegisterChannel добавляет или заменяет канал по имени
func (s *System) RegisterChannel(ch port.AlertChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.Name()] = ch
}

// Channels возвращает отсортированные имена зарегистрированных каналов
func (s *System) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *System) Rules() []entity.AlertRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.AlertRule(nil), s.rules...)
}

// TriggerAlert отправляет алерт по совпавшим правилам или каналам по умолчанию для severity.
// Сбой канала не влияет на остальные; ошибка возвращается, только если ничего не доставлено
func (s *System) TriggerAlert(ctx context.Context, alert entity.Alert) error {
	if alert.Type == "" {
		return apperror.New("alerting.TriggerAlert", "alert type is required", nil)
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.clock.Now()
	}
	if err := alert.Severity.Validate(); err != nil {
		s.log.Warn("Unknown alert severity, using medium", "type", alert.Type, "severity", alert.Severity)
		alert.Severity = valueobject.SeverityMedium
	}

	startedAt := time.Now()

	matched := s.matchingRules(alert)
	if len(matched) == 0 {
		channels := DefaultChannels(alert.Severity)
		return s.deliver(ctx, alert, nil, channels, startedAt)
	}

	now := s.clock.Now()
	var (
		ruleIDs  []string
		channels []string
		active   []entity.AlertRule
	)
	for _, rule := range matched {
		if s.throttled(rule, alert.Type, now) {
			s.log.Debug("Alert throttled", "rule", rule.ID, "type", alert.Type)
			continue
		}
		active = append(active, rule)
		ruleIDs = append(ruleIDs, rule.ID)
		channels = appendMissing(channels, rule.Channels...)
	}

	if len(active) == 0 {
		s.metrics.IncThrottled()
		s.history.Append(entity.AlertRecord{
			Alert:      alert,
			RuleIDs:    ruleIDsOf(matched),
			Channels:   []string{},
			Success:    true,
			Throttled:  true,
			RecordedAt: s.clock.Now(),
		})
		return nil
	}

	err := s.deliver(ctx, alert, ruleIDs, channels, startedAt)

	if alert.Severity != valueobject.SeverityLow {
		for _, rule := range active {
			if rule.Escalation != nil {
				s.armEscalation(rule, alert)
			}
		}
	}

	return err
}

func (s *System) matchingRules(alert entity.Alert) []entity.AlertRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entity.AlertRule
	for _, rule := range s.rules {
		if rule.Matches(alert) {
			out = append(out, rule)
		}
	}
	return out
}

// throttled атомарно проверяет и записывает время отправки для пары (правило, тип)
func (s *System) throttled(rule entity.AlertRule, alertType string, now time.Time) bool {
	if rule.Throttle <= 0 {
		return false
	}

	key := rule.ID + "|" + alertType

	s.throttleMu.Lock()
	defer s.throttleMu.Unlock()

	if last, ok := s.lastSent[key]; ok && now.Sub(last) < rule.Throttle {
		return true
	}
	s.lastSent[key] = now
	return false
}

// deliver рассылает по каналам параллельно, при любом сбое дублирует в console
// и записывает результат
func (s *System) deliver(ctx context.Context, alert entity.Alert, ruleIDs, channels []string, startedAt time.Time) error {
	failures := s.dispatch(ctx, alert, channels)

	delivered := len(channels) - len(failures)
	used := append([]string(nil), channels...)

	if len(failures) > 0 || len(channels) == 0 {
		if _, consoleFailed := failures[port.ChannelConsole]; consoleFailed || !contains(channels, port.ChannelConsole) {
			if err := s.consoleFallback(ctx, alert); err != nil {
				failures["console-fallback"] = err
			} else {
				used = appendMissing(used, port.ChannelConsole)
			}
		}
	}

	record := entity.AlertRecord{
		Alert:        alert,
		RuleIDs:      ruleIDs,
		Channels:     used,
		Success:      len(failures) == 0,
		ResponseTime: time.Since(startedAt),
		RecordedAt:   s.clock.Now(),
	}

	var errs []error
	if len(failures) > 0 {
		record.ChannelErrors = make(map[string]string, len(failures))
		for name, err := range failures {
			record.ChannelErrors[name] = err.Error()
			errs = append(errs, err)
		}
		record.Error = errors.Join(errs...).Error()
		s.log.Warn("Alert delivered with channel failures",
			"type", alert.Type, "severity", alert.Severity, "failed", len(failures), "delivered", delivered)
	}
	s.history.Append(record)

	if delivered == 0 && len(channels) > 0 {
		return apperror.New("alerting.TriggerAlert", "no channel accepted alert "+alert.Type, errors.Join(errs...))
	}
	return nil
}

// dispatch отправляет во все указанные каналы параллельно и возвращает ошибки по каналам
func (s *System) dispatch(ctx context.Context, alert entity.Alert, channels []string) map[string]error {
	failures := make(map[string]error)
	if len(channels) == 0 {
		return failures
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, name := range channels {
		ch := s.channel(name)

		wg.Add(1)
		go func(name string, ch port.AlertChannel) {
			defer wg.Done()

			err := s.sendOne(ctx, name, ch, alert)
			if err == nil {
				s.metrics.IncAlertDispatch(name, metrics.OutcomeSuccess)
				return
			}
			s.metrics.IncAlertDispatch(name, metrics.OutcomeFailure)
			s.log.Error("Alert channel failed", err, "channel", name, "type", alert.Type)

			mu.Lock()
			failures[name] = err
			mu.Unlock()
		}(name, ch)
	}
	wg.Wait()

	return failures
}

func (s *System) sendOne(ctx context.Context, name string, ch port.AlertChannel, alert entity.Alert) (err error) {
	if ch == nil || !ch.IsAvailable() {
		return fmt.Errorf("%s: %w", name, apperror.ErrChannelUnavailable)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v: %w", name, r, apperror.ErrChannelSendFailed)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := ch.Send(sendCtx, alert); err != nil {
		return fmt.Errorf("%s: %v: %w", name, err, apperror.ErrChannelSendFailed)
	}
	return nil
}

func (s *System) consoleFallback(ctx context.Context, alert entity.Alert) error {
	if ch := s.channel(port.ChannelConsole); ch != nil && ch.IsAvailable() {
		return s.sendOne(ctx, port.ChannelConsole, ch, alert)
	}
	s.log.Warn("ALERT (fallback)", "type", alert.Type, "severity", alert.Severity, "message", alert.Message)
	return nil
}

func (s *System) channel(name string) port.AlertChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[name]
}

func escalationKey(ruleID, alertType string, ts time.Time) string {
	return ruleID + "|" + alertType + "|" + strconv.FormatInt(ts.UnixNano(), 10)
}

// armEscalation планирует отложенный алерт, заменяя таймер с тем же ключом
func (s *System) armEscalation(rule entity.AlertRule, alert entity.Alert) {
	esc := *rule.Escalation
	key := escalationKey(rule.ID, alert.Type, alert.Timestamp)

	s.escMu.Lock()
	if prev, ok := s.escalations[key]; ok {
		prev.timer.Stop()
	}
	s.escSeq++
	seq := s.escSeq
	now := time.Now()
	pending := &pendingEscalation{
		seq:       seq,
		alertID:   alert.ID,
		ruleID:    rule.ID,
		alertType: alert.Type,
		armedAt:   now,
		fireAt:    now.Add(esc.After),
	}
	pending.timer = time.AfterFunc(esc.After, func() {
		s.fireEscalation(key, seq, esc, alert)
	})
	s.escalations[key] = pending
	count := len(s.escalations)
	s.escMu.Unlock()

	s.metrics.SetPendingEscalations(count)
	s.log.Debug("Escalation armed", "rule", rule.ID, "type", alert.Type, "after", esc.After)
}

func (s *System) fireEscalation(key string, seq uint64, esc entity.EscalationRule, original entity.Alert) {
	s.escMu.Lock()
	pending, ok := s.escalations[key]
	if !ok || pending.seq != seq {
		s.escMu.Unlock()
		return
	}
	delete(s.escalations, key)
	count := len(s.escalations)
	s.escMu.Unlock()

	s.metrics.SetPendingEscalations(count)
	s.metrics.IncEscalationFired()

	details := original.Details
	details.OriginalType = original.Type
	details.OriginalSeverity = original.Severity
	details.OriginalTimestamp = original.Timestamp

	escalated := entity.Alert{
		ID:        uuid.New().String(),
		Type:      entity.EscalatedPrefix + original.Type,
		Severity:  esc.EscalatedSeverity(original.Severity),
		Message:   "[ESCALATED] " + original.Message,
		Details:   details,
		Source:    original.Source,
		Timestamp: s.clock.Now(),
	}

	s.log.Warn("Escalating alert", "type", original.Type, "rule", pending.ruleID, "severity", escalated.Severity)

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	_ = s.deliver(ctx, escalated, []string{pending.ruleID}, esc.Channels, time.Now())
}

// Acknowledge отменяет ожидающие эскалации для ID алерта
func (s *System) Acknowledge(alertID string) int {
	s.escMu.Lock()
	cancelled := 0
	for key, pending := range s.escalations {
		if pending.alertID == alertID {
			pending.timer.Stop()
			delete(s.escalations, key)
			cancelled++
		}
	}
	count := len(s.escalations)
	s.escMu.Unlock()

	s.metrics.SetPendingEscalations(count)
	return cancelled
}

// CancelAllEscalations останавливает все таймеры эскалации
func (s *System) CancelAllEscalations() int {
	s.escMu.Lock()
	cancelled := len(s.escalations)
	for key, pending := range s.escalations {
		pending.timer.Stop()
		delete(s.escalations, key)
	}
	s.escMu.Unlock()

	s.metrics.SetPendingEscalations(0)
	return cancelled
}

func (s *System) PendingEscalations() []PendingEscalation {
	s.escMu.Lock()
	defer s.escMu.Unlock()

	out := make([]PendingEscalation, 0, len(s.escalations))
	for key, p := range s.escalations {
		out = append(out, PendingEscalation{
			Key:       key,
			AlertID:   p.alertID,
			RuleID:    p.ruleID,
			AlertType: p.alertType,
			FireAt:    p.fireAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// History возвращает обработанные алерты, старые первыми
func (s *System) History() []entity.AlertRecord {
	return s.history.Items()
}

// Recent возвращает до n последних записей, старые первыми
func (s *System) Recent(n int) []entity.AlertRecord {
	return s.history.Last(n)
}

func ruleIDsOf(rules []entity.AlertRule) []string {
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}

func contains(items []string, v string) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

func appendMissing(dst []string, items ...string) []string {
	for _, item := range items {
		if !contains(dst, item) {
			dst = append(dst, item)
		}
	}
	return dst
}
