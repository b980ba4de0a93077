package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	_ "github.com/lib/pq"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 1000
)

const schema = `
CREATE TABLE IF NOT EXISTS alert_records (
	id          TEXT PRIMARY KEY,
	alert_type  TEXT NOT NULL,
	severity    TEXT NOT NULL,
	message     TEXT NOT NULL,
	source      TEXT,
	details     JSONB,
	raised_at   TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_alert_records_raised_at ON alert_records (raised_at DESC);
CREATE INDEX IF NOT EXISTS idx_alert_records_type ON alert_records (alert_type, raised_at DESC);
`

// AlertStore реализует port.AlertRecordStore для PostgreSQL
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Open открывает пул соединений и проверяет доступность БД.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	db.SetConnMaxIdleTime(maxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema создает таблицу алертов, если ее нет
func (s *AlertStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure alert schema: %w", err)
	}
	return nil
}

// SaveAlert сохраняет алерт; повторная запись того же ID игнорируется
func (s *AlertStore) SaveAlert(ctx context.Context, alert entity.Alert) error {
	model, err := ToDBModel(alert)
	if err != nil {
		return fmt.Errorf("failed to convert to DB model: %w", err)
	}

	query := `
		INSERT INTO alert_records (id, alert_type, severity, message, source, details, raised_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		model.ID,
		model.AlertType,
		model.Severity,
		model.Message,
		model.Source,
		string(model.Details),
		model.RaisedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// ListRecentAlerts возвращает последние алерты, от новых к старым
func (s *AlertStore) ListRecentAlerts(ctx context.Context, limit int) ([]entity.Alert, error) {
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}

	query := `
		SELECT id, alert_type, severity, message, source, details, raised_at
		FROM alert_records
		ORDER BY raised_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []entity.Alert
	for rows.Next() {
		model, err := ScanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alert, err := ToEntity(model)
		if err != nil {
			return nil, fmt.Errorf("failed to convert to entity: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return alerts, nil
}

// DeleteOlderThan удаляет алерты старше before
func (s *AlertStore) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alert_records WHERE raised_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old alerts: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
