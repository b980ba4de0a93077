package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dreschagin/quality-gate/internal/domain/entity"
	"github.com/dreschagin/quality-gate/internal/domain/valueobject"
)

// AlertDBModel представляет алерт в БД
type AlertDBModel struct {
	ID        string
	AlertType string
	Severity  string
	Message   string
	Source    string
	Details   []byte // JSON
	RaisedAt  time.Time
}

// ToDBModel конвертирует алерт в DB Model
func ToDBModel(alert entity.Alert) (*AlertDBModel, error) {
	details, err := json.Marshal(alert.Details)
	if err != nil {
		return nil, err
	}

	raisedAt := alert.Timestamp.UTC()
	if raisedAt.IsZero() {
		raisedAt = time.Now().UTC()
	}

	return &AlertDBModel{
		ID:        alert.ID,
		AlertType: alert.Type,
		Severity:  alert.Severity.String(),
		Message:   alert.Message,
		Source:    alert.Source,
		Details:   details,
		RaisedAt:  raisedAt,
	}, nil
}

// ToEntity конвертирует DB Model в алерт
func ToEntity(model *AlertDBModel) (entity.Alert, error) {
	var details entity.AlertDetails
	if len(model.Details) > 0 {
		if err := json.Unmarshal(model.Details, &details); err != nil {
			return entity.Alert{}, err
		}
	}

	return entity.Alert{
		ID:        model.ID,
		Type:      model.AlertType,
		Severity:  valueobject.Severity(model.Severity),
		Message:   model.Message,
		Source:    model.Source,
		Details:   details,
		Timestamp: model.RaisedAt,
	}, nil
}

// ScanAlertRow сканирует строку БД в AlertDBModel
func ScanAlertRow(row interface {
	Scan(dest ...interface{}) error
}) (*AlertDBModel, error) {
	var model AlertDBModel
	var source sql.NullString
	var details sql.NullString

	err := row.Scan(
		&model.ID,
		&model.AlertType,
		&model.Severity,
		&model.Message,
		&source,
		&details,
		&model.RaisedAt,
	)
	if err != nil {
		return nil, err
	}

	model.Source = source.String
	if details.Valid {
		model.Details = []byte(details.String)
	}

	return &model, nil
}
