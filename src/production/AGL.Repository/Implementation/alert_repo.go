package implementation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

type PostgresAlertLogRepository struct {
	db *sql.DB
}

func NewPostgresAlertLogRepository(db *sql.DB) *PostgresAlertLogRepository {
	return &PostgresAlertLogRepository{db: db}
}

const alertColumns = `id, device_id, sensor_type, value, threshold, level, direction, action, reason, acknowledged, created_at`

func (r *PostgresAlertLogRepository) CreateAlert(ctx context.Context, alert aglmodels.AlertLog) (*aglmodels.AlertLog, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alert_logs (id, device_id, sensor_type, value, threshold, level, direction, action, reason, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.DeviceID, string(alert.SensorType), alert.Value, alert.Threshold,
		string(alert.Level), string(alert.Direction), nullString(alert.Action),
		alert.Reason, alert.Acknowledged, alert.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *PostgresAlertLogRepository) ListByDevice(ctx context.Context, deviceID string, query interfaces.AlertQuery) ([]aglmodels.AlertLog, error) {
	sqlQuery := `SELECT ` + alertColumns + ` FROM alert_logs WHERE device_id = $1`
	args := []interface{}{deviceID}

	if query.SensorType != "" {
		args = append(args, string(query.SensorType))
		sqlQuery += fmt.Sprintf(" AND sensor_type = $%d", len(args))
	}
	if query.Level != "" {
		args = append(args, string(query.Level))
		sqlQuery += fmt.Sprintf(" AND level = $%d", len(args))
	}
	if query.From != nil {
		args = append(args, *query.From)
		sqlQuery += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if query.To != nil {
		args = append(args, *query.To)
		sqlQuery += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if query.Acknowledged != nil {
		args = append(args, *query.Acknowledged)
		sqlQuery += fmt.Sprintf(" AND acknowledged = $%d", len(args))
	}
	sqlQuery += " ORDER BY created_at DESC"
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sqlQuery += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []aglmodels.AlertLog
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

func (r *PostgresAlertLogRepository) Acknowledge(ctx context.Context, deviceID, id string) (*aglmodels.AlertLog, error) {
	query := `
		UPDATE alert_logs SET acknowledged = TRUE
		WHERE id = $1 AND device_id = $2
		RETURNING ` + alertColumns
	return scanAlert(r.db.QueryRowContext(ctx, query, id, deviceID))
}

func scanAlert(row rowScanner) (*aglmodels.AlertLog, error) {
	var alert aglmodels.AlertLog
	var sensorType, level, direction string
	var action sql.NullString

	err := row.Scan(&alert.ID, &alert.DeviceID, &sensorType, &alert.Value, &alert.Threshold,
		&level, &direction, &action, &alert.Reason, &alert.Acknowledged, &alert.CreatedAt)
	if err != nil {
		return nil, translateErr(err)
	}

	alert.SensorType = aglmodels.SensorType(sensorType)
	alert.Level = aglmodels.ThresholdLevel(level)
	alert.Direction = aglmodels.AlertDirection(direction)
	alert.Action = fromNullString(action)
	return &alert, nil
}
