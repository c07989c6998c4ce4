package implementation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

type PostgresCommandLogRepository struct {
	db *sql.DB
}

func NewPostgresCommandLogRepository(db *sql.DB) *PostgresCommandLogRepository {
	return &PostgresCommandLogRepository{db: db}
}

const commandColumns = `id, device_id, command, params, source, sensor_type, reason, success, error_message, created_at`

func (r *PostgresCommandLogRepository) CreateCommandLog(ctx context.Context, entry aglmodels.CommandLog) (*aglmodels.CommandLog, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	params, err := marshalParams(entry.Params)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO command_logs (id, device_id, command, params, source, sensor_type, reason, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.DeviceID, entry.Command, params, string(entry.Source),
		nullString(string(entry.SensorType)), nullString(entry.Reason),
		entry.Success, nullString(entry.ErrorMessage), entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *PostgresCommandLogRepository) ListByDevice(ctx context.Context, deviceID string, query interfaces.CommandLogQuery) ([]aglmodels.CommandLog, error) {
	sqlQuery := `SELECT ` + commandColumns + ` FROM command_logs WHERE device_id = $1`
	args := []interface{}{deviceID}

	if query.Source != "" {
		args = append(args, string(query.Source))
		sqlQuery += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if query.From != nil {
		args = append(args, *query.From)
		sqlQuery += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if query.To != nil {
		args = append(args, *query.To)
		sqlQuery += fmt.Sprintf(" AND created_at <= $%d", len(args))
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

	var entries []aglmodels.CommandLog
	for rows.Next() {
		entry, err := scanCommandLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanCommandLog(row rowScanner) (*aglmodels.CommandLog, error) {
	var entry aglmodels.CommandLog
	var params []byte
	var source string
	var sensorType, reason, errMsg sql.NullString

	err := row.Scan(&entry.ID, &entry.DeviceID, &entry.Command, &params, &source,
		&sensorType, &reason, &entry.Success, &errMsg, &entry.CreatedAt)
	if err != nil {
		return nil, translateErr(err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &entry.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}
	entry.Source = aglmodels.CommandSource(source)
	entry.SensorType = aglmodels.SensorType(fromNullString(sensorType))
	entry.Reason = fromNullString(reason)
	entry.ErrorMessage = fromNullString(errMsg)
	return &entry, nil
}
