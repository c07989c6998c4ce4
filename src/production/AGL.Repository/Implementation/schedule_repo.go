package implementation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

type PostgresScheduleRepository struct {
	db *sql.DB
}

func NewPostgresScheduleRepository(db *sql.DB) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

const scheduleColumns = `id, name, device_id, farm_id, type, command, params, enabled, execute_at, days_of_week, time_of_day, timezone, last_executed_at, created_at, updated_at`

func (r *PostgresScheduleRepository) GetSchedule(ctx context.Context, id string) (*aglmodels.DeviceSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM device_schedules WHERE id = $1`
	return scanSchedule(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresScheduleRepository) ListSchedules(ctx context.Context, deviceID, farmID string) ([]aglmodels.DeviceSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM device_schedules`
	var args []interface{}
	switch {
	case deviceID != "":
		query += ` WHERE device_id = $1`
		args = append(args, deviceID)
	case farmID != "":
		query += ` WHERE farm_id = $1`
		args = append(args, farmID)
	}
	query += ` ORDER BY created_at DESC`
	return r.querySchedules(ctx, query, args...)
}

func (r *PostgresScheduleRepository) ListEnabled(ctx context.Context) ([]aglmodels.DeviceSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM device_schedules WHERE enabled = TRUE`
	return r.querySchedules(ctx, query)
}

func (r *PostgresScheduleRepository) CreateSchedule(ctx context.Context, s aglmodels.DeviceSchedule) (*aglmodels.DeviceSchedule, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	params, err := marshalParams(s.Params)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO device_schedules (id, name, device_id, farm_id, type, command, params, enabled, execute_at, days_of_week, time_of_day, timezone, last_executed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.Name, nullString(s.DeviceID), nullString(s.FarmID), string(s.Type),
		s.Command, params, s.Enabled, s.ExecuteAt, pq.Array(s.DaysOfWeek),
		nullString(s.Time), nullString(s.Timezone), s.LastExecutedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresScheduleRepository) UpdateSchedule(ctx context.Context, s *aglmodels.DeviceSchedule) error {
	s.UpdatedAt = time.Now().UTC()

	params, err := marshalParams(s.Params)
	if err != nil {
		return err
	}

	query := `
		UPDATE device_schedules
		SET name = $2, type = $3, command = $4, params = $5, enabled = $6,
		    execute_at = $7, days_of_week = $8, time_of_day = $9, timezone = $10,
		    updated_at = $11
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, string(s.Type), s.Command, params, s.Enabled,
		s.ExecuteAt, pq.Array(s.DaysOfWeek), nullString(s.Time), nullString(s.Timezone),
		s.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *PostgresScheduleRepository) DeleteSchedule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM device_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *PostgresScheduleRepository) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE device_schedules SET last_executed_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *PostgresScheduleRepository) querySchedules(ctx context.Context, query string, args ...interface{}) ([]aglmodels.DeviceSchedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []aglmodels.DeviceSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

func scanSchedule(row rowScanner) (*aglmodels.DeviceSchedule, error) {
	var s aglmodels.DeviceSchedule
	var deviceID, farmID, timeOfDay, timezone sql.NullString
	var typ string
	var params []byte
	var days pq.Int64Array

	err := row.Scan(&s.ID, &s.Name, &deviceID, &farmID, &typ, &s.Command, &params,
		&s.Enabled, &s.ExecuteAt, &days, &timeOfDay, &timezone,
		&s.LastExecutedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}

	if len(params) > 0 {
		if err := json.Unmarshal(params, &s.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}
	s.DeviceID = fromNullString(deviceID)
	s.FarmID = fromNullString(farmID)
	s.Type = aglmodels.ScheduleType(typ)
	s.Time = fromNullString(timeOfDay)
	s.Timezone = fromNullString(timezone)
	for _, d := range days {
		s.DaysOfWeek = append(s.DaysOfWeek, int(d))
	}
	return &s, nil
}
