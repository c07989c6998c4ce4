package implementation

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

type PostgresSensorConfigRepository struct {
	db *sql.DB
}

func NewPostgresSensorConfigRepository(db *sql.DB) *PostgresSensorConfigRepository {
	return &PostgresSensorConfigRepository{db: db}
}

const sensorConfigColumns = `id, device_id, sensor_type, enabled, mode, unit, created_at, updated_at`
const thresholdColumns = `id, sensor_config_id, level, type, threshold, action, created_at, updated_at`

func (r *PostgresSensorConfigRepository) ListConfigs(ctx context.Context, deviceID string) ([]aglmodels.SensorConfig, error) {
	query := `SELECT ` + sensorConfigColumns + ` FROM sensor_configs WHERE device_id = $1 ORDER BY sensor_type`
	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []aglmodels.SensorConfig
	for rows.Next() {
		cfg, err := scanSensorConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range configs {
		thresholds, err := r.listThresholds(ctx, configs[i].ID)
		if err != nil {
			return nil, err
		}
		configs[i].Thresholds = thresholds
	}
	return configs, nil
}

func (r *PostgresSensorConfigRepository) GetConfig(ctx context.Context, id string) (*aglmodels.SensorConfig, error) {
	query := `SELECT ` + sensorConfigColumns + ` FROM sensor_configs WHERE id = $1`
	cfg, err := scanSensorConfig(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	thresholds, err := r.listThresholds(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	cfg.Thresholds = thresholds
	return cfg, nil
}

func (r *PostgresSensorConfigRepository) CreateConfig(ctx context.Context, cfg aglmodels.SensorConfig) (*aglmodels.SensorConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	query := `
		INSERT INTO sensor_configs (id, device_id, sensor_type, enabled, mode, unit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.DeviceID, string(cfg.SensorType), cfg.Enabled, string(cfg.Mode),
		nullString(cfg.Unit), cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &cfg, nil
}

func (r *PostgresSensorConfigRepository) UpdateConfig(ctx context.Context, cfg *aglmodels.SensorConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE sensor_configs
		SET enabled = $2, mode = $3, unit = $4, updated_at = $5
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Enabled, string(cfg.Mode), nullString(cfg.Unit), cfg.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *PostgresSensorConfigRepository) DeleteConfig(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sensor_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *PostgresSensorConfigRepository) CreateThreshold(ctx context.Context, t aglmodels.SensorThreshold) (*aglmodels.SensorThreshold, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	query := `
		INSERT INTO sensor_thresholds (id, sensor_config_id, level, type, threshold, action, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.SensorConfigID, string(t.Level), string(t.Type), t.Threshold,
		t.Action, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &t, nil
}

func (r *PostgresSensorConfigRepository) GetThreshold(ctx context.Context, id string) (*aglmodels.SensorThreshold, error) {
	query := `SELECT ` + thresholdColumns + ` FROM sensor_thresholds WHERE id = $1`
	return scanThreshold(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresSensorConfigRepository) UpdateThreshold(ctx context.Context, t *aglmodels.SensorThreshold) error {
	t.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE sensor_thresholds
		SET threshold = $2, action = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, t.ID, t.Threshold, t.Action, t.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *PostgresSensorConfigRepository) DeleteThreshold(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sensor_thresholds WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

func (r *PostgresSensorConfigRepository) listThresholds(ctx context.Context, configID string) ([]aglmodels.SensorThreshold, error) {
	query := `SELECT ` + thresholdColumns + ` FROM sensor_thresholds WHERE sensor_config_id = $1 ORDER BY level, type`
	rows, err := r.db.QueryContext(ctx, query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var thresholds []aglmodels.SensorThreshold
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, err
		}
		thresholds = append(thresholds, *t)
	}
	return thresholds, rows.Err()
}

func scanSensorConfig(row rowScanner) (*aglmodels.SensorConfig, error) {
	var cfg aglmodels.SensorConfig
	var sensorType, mode string
	var unit sql.NullString

	err := row.Scan(&cfg.ID, &cfg.DeviceID, &sensorType, &cfg.Enabled, &mode,
		&unit, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}

	cfg.SensorType = aglmodels.SensorType(sensorType)
	cfg.Mode = aglmodels.SensorMode(mode)
	cfg.Unit = fromNullString(unit)
	return &cfg, nil
}

func scanThreshold(row rowScanner) (*aglmodels.SensorThreshold, error) {
	var t aglmodels.SensorThreshold
	var level, typ string

	err := row.Scan(&t.ID, &t.SensorConfigID, &level, &typ, &t.Threshold,
		&t.Action, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}

	t.Level = aglmodels.ThresholdLevel(level)
	t.Type = aglmodels.ThresholdType(typ)
	return &t, nil
}
