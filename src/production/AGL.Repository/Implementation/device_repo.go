package implementation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

type PostgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

const deviceColumns = `id, name, serial, hardware_version, device_token, status, farm_id, provisioned_at, paired_at, created_at, updated_at`

func (r *PostgresDeviceRepository) GetDevice(ctx context.Context, id string) (*aglmodels.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	return r.scanDevice(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresDeviceRepository) GetDeviceBySerial(ctx context.Context, serial string) (*aglmodels.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial = $1`
	return r.scanDevice(r.db.QueryRowContext(ctx, query, serial))
}

func (r *PostgresDeviceRepository) ListDevices(ctx context.Context, farmID string) ([]aglmodels.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY created_at DESC`
	args := []interface{}{}
	if farmID != "" {
		query = `SELECT ` + deviceColumns + ` FROM devices WHERE farm_id = $1 ORDER BY created_at DESC`
		args = append(args, farmID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []aglmodels.Device
	for rows.Next() {
		device, err := r.scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// LookupOrCreate returns the device with the given serial, inserting a new
// row when none exists. The bool result reports whether a row was created.
func (r *PostgresDeviceRepository) LookupOrCreate(ctx context.Context, device aglmodels.Device) (*aglmodels.Device, bool, error) {
	existing, err := r.GetDeviceBySerial(ctx, device.Serial)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, false, err
	}

	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (id, name, serial, hardware_version, device_token, status, farm_id, provisioned_at, paired_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		device.ID, device.Name, device.Serial, nullString(device.HardwareVersion),
		nullString(device.DeviceToken), string(device.Status), nullString(device.FarmID),
		device.ProvisionedAt, device.PairedAt, device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	return &device, true, nil
}

func (r *PostgresDeviceRepository) UpdateDevice(ctx context.Context, device *aglmodels.Device) error {
	device.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE devices
		SET name = $2, hardware_version = $3, device_token = $4, status = $5,
		    farm_id = $6, provisioned_at = $7, paired_at = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		device.ID, device.Name, nullString(device.HardwareVersion),
		nullString(device.DeviceToken), string(device.Status), nullString(device.FarmID),
		device.ProvisionedAt, device.PairedAt, device.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresDeviceRepository) scanDevice(row rowScanner) (*aglmodels.Device, error) {
	var device aglmodels.Device
	var hw, token, farmID sql.NullString
	var status string

	err := row.Scan(&device.ID, &device.Name, &device.Serial, &hw, &token, &status,
		&farmID, &device.ProvisionedAt, &device.PairedAt, &device.CreatedAt, &device.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}

	device.HardwareVersion = fromNullString(hw)
	device.DeviceToken = fromNullString(token)
	device.FarmID = fromNullString(farmID)
	device.Status = aglmodels.DeviceStatus(status)
	return &device, nil
}
