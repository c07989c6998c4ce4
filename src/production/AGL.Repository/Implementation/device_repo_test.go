package implementation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
	interfaces "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Repository/Interfaces"
)

func setupMockDeviceDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresDeviceRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresDeviceRepository(db)
}

func deviceRows(devices ...aglmodels.Device) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "name", "serial", "hardware_version", "device_token", "status",
		"farm_id", "provisioned_at", "paired_at", "created_at", "updated_at",
	})
	for _, d := range devices {
		rows.AddRow(d.ID, d.Name, d.Serial, nullString(d.HardwareVersion),
			nullString(d.DeviceToken), string(d.Status), nullString(d.FarmID),
			d.ProvisionedAt, d.PairedAt, d.CreatedAt, d.UpdatedAt)
	}
	return rows
}

func TestGetDevice_Success(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	now := time.Now().UTC()
	want := aglmodels.Device{
		ID:        uuid.New().String(),
		Name:      "Pump Station 1",
		Serial:    "AGL-0001",
		Status:    aglmodels.DeviceStatusActive,
		FarmID:    uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT`).
		WithArgs(want.ID).
		WillReturnRows(deviceRows(want))

	got, err := repo.GetDevice(context.Background(), want.ID)

	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Serial, got.Serial)
	assert.Equal(t, aglmodels.DeviceStatusActive, got.Status)
	assert.Equal(t, want.FarmID, got.FarmID)
	assert.Empty(t, got.DeviceToken)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDevice_NotFound(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	id := uuid.New().String()
	mock.ExpectQuery(`SELECT`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.GetDevice(context.Background(), id)

	assert.Nil(t, got)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDevices_FarmFilter(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	now := time.Now().UTC()
	farmID := uuid.New().String()
	d1 := aglmodels.Device{ID: uuid.New().String(), Name: "a", Serial: "AGL-1", Status: aglmodels.DeviceStatusActive, FarmID: farmID, CreatedAt: now, UpdatedAt: now}
	d2 := aglmodels.Device{ID: uuid.New().String(), Name: "b", Serial: "AGL-2", Status: aglmodels.DeviceStatusPending, FarmID: farmID, CreatedAt: now, UpdatedAt: now}

	mock.ExpectQuery(`SELECT`).
		WithArgs(farmID).
		WillReturnRows(deviceRows(d1, d2))

	devices, err := repo.ListDevices(context.Background(), farmID)

	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, d1.ID, devices[0].ID)
	assert.Equal(t, d2.ID, devices[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupOrCreate_ExistingDevice(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	now := time.Now().UTC()
	existing := aglmodels.Device{
		ID:        uuid.New().String(),
		Name:      "known",
		Serial:    "AGL-0042",
		Status:    aglmodels.DeviceStatusPaired,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT`).
		WithArgs(existing.Serial).
		WillReturnRows(deviceRows(existing))

	got, created, err := repo.LookupOrCreate(context.Background(), aglmodels.Device{
		Serial: existing.Serial,
		Status: aglmodels.DeviceStatusPending,
	})

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, aglmodels.DeviceStatusPaired, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupOrCreate_NewDevice(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	serial := "AGL-0099"
	mock.ExpectQuery(`SELECT`).
		WithArgs(serial).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO devices`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, created, err := repo.LookupOrCreate(context.Background(), aglmodels.Device{
		Serial: serial,
		Name:   serial,
		Status: aglmodels.DeviceStatusPending,
	})

	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, serial, got.Serial)
	assert.Equal(t, aglmodels.DeviceStatusPending, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupOrCreate_QueryError(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT`).
		WillReturnError(boom)

	got, created, err := repo.LookupOrCreate(context.Background(), aglmodels.Device{Serial: "AGL-1"})

	assert.Nil(t, got)
	assert.False(t, created)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateDevice_NotFound(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE devices`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDevice(context.Background(), &aglmodels.Device{
		ID:     uuid.New().String(),
		Status: aglmodels.DeviceStatusActive,
	})

	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
