package interfaces

import (
	"context"
	"time"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// SensorDataQuery filters raw sample queries.
type SensorDataQuery struct {
	SensorType aglmodels.SensorType
	From       *time.Time
	To         *time.Time
	Limit      int
}

// SensorDataRepository is the append-only raw telemetry sample store.
type SensorDataRepository interface {
	// InsertReadings appends a batch of samples.
	InsertReadings(ctx context.Context, samples []aglmodels.SensorData) error

	// ListByDevice returns samples for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string, query SensorDataQuery) ([]aglmodels.SensorData, error)

	// LatestByDevice returns the newest sample per sensor type for a device.
	LatestByDevice(ctx context.Context, deviceID string) ([]aglmodels.SensorData, error)
}
