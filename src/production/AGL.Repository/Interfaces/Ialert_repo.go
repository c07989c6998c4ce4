package interfaces

import (
	"context"
	"time"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// AlertQuery filters alert log queries.
type AlertQuery struct {
	SensorType   aglmodels.SensorType
	Level        aglmodels.ThresholdLevel
	From         *time.Time
	To           *time.Time
	Acknowledged *bool
	Limit        int
}

// AlertLogRepository stores threshold violation records.
type AlertLogRepository interface {
	// CreateAlert appends an alert row.
	CreateAlert(ctx context.Context, alert aglmodels.AlertLog) (*aglmodels.AlertLog, error)

	// ListByDevice returns alerts for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string, query AlertQuery) ([]aglmodels.AlertLog, error)

	// Acknowledge sets the acknowledged flag on one alert, or ErrNotFound.
	Acknowledge(ctx context.Context, deviceID, id string) (*aglmodels.AlertLog, error)
}
