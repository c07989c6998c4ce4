package interfaces

import (
	"context"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// SensorConfigRepository manages per-device sensor configurations and their
// thresholds.
type SensorConfigRepository interface {
	// ListConfigs returns every config for a device with thresholds loaded.
	ListConfigs(ctx context.Context, deviceID string) ([]aglmodels.SensorConfig, error)

	// GetConfig returns one config with thresholds loaded, or ErrNotFound.
	GetConfig(ctx context.Context, id string) (*aglmodels.SensorConfig, error)

	// CreateConfig inserts a config. (DeviceID, SensorType) is unique.
	CreateConfig(ctx context.Context, cfg aglmodels.SensorConfig) (*aglmodels.SensorConfig, error)

	// UpdateConfig persists enabled/mode/unit changes.
	UpdateConfig(ctx context.Context, cfg *aglmodels.SensorConfig) error

	// DeleteConfig removes a config and, by cascade, its thresholds.
	DeleteConfig(ctx context.Context, id string) error

	// CreateThreshold inserts a threshold. (SensorConfigID, Level, Type)
	// is unique.
	CreateThreshold(ctx context.Context, t aglmodels.SensorThreshold) (*aglmodels.SensorThreshold, error)

	// GetThreshold returns one threshold, or ErrNotFound.
	GetThreshold(ctx context.Context, id string) (*aglmodels.SensorThreshold, error)

	// UpdateThreshold persists threshold value and action changes.
	UpdateThreshold(ctx context.Context, t *aglmodels.SensorThreshold) error

	// DeleteThreshold removes a threshold.
	DeleteThreshold(ctx context.Context, id string) error
}
