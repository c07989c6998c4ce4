package interfaces

import (
	"context"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// DeviceRepository manages the device directory.
type DeviceRepository interface {
	// GetDevice returns a device by id, or ErrNotFound.
	GetDevice(ctx context.Context, id string) (*aglmodels.Device, error)

	// GetDeviceBySerial returns a device by serial, or ErrNotFound.
	GetDeviceBySerial(ctx context.Context, serial string) (*aglmodels.Device, error)

	// ListDevices returns devices, optionally filtered by farm.
	ListDevices(ctx context.Context, farmID string) ([]aglmodels.Device, error)

	// LookupOrCreate returns the device with the given serial, creating it
	// when absent. The bool result is true when a new row was created.
	LookupOrCreate(ctx context.Context, device aglmodels.Device) (*aglmodels.Device, bool, error)

	// UpdateDevice persists every mutable field of the device.
	UpdateDevice(ctx context.Context, device *aglmodels.Device) error
}
