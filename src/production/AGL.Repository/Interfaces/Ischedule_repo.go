package interfaces

import (
	"context"
	"time"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// ScheduleRepository stores time-based device commands.
type ScheduleRepository interface {
	// GetSchedule returns one schedule, or ErrNotFound.
	GetSchedule(ctx context.Context, id string) (*aglmodels.DeviceSchedule, error)

	// ListSchedules returns schedules filtered by device and/or farm;
	// empty filters return everything.
	ListSchedules(ctx context.Context, deviceID, farmID string) ([]aglmodels.DeviceSchedule, error)

	// ListEnabled returns every enabled schedule.
	ListEnabled(ctx context.Context) ([]aglmodels.DeviceSchedule, error)

	// CreateSchedule inserts a schedule.
	CreateSchedule(ctx context.Context, s aglmodels.DeviceSchedule) (*aglmodels.DeviceSchedule, error)

	// UpdateSchedule persists every mutable field.
	UpdateSchedule(ctx context.Context, s *aglmodels.DeviceSchedule) error

	// DeleteSchedule removes a schedule.
	DeleteSchedule(ctx context.Context, id string) error

	// MarkExecuted records the last execution time.
	MarkExecuted(ctx context.Context, id string, at time.Time) error
}
