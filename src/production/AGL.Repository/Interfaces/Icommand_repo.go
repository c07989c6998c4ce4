package interfaces

import (
	"context"
	"time"

	aglmodels "gitlab.com/agrilink1/agl.farm_server/src/production/AGL.Models"
)

// CommandLogQuery filters command log queries.
type CommandLogQuery struct {
	Source aglmodels.CommandSource
	From   *time.Time
	To     *time.Time
	Limit  int
}

// CommandLogRepository stores the outcome of every dispatched command.
type CommandLogRepository interface {
	// CreateCommandLog appends a command log row.
	CreateCommandLog(ctx context.Context, entry aglmodels.CommandLog) (*aglmodels.CommandLog, error)

	// ListByDevice returns command log rows for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string, query CommandLogQuery) ([]aglmodels.CommandLog, error)
}
